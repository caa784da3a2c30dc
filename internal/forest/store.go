package forest

import (
	"fmt"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// nodeStore holds the node collection in insertion order, an id index
// into it, and the identifier counter. It is not safe for concurrent use;
// Forest serializes all access.
type nodeStore struct {
	nodes  []types.Node
	index  map[int64]int // node id -> position in nodes
	lastID int64
}

func newNodeStore() *nodeStore {
	return &nodeStore{index: make(map[int64]int)}
}

// load replaces the collection with a persisted snapshot and sets the
// counter to the highest id in it. Non-positive or duplicate ids make the
// snapshot malformed; dangling parents and cycles are left for the
// navigator to report.
func (s *nodeStore) load(nodes []types.Node) error {
	index := make(map[int64]int, len(nodes))
	var maxID int64
	for i, n := range nodes {
		if n.ID <= 0 {
			return fmt.Errorf("record %d: invalid node id %d", i, n.ID)
		}
		if _, dup := index[n.ID]; dup {
			return fmt.Errorf("record %d: duplicate node id %d", i, n.ID)
		}
		index[n.ID] = i
		if n.ID > maxID {
			maxID = n.ID
		}
	}
	s.nodes = append([]types.Node(nil), nodes...)
	s.index = index
	if maxID > s.lastID {
		s.lastID = maxID
	}
	return nil
}

// nextID allocates a fresh id. Ids are never handed out twice.
func (s *nodeStore) nextID() int64 {
	s.lastID++
	return s.lastID
}

// insert appends a node with a freshly allocated id.
func (s *nodeStore) insert(parentID int64, name string) types.Node {
	n := types.Node{ID: s.nextID(), ParentID: parentID, Name: name}
	s.index[n.ID] = len(s.nodes)
	s.nodes = append(s.nodes, n)
	return n
}

func (s *nodeStore) find(id int64) (types.Node, bool) {
	i, ok := s.index[id]
	if !ok {
		return types.Node{}, false
	}
	return s.nodes[i], true
}

// ref returns a pointer to the stored node for in-place edits, or nil.
// The pointer is invalidated by the next insert or remove.
func (s *nodeStore) ref(id int64) *types.Node {
	i, ok := s.index[id]
	if !ok {
		return nil
	}
	return &s.nodes[i]
}

// remove deletes one node and reports whether it existed.
func (s *nodeStore) remove(id int64) bool {
	return s.removeAll(map[int64]struct{}{id: {}}) == 1
}

// removeAll deletes every node whose id is in ids, keeping the order of the
// survivors. It returns the number of nodes removed.
func (s *nodeStore) removeAll(ids map[int64]struct{}) int {
	kept := s.nodes[:0]
	for _, n := range s.nodes {
		if _, drop := ids[n.ID]; drop {
			continue
		}
		kept = append(kept, n)
	}
	removed := len(s.nodes) - len(kept)
	// Clear the tail so dropped names are not retained by the backing array.
	clear(s.nodes[len(kept):])
	s.nodes = kept
	s.reindex()
	return removed
}

// snapshot returns a copy of the collection.
func (s *nodeStore) snapshot() []types.Node {
	return append([]types.Node(nil), s.nodes...)
}

// restore puts back a collection taken with snapshot. The counter is left
// alone so ids allocated by the abandoned mutation stay retired.
func (s *nodeStore) restore(nodes []types.Node) {
	s.nodes = nodes
	s.reindex()
}

func (s *nodeStore) reindex() {
	s.index = make(map[int64]int, len(s.nodes))
	for i, n := range s.nodes {
		s.index[n.ID] = i
	}
}
