// Package forest implements the grove tree store: the node collection, its
// traversals, and the structural mutations that keep it a forest.
package forest

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// Forest implements types.Forest over a Storage snapshot.
// One RWMutex serializes mutations; each mutation holds the write lock from
// its first read through the persist that completes it.
type Forest struct {
	mu       sync.RWMutex
	store    *nodeStore
	storage  types.Storage
	logger   logrus.FieldLogger
	revision string
	closed   bool
}

// Option configures a Forest.
type Option func(*Forest)

// WithLogger sets the logger used for mutation and persistence events.
// A nil logger discards output.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(f *Forest) {
		if logger == nil {
			logger = discardLogger()
		}
		f.logger = logger.WithField("component", "forest")
	}
}

func discardLogger() logrus.FieldLogger {
	lgr := logrus.New()
	lgr.SetOutput(io.Discard)
	return lgr
}

// New loads the snapshot held by storage and returns a Forest over it.
// Malformed snapshots fail with ErrPersistence.
func New(storage types.Storage, opts ...Option) (*Forest, error) {
	f := &Forest{
		store:   newNodeStore(),
		storage: storage,
		logger:  discardLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	snap, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w: %w", types.ErrPersistence, err)
	}
	if err := f.store.load(snap.Nodes); err != nil {
		return nil, fmt.Errorf("load snapshot: %w: %w", types.ErrPersistence, err)
	}
	f.revision = snap.Revision

	f.logger.WithFields(logrus.Fields{
		"nodes":    len(snap.Nodes),
		"last_id":  f.store.lastID,
		"revision": f.revision,
	}).Debug("snapshot loaded")
	return f, nil
}

// newRevision generates a UUID v7 revision token.
func newRevision() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// commit persists the collection under a fresh revision. On failure the
// collection and revision are restored to before and the error wraps
// ErrPersistence. The caller must hold f.mu.
func (f *Forest) commit(op string, before []types.Node) error {
	rev := newRevision()
	if err := f.storage.Persist(types.Snapshot{Nodes: f.store.nodes, Revision: rev}); err != nil {
		f.store.restore(before)
		f.logger.WithFields(logrus.Fields{"op": op, "error": err}).Error("persist failed")
		return fmt.Errorf("%s: %w: %w", op, types.ErrPersistence, err)
	}
	f.revision = rev
	return nil
}

// Add creates a node under parentID. The parent is not checked.
func (f *Forest) Add(parentID int64, name string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, types.ErrClosed
	}

	before := f.store.snapshot()
	n := f.store.insert(parentID, name)
	if err := f.commit("add", before); err != nil {
		return 0, err
	}

	f.logger.WithFields(logrus.Fields{"id": n.ID, "parent_id": parentID}).Debug("node added")
	return n.ID, nil
}

// Rename trims newName and assigns it to id. A missing id returns false.
func (f *Forest) Rename(id int64, newName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, types.ErrClosed
	}
	if _, ok := f.store.find(id); !ok {
		return false, nil
	}

	before := f.store.snapshot()
	f.store.ref(id).Name = strings.TrimSpace(newName)
	if err := f.commit("rename", before); err != nil {
		return false, err
	}

	f.logger.WithField("id", id).Debug("node renamed")
	return true, nil
}

// DeleteSubtree removes id and every descendant of it.
func (f *Forest) DeleteSubtree(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return types.ErrClosed
	}
	if _, ok := f.store.find(id); !ok {
		return nil
	}

	ids, err := subtreeIDs(f.store.nodes, id)
	if err != nil {
		return fmt.Errorf("delete subtree %d: %w", id, err)
	}
	doomed := make(map[int64]struct{}, len(ids))
	for _, sid := range ids {
		doomed[sid] = struct{}{}
	}

	before := f.store.snapshot()
	removed := f.store.removeAll(doomed)
	if err := f.commit("delete subtree", before); err != nil {
		return err
	}

	f.logger.WithFields(logrus.Fields{"id": id, "removed": removed}).Debug("subtree deleted")
	return nil
}

// FlattenDelete removes id and promotes its direct children to id's parent.
// Deeper descendants keep their parents.
func (f *Forest) FlattenDelete(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return types.ErrClosed
	}
	node, ok := f.store.find(id)
	if !ok {
		return nil
	}

	before := f.store.snapshot()
	promoted := 0
	for i := range f.store.nodes {
		if f.store.nodes[i].ParentID == id {
			f.store.nodes[i].ParentID = node.ParentID
			promoted++
		}
	}
	f.store.remove(id)
	if err := f.commit("flatten delete", before); err != nil {
		return err
	}

	f.logger.WithFields(logrus.Fields{"id": id, "promoted": promoted}).Debug("node flattened")
	return nil
}

// CloneSubtree copies the subtree of srcID under newParentID. The parent is
// not checked, as with Add.
func (f *Forest) CloneSubtree(srcID, newParentID int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, false, types.ErrClosed
	}
	if _, ok := f.store.find(srcID); !ok {
		return 0, false, nil
	}
	return f.cloneLocked(srcID, newParentID)
}

// Duplicate clones id under its own parent, so the copy becomes its
// last sibling.
func (f *Forest) Duplicate(id int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, false, types.ErrClosed
	}
	src, ok := f.store.find(id)
	if !ok {
		return 0, false, nil
	}
	return f.cloneLocked(id, src.ParentID)
}

// cloneLocked copies the subtree of srcID, which must exist. The source
// shape is captured before the first insert, so a target inside the source
// subtree copies the subtree as it was. Copies are allocated and appended in
// pre-order, matching a recursive clone that numbers each node before its
// children. The caller must hold f.mu.
func (f *Forest) cloneLocked(srcID, newParentID int64) (int64, bool, error) {
	ids, err := subtreeIDs(f.store.nodes, srcID)
	if err != nil {
		return 0, false, fmt.Errorf("clone subtree %d: %w", srcID, err)
	}

	before := f.store.snapshot()
	copies := make(map[int64]int64, len(ids))
	for i, sid := range ids {
		src, _ := f.store.find(sid)
		parent := newParentID
		if i > 0 {
			parent = copies[src.ParentID]
		}
		copies[sid] = f.store.insert(parent, src.Name+types.CopySuffix).ID
	}
	if err := f.commit("clone subtree", before); err != nil {
		return 0, false, err
	}

	f.logger.WithFields(logrus.Fields{
		"src_id":    srcID,
		"id":        copies[srcID],
		"parent_id": newParentID,
		"nodes":     len(ids),
	}).Debug("subtree cloned")
	return copies[srcID], true, nil
}

// Move re-parents id under newParentID after checking that both endpoints
// exist and that the move keeps the parent relation acyclic.
func (f *Forest) Move(id, newParentID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return types.ErrClosed
	}
	node, ok := f.store.find(id)
	if !ok {
		return fmt.Errorf("move node %d: %w", id, types.ErrNotFound)
	}
	if newParentID != types.RootID {
		if _, ok := f.store.find(newParentID); !ok {
			return fmt.Errorf("move to parent %d: %w", newParentID, types.ErrNotFound)
		}
	}

	ids, err := subtreeIDs(f.store.nodes, id)
	if err != nil {
		return fmt.Errorf("move node %d: %w", id, err)
	}
	for _, sid := range ids {
		if sid == newParentID {
			return fmt.Errorf("move node %d under %d: %w", id, newParentID, types.ErrCycle)
		}
	}
	if node.ParentID == newParentID {
		return nil
	}

	before := f.store.snapshot()
	f.store.ref(id).ParentID = newParentID
	if err := f.commit("move", before); err != nil {
		return err
	}

	f.logger.WithFields(logrus.Fields{"id": id, "from": node.ParentID, "to": newParentID}).Debug("node moved")
	return nil
}

// Get returns the node with the given id.
func (f *Forest) Get(id int64) (types.Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.store.find(id)
}

// Nodes returns a copy of the collection in insertion order.
func (f *Forest) Nodes() []types.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.store.snapshot()
}

// ChildrenOf returns the direct children of parentID in insertion order.
func (f *Forest) ChildrenOf(parentID int64) []types.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return childrenOf(f.store.nodes, parentID)
}

// SubtreeIDs returns id and its descendants in depth-first pre-order.
func (f *Forest) SubtreeIDs(id int64) ([]int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return subtreeIDs(f.store.nodes, id)
}

// Ancestors returns the parent chain of id, nearest first.
func (f *Forest) Ancestors(id int64) ([]int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return ancestors(f.store.nodes, id)
}

// Verify reports every broken forest invariant in the collection.
func (f *Forest) Verify() error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return verify(f.store.nodes)
}

// Stats summarizes the collection.
func (f *Forest) Stats() (types.ForestStats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	depth, err := depths(f.store.nodes)
	if err != nil {
		return types.ForestStats{}, err
	}
	stats := types.ForestStats{
		Nodes:    len(f.store.nodes),
		LastID:   f.store.lastID,
		Revision: f.revision,
	}
	for _, n := range f.store.nodes {
		if n.IsRoot() {
			stats.Roots++
		}
		stats.MaxDepth = max(stats.MaxDepth, depth[n.ID])
	}
	return stats, nil
}

// SnapshotInfo describes the snapshot behind the forest.
func (f *Forest) SnapshotInfo() (types.SnapshotInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.storage.Info()
}

// Close releases the storage. Later mutations return ErrClosed; reads keep
// serving the last state. Close is idempotent.
func (f *Forest) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	return f.storage.Close()
}

var _ types.Forest = (*Forest)(nil)
