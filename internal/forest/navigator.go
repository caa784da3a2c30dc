package forest

import (
	"errors"
	"fmt"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// The functions in this file are read-only traversals over a node slice.
// Parent ids come from persisted data, so every walk is bounded and turns a
// loop into ErrStructural instead of spinning.

// childrenOf returns the nodes whose parent is parentID, in collection order.
func childrenOf(nodes []types.Node, parentID int64) []types.Node {
	var out []types.Node
	for _, n := range nodes {
		if n.ParentID == parentID {
			out = append(out, n)
		}
	}
	return out
}

// childMap groups child ids by parent id, each list in collection order.
func childMap(nodes []types.Node) map[int64][]int64 {
	children := make(map[int64][]int64)
	for _, n := range nodes {
		children[n.ParentID] = append(children[n.ParentID], n.ID)
	}
	return children
}

// subtreeIDs returns id followed by all of its descendants in depth-first
// pre-order, children visited in collection order. The result always
// contains id, even when no node carries it.
func subtreeIDs(nodes []types.Node, id int64) ([]int64, error) {
	children := childMap(nodes)

	var ids []int64
	seen := make(map[int64]bool)
	stack := []int64{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		// In a forest every node has one parent, so it is reached at most once.
		if seen[cur] {
			return nil, fmt.Errorf("%w: node %d reached twice below node %d", types.ErrStructural, cur, id)
		}
		seen[cur] = true
		ids = append(ids, cur)

		kids := children[cur]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
	return ids, nil
}

// ancestors returns the parent chain of id, nearest first. The chain stops
// at RootID or at a parent id that no live node carries.
func ancestors(nodes []types.Node, id int64) ([]int64, error) {
	parent := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		parent[n.ID] = n.ParentID
	}
	cur, ok := parent[id]
	if !ok {
		return nil, fmt.Errorf("node %d: %w", id, types.ErrNotFound)
	}

	var chain []int64
	for cur != types.RootID {
		if _, live := parent[cur]; !live {
			break
		}
		if cur == id || len(chain) >= len(nodes) {
			return nil, fmt.Errorf("%w: parent chain of node %d does not reach the root", types.ErrStructural, id)
		}
		chain = append(chain, cur)
		cur = parent[cur]
	}
	return chain, nil
}

// depths maps every node id to its depth, roots being depth 1. A node whose
// parent is missing counts as a root. Each node is resolved once.
func depths(nodes []types.Node) (map[int64]int, error) {
	parent := make(map[int64]int64, len(nodes))
	for _, n := range nodes {
		parent[n.ID] = n.ParentID
	}

	depth := make(map[int64]int, len(nodes))
	for _, n := range nodes {
		var path []int64
		onPath := make(map[int64]bool)
		base := 0
		cur := n.ID
		for {
			if d, ok := depth[cur]; ok {
				base = d
				break
			}
			p, live := parent[cur]
			if !live {
				break
			}
			if onPath[cur] {
				return nil, fmt.Errorf("%w: cycle through node %d", types.ErrStructural, cur)
			}
			onPath[cur] = true
			path = append(path, cur)
			cur = p
		}
		for i := len(path) - 1; i >= 0; i-- {
			base++
			depth[path[i]] = base
		}
	}
	return depth, nil
}

// verify checks id uniqueness, referential integrity and acyclicity. All
// problems found are joined into the returned error.
func verify(nodes []types.Node) error {
	var errs []error

	ids := make(map[int64]bool, len(nodes))
	for _, n := range nodes {
		if ids[n.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate node id %d", types.ErrStructural, n.ID))
		}
		ids[n.ID] = true
	}
	for _, n := range nodes {
		if n.ParentID != types.RootID && !ids[n.ParentID] {
			errs = append(errs, fmt.Errorf("node %d: parent %d: %w", n.ID, n.ParentID, types.ErrDanglingParent))
		}
	}
	if _, err := depths(nodes); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
