package types

// RootID is the parent id of top-level nodes. No live node ever carries it.
const RootID int64 = 0

// CopySuffix is appended to the name of every node created by a clone.
const CopySuffix = " (copy)"

// Node is a single named entry in the forest.
// The JSON tags define the persisted record format.
type Node struct {
	ID       int64  `json:"id"`        // Positive, unique, immutable once assigned.
	ParentID int64  `json:"parent_id"` // RootID or the id of a live node.
	Name     string `json:"name"`      // Display name.
}

// IsRoot reports whether the node sits at the top level.
func (n Node) IsRoot() bool {
	return n.ParentID == RootID
}

// ForestStats summarizes the current shape of a forest.
type ForestStats struct {
	Nodes    int    `json:"nodes"`     // Live node count.
	Roots    int    `json:"roots"`     // Nodes whose parent is RootID.
	MaxDepth int    `json:"max_depth"` // Depth of the deepest node; roots have depth 1.
	LastID   int64  `json:"last_id"`   // Most recently allocated id.
	Revision string `json:"revision"`  // Token stamped by the last successful persist.
}
