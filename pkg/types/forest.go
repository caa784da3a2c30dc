package types

import "errors"

// Forest is the mutable tree store. Each method is one atomic operation:
// mutations are persisted before they return, and a failed persist leaves
// the in-memory forest as it was before the call.
type Forest interface {
	// Add creates a node under parentID and returns its id. The parent is
	// not checked; a missing parent is accepted.
	Add(parentID int64, name string) (int64, error)

	// Rename sets the trimmed name of id. It returns false, without error,
	// when id does not exist.
	Rename(id int64, newName string) (bool, error)

	// DeleteSubtree removes id and all of its descendants. A missing id is
	// a no-op.
	DeleteSubtree(id int64) error

	// FlattenDelete removes id and re-parents its direct children to id's
	// parent. A missing id is a no-op.
	FlattenDelete(id int64) error

	// CloneSubtree copies the subtree rooted at srcID under newParentID and
	// returns the id of the copy's root. The bool is false when srcID does
	// not exist.
	CloneSubtree(srcID, newParentID int64) (int64, bool, error)

	// Duplicate clones id next to itself, under its own parent.
	Duplicate(id int64) (int64, bool, error)

	// Move re-parents id under newParentID. It returns ErrNotFound when
	// either endpoint is missing and ErrCycle when newParentID lies inside
	// the subtree of id.
	Move(id, newParentID int64) error

	// Get returns the node with the given id.
	Get(id int64) (Node, bool)

	// Nodes returns every node in collection order.
	Nodes() []Node

	// ChildrenOf returns the direct children of parentID in insertion order.
	ChildrenOf(parentID int64) []Node

	// SubtreeIDs returns id and the ids of all its descendants in
	// depth-first pre-order.
	SubtreeIDs(id int64) ([]int64, error)

	// Ancestors returns the parent chain of id, nearest first, excluding
	// id itself and RootID.
	Ancestors(id int64) ([]int64, error)

	// Verify checks id uniqueness, referential integrity and acyclicity of
	// the whole collection.
	Verify() error

	// Stats summarizes the forest.
	Stats() (ForestStats, error)

	// SnapshotInfo describes the persisted snapshot behind the forest.
	SnapshotInfo() (SnapshotInfo, error)

	// Close releases the underlying storage.
	Close() error
}

// Forest operation errors.
var (
	ErrNotFound       = errors.New("node not found")
	ErrCycle          = errors.New("move would make a node its own ancestor")
	ErrPersistence    = errors.New("persistence failed")
	ErrStructural     = errors.New("forest structure is corrupt")
	ErrDanglingParent = errors.New("node references a missing parent")
)
