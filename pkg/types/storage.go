package types

import "errors"

// Snapshot is the persisted state of a forest: its nodes in collection
// order and the revision token stamped by the write that produced it.
type Snapshot struct {
	Nodes    []Node
	Revision string
}

// Storage persists a forest as one ordered snapshot of node records.
// Every Persist replaces the previous snapshot in full, revision included;
// readers never observe a partially written snapshot.
type Storage interface {
	// Load returns the persisted snapshot with nodes in their stored order.
	// A missing snapshot yields an empty Snapshot and no error.
	Load() (Snapshot, error)

	// Persist overwrites the snapshot with snap, in order.
	Persist(snap Snapshot) error

	// Info describes where and how large the current snapshot is.
	Info() (SnapshotInfo, error)

	// Close releases the backend and its data directory lock.
	// Close is idempotent.
	Close() error
}

// SnapshotInfo describes the persisted snapshot of a Storage.
type SnapshotInfo struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
	Bytes   int64  `json:"bytes"`
}

// Storage errors.
var (
	ErrLocked = errors.New("data directory is locked by another process")
	ErrClosed = errors.New("storage is closed")
)
