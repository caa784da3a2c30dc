// Package storage implements the snapshot backends for grove. Each backend
// stores the forest as one ordered set of node records and replaces it in
// full on every Persist. Open takes an exclusive lock on the data directory
// for as long as the backend stays open.
package storage

import (
	"fmt"
	"os"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// Open validates config, creates DataDir if needed, locks it and opens the
// configured backend. The caller must Close the returned Storage.
func Open(config types.Config) (types.Storage, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	lock, err := acquireDirLock(dataDir)
	if err != nil {
		return nil, err
	}

	var s types.Storage
	switch config.Backend {
	case types.BackendJSONL:
		s = newJSONLStorage(dataDir, lock)
	case types.BackendSQLite:
		s, err = openSQLiteStorage(dataDir, lock)
	case types.BackendLevelDB:
		s, err = openLevelDBStorage(dataDir, lock)
	}
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("open %s backend: %w", config.Backend, err)
	}
	return s, nil
}
