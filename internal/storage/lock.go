package storage

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/juju/fslock"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// lockFileName is created inside the data directory.
const lockFileName = "grove.lock"

// dirLock is an exclusive OS-level lock on a data directory.
type dirLock struct {
	lck  *fslock.Lock
	held bool
}

// acquireDirLock takes the data directory lock without waiting. A lock
// held elsewhere yields ErrLocked.
func acquireDirLock(dataDir string) (*dirLock, error) {
	lck := fslock.New(filepath.Join(dataDir, lockFileName))
	if err := lck.TryLock(); err != nil {
		if errors.Is(err, fslock.ErrLocked) {
			return nil, fmt.Errorf("%s: %w", dataDir, types.ErrLocked)
		}
		return nil, fmt.Errorf("lock %s: %w", dataDir, err)
	}
	return &dirLock{lck: lck, held: true}, nil
}

// release drops the lock. It is idempotent.
func (l *dirLock) release() error {
	if !l.held {
		return nil
	}
	l.held = false
	return l.lck.Unlock()
}
