package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// leveldbDir is the database directory inside the data directory.
const leveldbDir = "grove.ldb"

// nodeKeyPrefix prefixes every node key. Keys sort by collection position.
var nodeKeyPrefix = []byte("node/")

// revisionKey holds the snapshot revision. It sorts outside the node range.
var revisionKey = []byte("meta/revision")

// nodeKey returns the key for the record at position seq.
func nodeKey(seq int) []byte {
	return []byte(fmt.Sprintf("node/%016x", seq))
}

// levelDBStorage keeps the snapshot as JSON values under node/<seq> keys.
// Persist swaps the whole key range in one synced write batch.
type levelDBStorage struct {
	mu     sync.Mutex
	path   string
	db     *leveldb.DB
	lock   *dirLock
	closed bool
}

func openLevelDBStorage(dataDir string, lock *dirLock) (*levelDBStorage, error) {
	path := filepath.Join(dataDir, leveldbDir)
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &levelDBStorage{path: path, db: db, lock: lock}, nil
}

// Load reads the revision and iterates the node key range in key order.
func (s *levelDBStorage) Load() (types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.Snapshot{}, types.ErrClosed
	}

	var snap types.Snapshot
	rev, err := s.db.Get(revisionKey, nil)
	switch {
	case err == nil:
		snap.Revision = string(rev)
	case !errors.Is(err, leveldb.ErrNotFound):
		return types.Snapshot{}, fmt.Errorf("reading revision: %w", err)
	}

	iter := s.db.NewIterator(util.BytesPrefix(nodeKeyPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		var n types.Node
		if err := json.Unmarshal(iter.Value(), &n); err != nil {
			return types.Snapshot{}, fmt.Errorf("decoding %s: %w", iter.Key(), err)
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	if err := iter.Error(); err != nil {
		return types.Snapshot{}, fmt.Errorf("iterating nodes: %w", err)
	}
	return snap, nil
}

// Persist deletes the previous records and writes the nodes and revision
// in one batch.
func (s *levelDBStorage) Persist(snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrClosed
	}

	batch := new(leveldb.Batch)

	iter := s.db.NewIterator(util.BytesPrefix(nodeKeyPrefix), nil)
	for iter.Next() {
		batch.Delete(iter.Key())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterating nodes: %w", err)
	}

	for i, n := range snap.Nodes {
		b, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encoding node %d: %w", n.ID, err)
		}
		batch.Put(nodeKey(i), b)
	}
	batch.Put(revisionKey, []byte(snap.Revision))

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	return nil
}

// Info reports the total size of the database directory.
func (s *levelDBStorage) Info() (types.SnapshotInfo, error) {
	info := types.SnapshotInfo{Backend: types.BackendLevelDB, Path: s.path}
	err := filepath.WalkDir(s.path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Compaction removed the file after it was listed.
			return nil
		}
		if err != nil {
			return err
		}
		info.Bytes += fi.Size()
		return nil
	})
	return info, err
}

func (s *levelDBStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.db.Close()
	if lerr := s.lock.release(); err == nil {
		err = lerr
	}
	return err
}
