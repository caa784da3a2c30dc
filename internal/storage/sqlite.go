package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// sqliteFile is the database file inside the data directory.
const sqliteFile = "grove.db"

// sqliteStorage keeps the snapshot in the nodes table of DataDir/grove.db.
// Persist replaces the table inside one transaction.
type sqliteStorage struct {
	mu     sync.Mutex
	path   string
	db     *sql.DB
	lock   *dirLock
	closed bool
}

func openSQLiteStorage(dataDir string, lock *dirLock) (*sqliteStorage, error) {
	path := filepath.Join(dataDir, sqliteFile)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, ddl := range schemaDDL {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying schema: %w", err)
		}
	}
	return &sqliteStorage{path: path, db: db, lock: lock}, nil
}

// Load reads the nodes table in seq order together with the revision.
func (s *sqliteStorage) Load() (types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.Snapshot{}, types.ErrClosed
	}

	var snap types.Snapshot
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", metaRevision).Scan(&snap.Revision)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return types.Snapshot{}, fmt.Errorf("querying revision: %w", err)
	}

	rows, err := s.db.Query("SELECT id, parent_id, name FROM nodes ORDER BY seq")
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n types.Node
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Name); err != nil {
			return types.Snapshot{}, fmt.Errorf("scanning node: %w", err)
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return types.Snapshot{}, err
	}
	return snap, nil
}

// Persist replaces every row of the nodes table and the revision in a
// single transaction. Readers see either the old snapshot or the new one.
func (s *sqliteStorage) Persist(snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning persist transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM nodes"); err != nil {
		return fmt.Errorf("clearing nodes: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", metaRevision, snap.Revision); err != nil {
		return fmt.Errorf("writing revision: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO nodes (seq, id, parent_id, name) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range snap.Nodes {
		if _, err := stmt.Exec(i, n.ID, n.ParentID, n.Name); err != nil {
			return fmt.Errorf("inserting node %d: %w", n.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing persist transaction: %w", err)
	}
	return nil
}

func (s *sqliteStorage) Info() (types.SnapshotInfo, error) {
	info := types.SnapshotInfo{Backend: types.BackendSQLite, Path: s.path}
	st, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}
	if err != nil {
		return info, err
	}
	info.Bytes = st.Size()
	return info, nil
}

func (s *sqliteStorage) Close() error {
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
