package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// nodesJSONL holds a revision header and then one node record per line,
// in collection order.
const nodesJSONL = "nodes.jsonl"

// maxRecordBytes bounds a single JSONL line.
const maxRecordBytes = 1 << 20

// jsonlStorage keeps the snapshot in DataDir/nodes.jsonl.
type jsonlStorage struct {
	mu     sync.Mutex
	path   string
	lock   *dirLock
	closed bool
}

func newJSONLStorage(dataDir string, lock *dirLock) *jsonlStorage {
	return &jsonlStorage{
		path: filepath.Join(dataDir, nodesJSONL),
		lock: lock,
	}
}

// jsonlHeader is the optional first line of nodes.jsonl. It carries the
// snapshot revision and is told apart from node records by its key.
type jsonlHeader struct {
	Revision *string `json:"revision"`
}

// Load reads nodes.jsonl. A missing file is an empty forest. Unknown fields
// are ignored; a line that is not a valid record fails the load.
func (s *jsonlStorage) Load() (types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.Snapshot{}, types.ErrClosed
	}

	records, err := readJSONL(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.Snapshot{}, nil
	}
	if err != nil {
		return types.Snapshot{}, err
	}

	var snap types.Snapshot
	if len(records) > 0 {
		var hdr jsonlHeader
		if err := json.Unmarshal(records[0], &hdr); err == nil && hdr.Revision != nil {
			snap.Revision = *hdr.Revision
			records = records[1:]
		}
	}

	snap.Nodes = make([]types.Node, 0, len(records))
	for i, rec := range records {
		var n types.Node
		if err := json.Unmarshal(rec, &n); err != nil {
			return types.Snapshot{}, fmt.Errorf("%s record %d: %w", nodesJSONL, i+1, err)
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	return snap, nil
}

// Persist rewrites nodes.jsonl atomically. A non-empty revision is written
// as a header line ahead of the records.
func (s *jsonlStorage) Persist(snap types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.ErrClosed
	}

	records := make([]json.RawMessage, 0, len(snap.Nodes)+1)
	if snap.Revision != "" {
		b, err := json.Marshal(jsonlHeader{Revision: &snap.Revision})
		if err != nil {
			return fmt.Errorf("encoding header: %w", err)
		}
		records = append(records, b)
	}
	for _, n := range snap.Nodes {
		b, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encoding node %d: %w", n.ID, err)
		}
		records = append(records, b)
	}
	return writeJSONL(s.path, records)
}

func (s *jsonlStorage) Info() (types.SnapshotInfo, error) {
	info := types.SnapshotInfo{Backend: types.BackendJSONL, Path: s.path}
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

func (s *jsonlStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return s.lock.release()
}

// readJSONL reads a JSONL file and returns each non-empty line as a
// json.RawMessage. A line that is not valid JSON is an error naming its
// line number.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordBytes)
	line := 0
	for scanner.Scan() {
		line++
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		if !json.Valid(b) {
			return nil, fmt.Errorf("%s line %d: malformed JSON", path, line)
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		records = append(records, json.RawMessage(cp))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to a JSONL file using the temp-file,
// fsync, rename pattern. The temp file is removed on every failure path.
func writeJSONL(path string, records []json.RawMessage) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	fail := func(step string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%s: %w", step, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
