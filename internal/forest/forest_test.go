package forest

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/grove/pkg/types"
)

// memStorage is an in-memory types.Storage that counts persists and can be
// told to fail.
type memStorage struct {
	mu       sync.Mutex
	nodes    []types.Node
	revision string
	loadErr  error
	failWith error
	persists int
	closed   bool
}

func (m *memStorage) Load() (types.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return types.Snapshot{}, m.loadErr
	}
	return types.Snapshot{Nodes: append([]types.Node(nil), m.nodes...), Revision: m.revision}, nil
}

func (m *memStorage) Persist(snap types.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.nodes = append([]types.Node(nil), snap.Nodes...)
	m.revision = snap.Revision
	m.persists++
	return nil
}

func (m *memStorage) Info() (types.SnapshotInfo, error) {
	return types.SnapshotInfo{Backend: "memory"}, nil
}

func (m *memStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memStorage) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *memStorage) persisted() []types.Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Node(nil), m.nodes...)
}

// newTestForest opens a Forest over an in-memory snapshot of seed.
func newTestForest(t *testing.T, seed ...types.Node) (*Forest, *memStorage) {
	t.Helper()
	storage := &memStorage{nodes: seed}
	f, err := New(storage)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, storage
}

// scenarioNodes is {(1,0,"A"), (2,1,"B"), (3,1,"C")}.
func scenarioNodes() []types.Node {
	return []types.Node{
		{ID: 1, ParentID: 0, Name: "A"},
		{ID: 2, ParentID: 1, Name: "B"},
		{ID: 3, ParentID: 1, Name: "C"},
	}
}

// shape renders the subtree of id as "name(child child ...)".
func shape(f *Forest, id int64) string {
	n, _ := f.Get(id)
	kids := f.ChildrenOf(id)
	if len(kids) == 0 {
		return n.Name
	}
	parts := make([]string, len(kids))
	for i, k := range kids {
		parts[i] = shape(f, k.ID)
	}
	return n.Name + "(" + strings.Join(parts, " ") + ")"
}

func TestScenario(t *testing.T) {
	t.Run("clone root under the sentinel", func(t *testing.T) {
		f, _ := newTestForest(t, scenarioNodes()...)

		id, ok, err := f.CloneSubtree(1, 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(4), id)

		assert.Equal(t, append(scenarioNodes(),
			types.Node{ID: 4, ParentID: 0, Name: "A (copy)"},
			types.Node{ID: 5, ParentID: 4, Name: "B (copy)"},
			types.Node{ID: 6, ParentID: 4, Name: "C (copy)"},
		), f.Nodes())
	})

	t.Run("move under a descendant is a cycle", func(t *testing.T) {
		f, storage := newTestForest(t, scenarioNodes()...)

		err := f.Move(1, 2)
		assert.ErrorIs(t, err, types.ErrCycle)
		assert.Equal(t, scenarioNodes(), f.Nodes())
		assert.Zero(t, storage.persists)
	})

	t.Run("flatten delete promotes children to the root", func(t *testing.T) {
		f, storage := newTestForest(t, scenarioNodes()...)

		require.NoError(t, f.FlattenDelete(1))
		want := []types.Node{
			{ID: 2, ParentID: 0, Name: "B"},
			{ID: 3, ParentID: 0, Name: "C"},
		}
		assert.Equal(t, want, f.Nodes())
		assert.Equal(t, want, storage.persisted())
	})
}

func TestNewLoadFailures(t *testing.T) {
	t.Run("storage error", func(t *testing.T) {
		_, err := New(&memStorage{loadErr: errors.New("disk gone")})
		assert.ErrorIs(t, err, types.ErrPersistence)
		assert.ErrorContains(t, err, "disk gone")
	})

	t.Run("duplicate ids", func(t *testing.T) {
		_, err := New(&memStorage{nodes: []types.Node{{ID: 1}, {ID: 1}}})
		assert.ErrorIs(t, err, types.ErrPersistence)
	})
}

func TestAdd(t *testing.T) {
	f, storage := newTestForest(t)

	root, err := f.Add(0, "root")
	require.NoError(t, err)
	child, err := f.Add(root, "child")
	require.NoError(t, err)
	orphan, err := f.Add(404, "orphan")
	require.NoError(t, err, "a missing parent is accepted")

	assert.Equal(t, []int64{1, 2, 3}, []int64{root, child, orphan})
	assert.Equal(t, 3, storage.persists)
	assert.Equal(t, f.Nodes(), storage.persisted())
}

func TestAddUniqueness(t *testing.T) {
	f, _ := newTestForest(t, scenarioNodes()...)

	for i := range 20 {
		if i%3 == 0 {
			_, _, err := f.Duplicate(1)
			require.NoError(t, err)
			continue
		}
		_, err := f.Add(int64(i%4), fmt.Sprintf("n%d", i))
		require.NoError(t, err)
	}

	seen := make(map[int64]bool)
	for _, n := range f.Nodes() {
		assert.False(t, seen[n.ID], "id %d allocated twice", n.ID)
		seen[n.ID] = true
	}
}

func TestRename(t *testing.T) {
	f, storage := newTestForest(t, scenarioNodes()...)

	ok, err := f.Rename(2, "  Bee \t")
	require.NoError(t, err)
	assert.True(t, ok)
	n, _ := f.Get(2)
	assert.Equal(t, "Bee", n.Name)
	assert.Equal(t, 1, storage.persists)

	ok, err = f.Rename(99, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, storage.persists, "renaming a missing node does not persist")
}

func TestDeleteSubtree(t *testing.T) {
	f, storage := newTestForest(t, sampleNodes()...)

	want, err := f.SubtreeIDs(2)
	require.NoError(t, err)
	beforeIDs := nodeIDs(f.Nodes())

	require.NoError(t, f.DeleteSubtree(2))

	afterIDs := nodeIDs(f.Nodes())
	var gone []int64
	for _, id := range beforeIDs {
		if !slices.Contains(afterIDs, id) {
			gone = append(gone, id)
		}
	}
	assert.ElementsMatch(t, want, gone)
	assert.Equal(t, []int64{1, 3, 5}, afterIDs)
	assert.Equal(t, 1, storage.persists)
}

func TestDeleteSubtreeMissingIsNoop(t *testing.T) {
	f, storage := newTestForest(t, sampleNodes()...)

	require.NoError(t, f.DeleteSubtree(404))
	assert.Equal(t, sampleNodes(), f.Nodes())
	assert.Zero(t, storage.persists)
}

func TestFlattenDeletePreservesGrandchildren(t *testing.T) {
	f, _ := newTestForest(t, sampleNodes()...)
	before := f.Nodes()

	require.NoError(t, f.FlattenDelete(2))

	after := make(map[int64]types.Node)
	for _, n := range f.Nodes() {
		after[n.ID] = n
	}
	_, stillThere := after[2]
	assert.False(t, stillThere)
	assert.Len(t, after, len(before)-1)

	for _, n := range before {
		if n.ID == 2 {
			continue
		}
		want := n.ParentID
		if n.ParentID == 2 {
			want = 1 // node 2's former parent
		}
		assert.Equal(t, want, after[n.ID].ParentID, "node %d", n.ID)
	}
	assert.NoError(t, f.Verify())
}

func TestFlattenDeleteMissingIsNoop(t *testing.T) {
	f, storage := newTestForest(t, sampleNodes()...)

	require.NoError(t, f.FlattenDelete(404))
	assert.Equal(t, sampleNodes(), f.Nodes())
	assert.Zero(t, storage.persists)
}

func TestCloneSubtreeIsomorphism(t *testing.T) {
	f, _ := newTestForest(t, sampleNodes()...)
	srcShape := shape(f, 1)

	id, ok, err := f.CloneSubtree(1, 5)
	require.NoError(t, err)
	require.True(t, ok)

	clone, _ := f.Get(id)
	assert.Equal(t, int64(5), clone.ParentID)

	wantShape := strings.NewReplacer("A", "A (copy)", "B", "B (copy)", "C", "C (copy)",
		"D", "D (copy)", "F", "F (copy)").Replace(srcShape)
	assert.Equal(t, wantShape, shape(f, id))
	assert.Equal(t, "A(B(D(F)) C)", shape(f, 1), "source is untouched")

	ids, err := f.SubtreeIDs(id)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8, 9, 10, 11}, ids, "ids are allocated in pre-order")
	assert.NoError(t, f.Verify())
}

func TestCloneSubtreeMissingSource(t *testing.T) {
	f, storage := newTestForest(t, sampleNodes()...)

	_, ok, err := f.CloneSubtree(404, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, storage.persists)
}

func TestCloneSubtreeIntoOwnDescendant(t *testing.T) {
	f, _ := newTestForest(t,
		types.Node{ID: 1, ParentID: 0, Name: "A"},
		types.Node{ID: 2, ParentID: 1, Name: "B"},
		types.Node{ID: 3, ParentID: 2, Name: "C"},
	)

	id, ok, err := f.CloneSubtree(1, 3)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Len(t, f.Nodes(), 6)
	assert.Equal(t, "A(B(C(A (copy)(B (copy)(C (copy))))))", shape(f, 1))
	assert.Equal(t, int64(4), id)
	assert.NoError(t, f.Verify())
}

func TestDuplicate(t *testing.T) {
	f, _ := newTestForest(t, sampleNodes()...)

	id, ok, err := f.Duplicate(2)
	require.NoError(t, err)
	require.True(t, ok)

	kids := f.ChildrenOf(1)
	assert.Equal(t, []int64{2, 3, id}, nodeIDs(kids), "the copy is appended as the last sibling")
	assert.Equal(t, "B (copy)(D (copy)(F (copy)))", shape(f, id))

	_, ok, err = f.Duplicate(404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMove(t *testing.T) {
	tests := []struct {
		name      string
		id        int64
		newParent int64
		wantErr   error
	}{
		{name: "leaf to another root", id: 6, newParent: 5},
		{name: "inner node to the sentinel", id: 2, newParent: 0},
		{name: "subtree to a sibling", id: 3, newParent: 2},
		{name: "missing node", id: 404, newParent: 0, wantErr: types.ErrNotFound},
		{name: "missing parent", id: 2, newParent: 404, wantErr: types.ErrNotFound},
		{name: "under itself", id: 2, newParent: 2, wantErr: types.ErrCycle},
		{name: "under a child", id: 2, newParent: 4, wantErr: types.ErrCycle},
		{name: "under a deep descendant", id: 1, newParent: 6, wantErr: types.ErrCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, storage := newTestForest(t, sampleNodes()...)

			err := f.Move(tt.id, tt.newParent)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, sampleNodes(), f.Nodes())
				assert.Zero(t, storage.persists)
				return
			}
			require.NoError(t, err)
			n, _ := f.Get(tt.id)
			assert.Equal(t, tt.newParent, n.ParentID)
			assert.Equal(t, 1, storage.persists)
			assert.NoError(t, f.Verify())
		})
	}
}

func TestMoveToCurrentParentDoesNotPersist(t *testing.T) {
	f, storage := newTestForest(t, sampleNodes()...)

	require.NoError(t, f.Move(2, 1))
	assert.Zero(t, storage.persists)
}

func TestRandomMovesStayAcyclic(t *testing.T) {
	f, _ := newTestForest(t)
	rng := rand.New(rand.NewPCG(7, 11))

	for i := range 30 {
		parent := int64(0)
		if i > 0 {
			parent = rng.Int64N(int64(i) + 1)
		}
		_, err := f.Add(parent, fmt.Sprintf("n%d", i))
		require.NoError(t, err)
	}

	for range 300 {
		id := rng.Int64N(30) + 1
		parent := rng.Int64N(31)
		err := f.Move(id, parent)
		if err != nil {
			require.ErrorIs(t, err, types.ErrCycle)
			continue
		}

		nodes := f.Nodes()
		for _, n := range nodes {
			chain, err := f.Ancestors(n.ID)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(chain), len(nodes))
		}
	}
	assert.NoError(t, f.Verify())
}

func TestConcurrentOppositeMoves(t *testing.T) {
	for range 50 {
		f, _ := newTestForest(t,
			types.Node{ID: 1, ParentID: 0, Name: "A"},
			types.Node{ID: 2, ParentID: 0, Name: "B"},
		)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() { defer wg.Done(); errs[0] = f.Move(1, 2) }()
		go func() { defer wg.Done(); errs[1] = f.Move(2, 1) }()
		wg.Wait()

		failed := 0
		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, types.ErrCycle)
				failed++
			}
		}
		assert.Equal(t, 1, failed, "exactly one of two opposite moves must win")
		assert.NoError(t, f.Verify())
	}
}

func TestConcurrentAdds(t *testing.T) {
	f, storage := newTestForest(t)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 10 {
				_, err := f.Add(0, fmt.Sprintf("g%d-%d", i, j))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	nodes := f.Nodes()
	assert.Len(t, nodes, 160)
	assert.Equal(t, nodes, storage.persisted())
	assert.NoError(t, f.Verify())
}

func TestPersistFailureLeavesMemoryUnchanged(t *testing.T) {
	diskFull := errors.New("disk full")

	ops := []struct {
		name string
		run  func(f *Forest) error
	}{
		{name: "add", run: func(f *Forest) error { _, err := f.Add(1, "x"); return err }},
		{name: "rename", run: func(f *Forest) error { _, err := f.Rename(2, "x"); return err }},
		{name: "delete subtree", run: func(f *Forest) error { return f.DeleteSubtree(2) }},
		{name: "flatten delete", run: func(f *Forest) error { return f.FlattenDelete(2) }},
		{name: "clone subtree", run: func(f *Forest) error { _, _, err := f.CloneSubtree(1, 0); return err }},
		{name: "duplicate", run: func(f *Forest) error { _, _, err := f.Duplicate(2); return err }},
		{name: "move", run: func(f *Forest) error { return f.Move(6, 5) }},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			f, storage := newTestForest(t, sampleNodes()...)
			storage.fail(diskFull)

			err := op.run(f)
			assert.ErrorIs(t, err, types.ErrPersistence)
			assert.ErrorIs(t, err, diskFull)
			assert.Equal(t, sampleNodes(), f.Nodes())

			storage.fail(nil)
			id, err := f.Add(0, "after")
			require.NoError(t, err)
			assert.Greater(t, id, int64(6))
		})
	}
}

func TestPersistFailureRetiresAllocatedIDs(t *testing.T) {
	f, storage := newTestForest(t, scenarioNodes()...)

	storage.fail(errors.New("io"))
	_, err := f.Add(0, "lost")
	require.Error(t, err)

	storage.fail(nil)
	id, err := f.Add(0, "kept")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
}

func TestCorruptSnapshotFailsStructurally(t *testing.T) {
	f, storage := newTestForest(t, cyclicNodes()...)

	assert.ErrorIs(t, f.DeleteSubtree(1), types.ErrStructural)
	assert.ErrorIs(t, f.Move(1, 0), types.ErrStructural)
	_, _, err := f.CloneSubtree(2, 0)
	assert.ErrorIs(t, err, types.ErrStructural)
	_, err = f.Stats()
	assert.ErrorIs(t, err, types.ErrStructural)
	assert.ErrorIs(t, f.Verify(), types.ErrStructural)

	assert.Zero(t, storage.persists)
	assert.Equal(t, cyclicNodes(), f.Nodes())
}

func TestStats(t *testing.T) {
	f, _ := newTestForest(t, sampleNodes()...)

	stats, err := f.Stats()
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Nodes)
	assert.Equal(t, 2, stats.Roots)
	assert.Equal(t, 4, stats.MaxDepth)
	assert.Equal(t, int64(6), stats.LastID)
	assert.Empty(t, stats.Revision, "no persist has happened yet")

	_, err = f.Add(0, "x")
	require.NoError(t, err)
	first, err := f.Stats()
	require.NoError(t, err)
	assert.NotEmpty(t, first.Revision)

	_, err = f.Rename(1, "y")
	require.NoError(t, err)
	second, err := f.Stats()
	require.NoError(t, err)
	assert.NotEqual(t, first.Revision, second.Revision)
}

func TestClose(t *testing.T) {
	f, storage := newTestForest(t, scenarioNodes()...)

	require.NoError(t, f.Close())
	require.NoError(t, f.Close(), "close is idempotent")
	assert.True(t, storage.closed)

	_, err := f.Add(0, "late")
	assert.ErrorIs(t, err, types.ErrClosed)
	assert.ErrorIs(t, f.Move(2, 0), types.ErrClosed)

	assert.Len(t, f.Nodes(), 3, "reads keep serving the last state")
}

func TestSnapshotInfo(t *testing.T) {
	f, _ := newTestForest(t)
	info, err := f.SnapshotInfo()
	require.NoError(t, err)
	assert.Equal(t, "memory", info.Backend)
}

func TestRevisionIsPersistedAndReloaded(t *testing.T) {
	storage := &memStorage{nodes: scenarioNodes(), revision: "loaded-rev"}
	f, err := New(storage)
	require.NoError(t, err)
	defer f.Close()

	stats, err := f.Stats()
	require.NoError(t, err)
	assert.Equal(t, "loaded-rev", stats.Revision, "the stored revision is served after load")

	_, err = f.Add(0, "D")
	require.NoError(t, err)
	stats, err = f.Stats()
	require.NoError(t, err)
	assert.NotEqual(t, "loaded-rev", stats.Revision)
	assert.Equal(t, stats.Revision, storage.revision, "the revision is written with the nodes")

	storage.fail(errors.New("disk full"))
	_, err = f.Add(0, "E")
	require.Error(t, err)
	after, err := f.Stats()
	require.NoError(t, err)
	assert.Equal(t, stats.Revision, after.Revision, "a failed persist keeps the previous revision")

	reopened, err := New(&memStorage{nodes: storage.persisted(), revision: storage.revision})
	require.NoError(t, err)
	reloaded, err := reopened.Stats()
	require.NoError(t, err)
	assert.Equal(t, stats.Revision, reloaded.Revision)
}

func TestLogging(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	storage := &memStorage{nodes: scenarioNodes()}
	f, err := New(storage, WithLogger(logger))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Add(1, "D")
	require.NoError(t, err)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "node added", entry.Message)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "forest", entry.Data["component"])
	assert.Equal(t, int64(1), entry.Data["parent_id"])

	storage.fail(errors.New("disk full"))
	require.Error(t, f.Move(2, 3))
	entry = hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "persist failed", entry.Message)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "move", entry.Data["op"])
}

func TestNilLoggerDiscards(t *testing.T) {
	f, err := New(&memStorage{}, WithLogger(nil))
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Add(0, "A")
	assert.NoError(t, err)
}
