package registry

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-describe/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(log.NewLogger(log.DiscardHandler()))
}

func TestPushSuite_Root(t *testing.T) {
	r := newTestRegistry()
	start := time.Unix(100, 0)

	s := r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, start)
	require.NotNil(t, s)
	assert.Empty(t, s.Children)
	assert.Empty(t, s.Tests)
	assert.Equal(t, start, s.StartTime)
	assert.Nil(t, s.Parent)

	got, ok := r.GetSuite("a")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Len())
	assert.Contains(t, r.SuiteStack(), "a")
}

func TestPushSuite_Child(t *testing.T) {
	r := newTestRegistry()
	a := r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})
	b := r.PushSuite(types.SuiteParams{Name: "B", ID: "b", ParentID: "a"}, time.Time{})

	require.Len(t, a.Children, 1)
	assert.Same(t, b, a.Children[0])
	assert.Same(t, a, b.Parent)
	assert.Equal(t, 1, b.Depth)
	assert.Len(t, r.Roots(), 1, "children are not roots")
	assert.NotContains(t, r.SuiteStack(), "b")
}

func TestPushSuite_DuplicateRootID(t *testing.T) {
	var buf bytes.Buffer
	r := NewRegistry(log.NewLogger(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

	first := r.PushSuite(types.SuiteParams{Name: "S1", ID: "X"}, time.Time{})
	second := r.PushSuite(types.SuiteParams{Name: "S2", ID: "X"}, time.Time{})
	third := r.PushSuite(types.SuiteParams{Name: "S2", ID: "X"}, time.Time{})

	assert.Equal(t, "X", first.ID)
	assert.Equal(t, "S2X", second.ID)
	assert.Equal(t, "S2X-2", third.ID)

	got, ok := r.GetSuite("X")
	require.True(t, ok)
	assert.Same(t, first, got, "original stays reachable under its id")

	got, ok = r.GetSuite("S2X")
	require.True(t, ok)
	assert.Same(t, second, got)

	assert.Len(t, r.Roots(), 3)
	assert.Len(t, r.Warnings(), 2)
	assert.Contains(t, buf.String(), "There is already a suite with the ID")
}

func TestPushSuite_MissingParentBecomesRoot(t *testing.T) {
	r := newTestRegistry()
	r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})

	orphan := r.PushSuite(types.SuiteParams{Name: "O", ID: "a", ParentID: "missing"}, time.Time{})
	assert.Nil(t, orphan.Parent)
	assert.Equal(t, "Oa", orphan.ID, "an orphan still goes through the collision check")
	assert.Len(t, r.Roots(), 2)
}

func TestGetSuite_RandomDepth(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		r := newTestRegistry()
		depth := rng.Intn(12) + 1

		// A few unrelated roots around the chain
		for i := 0; i < rng.Intn(4); i++ {
			r.PushSuite(types.SuiteParams{Name: "noise", ID: fmt.Sprintf("noise-%d", i)}, time.Time{})
		}

		parent := ""
		var last *types.Suite
		for k := 0; k < depth; k++ {
			id := fmt.Sprintf("t%d-d%d", trial, k)
			last = r.PushSuite(types.SuiteParams{Name: id, ID: id, ParentID: parent}, time.Time{})
			parent = id
		}

		got, ok := r.GetSuite(parent)
		require.True(t, ok, "depth %d", depth)
		assert.Same(t, last, got)
		assert.Equal(t, depth-1, got.Depth)

		searched, ok := r.Search(parent)
		require.True(t, ok)
		assert.Same(t, got, searched, "index and depth-first search agree")
	}
}

func TestGetSuite_NotFound(t *testing.T) {
	r := newTestRegistry()
	r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})

	_, ok := r.GetSuite("nope")
	assert.False(t, ok)
	_, ok = r.Search("nope")
	assert.False(t, ok)
}

func TestAddTestToSuite_AppendsInOrder(t *testing.T) {
	r := newTestRegistry()
	s := r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})

	for i := 0; i < 5; i++ {
		r.AddTestToSuite(s, &types.Case{Name: fmt.Sprintf("c%d", i), Status: types.CaseStatusPassed})
		require.Len(t, s.Tests, i+1)
		assert.Equal(t, fmt.Sprintf("c%d", i), s.Tests[i].Name)
	}
}

func TestAddTestToSuite_Concurrent(t *testing.T) {
	r := newTestRegistry()
	s := r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.AddTestToSuite(s, &types.Case{Name: fmt.Sprintf("c%d", i)})
		}(i)
	}
	wg.Wait()

	r.View(func(roots []*types.Suite) {
		assert.Len(t, roots[0].Tests, 100)
	})
}

func TestFinishSuiteAndWalk(t *testing.T) {
	r := newTestRegistry()
	a := r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})
	r.PushSuite(types.SuiteParams{Name: "B", ID: "b", ParentID: "a"}, time.Time{})
	r.PushSuite(types.SuiteParams{Name: "C", ID: "c"}, time.Time{})

	r.FinishSuite(a, 2*time.Second, assert.AnError)
	assert.Equal(t, 2*time.Second, a.Duration)
	assert.ErrorIs(t, a.Error, assert.AnError)

	var ids []string
	r.Walk(func(s *types.Suite) bool {
		ids = append(ids, s.ID)
		return true
	})
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestSnapshot_IsDetached(t *testing.T) {
	r := newTestRegistry()
	a := r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})
	r.PushSuite(types.SuiteParams{Name: "B", ID: "b", ParentID: "a"}, time.Time{})
	r.AddTestToSuite(a, &types.Case{Name: "t1", Status: types.CaseStatusPassed})

	snap := r.Snapshot()
	require.Len(t, snap, 1)
	require.Len(t, snap[0].Children, 1)
	assert.Same(t, snap[0], snap[0].Children[0].Parent)
	assert.Equal(t, "A > B", snap[0].Children[0].GetPath())

	// Later registrations do not leak into the copy
	r.AddTestToSuite(a, &types.Case{Name: "t2"})
	r.PushSuite(types.SuiteParams{Name: "C", ID: "c", ParentID: "a"}, time.Time{})
	assert.Len(t, snap[0].Tests, 1)
	assert.Len(t, snap[0].Children, 1)
	assert.Len(t, a.Tests, 2)
}

func TestReset(t *testing.T) {
	r := newTestRegistry()
	r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})
	r.PushSuite(types.SuiteParams{Name: "A", ID: "a"}, time.Time{})
	require.Len(t, r.Warnings(), 1)

	r.Reset()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Roots())
	assert.Empty(t, r.Warnings())
	_, ok := r.GetSuite("a")
	assert.False(t, ok)
}
