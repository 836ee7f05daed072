package models

import (
	"context"
	"testing"

	"github.com/aukilabs/quadrant/quadtree"
	"github.com/stretchr/testify/require"
)

func newTestRun(t *testing.T, id uint32, points ...quadtree.Point) *Run {
	tree, err := quadtree.New(quadtree.Rectangle{X: 0, Y: 0, W: 100, H: 100}, 4)
	require.NoError(t, err)

	for _, p := range points {
		tree.Insert(p)
	}
	return NewRun(id, tree, points)
}

func TestNewRun(t *testing.T) {
	run := newTestRun(t, 42,
		quadtree.Point{X: 10, Y: 10},
		quadtree.Point{X: 20, Y: 20},
		quadtree.Point{X: 200, Y: 20},
	)

	require.Equal(t, uint32(42), run.ID)
	require.NotEmpty(t, run.RunUUID)
	require.False(t, run.CreatedAt.IsZero())
	require.Equal(t, quadtree.Rectangle{X: 0, Y: 0, W: 100, H: 100}, run.Boundary())
	require.Equal(t, 4, run.Capacity())
	require.Len(t, run.Points(), 3)
	require.Equal(t, 2, run.Inserted())
	require.Equal(t, 1, run.Rejected())
	require.Equal(t, 2, run.Stats().Points)
	require.Len(t, run.Boundaries(), 1)
}

func TestRunQueryAround(t *testing.T) {
	run := newTestRun(t, 1,
		quadtree.Point{X: 10, Y: 10},
		quadtree.Point{X: 20, Y: 20},
		quadtree.Point{X: 30, Y: 30},
		quadtree.Point{X: 40, Y: 40},
		quadtree.Point{X: 50, Y: 50},
	)

	rng, points := run.QueryAround(quadtree.Point{X: 12.5, Y: 12.5}, 25)
	require.Equal(t, quadtree.Rectangle{X: 0, Y: 0, W: 25, H: 25}, rng)
	require.Equal(t, []quadtree.Point{{X: 10, Y: 10}, {X: 20, Y: 20}}, points)

	_, points = run.QueryAround(quadtree.Point{X: 90, Y: 10}, 10)
	require.NotNil(t, points)
	require.Empty(t, points)
}

func TestRunStoreAdd(t *testing.T) {
	var store RunStore
	run := newTestRun(t, store.NewID())

	err := store.Add(context.Background(), run)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	r, ok := store.Get(store.GlobalRunID(run.ID))
	require.True(t, ok)
	require.Equal(t, run, r)
}

func TestRunStoreGlobalRunID(t *testing.T) {
	t.Run("default server id", func(t *testing.T) {
		var store RunStore
		require.Equal(t, "quadrantx2a", store.GlobalRunID(42))
	})

	t.Run("custom server id", func(t *testing.T) {
		store := RunStore{ServerID: "ted"}
		require.Equal(t, "tedx2a", store.GlobalRunID(42))
	})
}

func TestRunStoreRemove(t *testing.T) {
	var store RunStore
	run := newTestRun(t, store.NewID())

	require.NoError(t, store.Add(context.Background(), run))
	store.Remove(context.Background(), run)
	require.Zero(t, store.Len())

	_, ok := store.Get(store.GlobalRunID(run.ID))
	require.False(t, ok)

	t.Run("removed id is reused", func(t *testing.T) {
		require.Equal(t, run.ID, store.NewID())
	})

	t.Run("removing a run replaced under the same id is a no-op", func(t *testing.T) {
		replacement := newTestRun(t, run.ID)
		require.NoError(t, store.Add(context.Background(), replacement))

		store.Remove(context.Background(), run)
		r, ok := store.Get(store.GlobalRunID(run.ID))
		require.True(t, ok)
		require.Equal(t, replacement, r)
	})
}

func TestRunStoreEviction(t *testing.T) {
	store := RunStore{MaxRuns: 2}

	runs := make([]*Run, 3)
	for i := range runs {
		runs[i] = newTestRun(t, store.NewID())
		require.NoError(t, store.Add(context.Background(), runs[i]))
	}

	require.Equal(t, 2, store.Len())
	require.Equal(t, []*Run{runs[1], runs[2]}, store.List())

	_, ok := store.Get(store.GlobalRunID(runs[0].ID))
	require.False(t, ok)
}

func TestRunStoreList(t *testing.T) {
	var store RunStore
	require.Empty(t, store.List())

	a := newTestRun(t, store.NewID())
	b := newTestRun(t, store.NewID())
	require.NoError(t, store.Add(context.Background(), a))
	require.NoError(t, store.Add(context.Background(), b))

	require.Equal(t, []*Run{a, b}, store.List())
}
