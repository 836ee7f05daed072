package models

import (
	"time"

	"github.com/aukilabs/quadrant/quadtree"
	"github.com/google/uuid"
)

// Run represents a simulation run: a quadtree built once over a drawing
// surface and the points that were generated for it.
//
// A run is never modified after being created, which makes it safe to query
// from multiple goroutines.
type Run struct {
	ID        uint32
	RunUUID   string
	CreatedAt time.Time

	tree   *quadtree.Tree
	points []quadtree.Point
}

// NewRun creates a run from a fully built tree. Points are all the points the
// tree was fed with, rejected ones included.
func NewRun(id uint32, tree *quadtree.Tree, points []quadtree.Point) *Run {
	return &Run{
		ID:        id,
		RunUUID:   uuid.New().String(),
		CreatedAt: time.Now(),
		tree:      tree,
		points:    points,
	}
}

func (r *Run) Boundary() quadtree.Rectangle {
	return r.tree.Boundary()
}

func (r *Run) Capacity() int {
	return r.tree.Capacity()
}

// Points returns the points generated for the run.
func (r *Run) Points() []quadtree.Point {
	return r.points
}

// Inserted returns the number of points stored in the tree.
func (r *Run) Inserted() int {
	return r.tree.Len()
}

// Rejected returns the number of points the tree did not store.
func (r *Run) Rejected() int {
	return len(r.points) - r.tree.Len()
}

// Query returns the stored points contained by the given range.
func (r *Run) Query(rng quadtree.Rectangle) []quadtree.Point {
	start := time.Now()
	defer instrumentQueryLatency(start)

	return r.tree.Query(rng)
}

// QueryAround returns the range of the given size centered on c and the
// stored points it contains.
func (r *Run) QueryAround(c quadtree.Point, size float64) (quadtree.Rectangle, []quadtree.Point) {
	rng := quadtree.NewRectangleAround(c, size, size)
	return rng, r.Query(rng)
}

// Boundaries returns the boundaries of every tree node.
func (r *Run) Boundaries() []quadtree.Rectangle {
	return r.tree.Boundaries()
}

func (r *Run) Stats() quadtree.Stats {
	return r.tree.Stats()
}
