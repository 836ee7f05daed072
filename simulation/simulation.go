package simulation

import (
	"math/rand"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
)

const (
	// The node capacity used when none is given.
	DefaultCapacity = 4

	// Bounds of the random point count used when none is given.
	MinRandomPointCount = 50
	MaxRandomPointCount = 200
)

const (
	ErrTypeTooManyPoints = "too_many_points"
)

// Options describes a simulation run.
type Options struct {
	// The drawing surface size. The root boundary is (0, 0, Width, Height).
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// The node capacity. Defaults to DefaultCapacity.
	Capacity int `json:"capacity,omitempty"`

	// The maximum node depth. 0 means no limit.
	MaxDepth int `json:"max_depth,omitempty"`

	// The number of generated points. A random count within
	// [MinRandomPointCount, MaxRandomPointCount) is used when 0.
	PointCount int `json:"point_count,omitempty"`

	Distribution Distribution `json:"distribution,omitempty"`

	// The random seed. A time based seed is used when 0.
	Seed int64 `json:"seed,omitempty"`

	// Caller provided points. Generation is skipped when set.
	Points []quadtree.Point `json:"points,omitempty"`
}

// Limits bounds what a caller can ask for.
type Limits struct {
	MaxPoints   int
	MaxDepth    int
	MaxCapacity int
}

// WithDefaults returns a copy of the options where unset fields are filled.
func (o Options) WithDefaults(l Limits) Options {
	if o.Capacity == 0 {
		o.Capacity = DefaultCapacity
	}
	if o.MaxDepth == 0 {
		o.MaxDepth = l.MaxDepth
	}
	if o.Distribution == "" {
		o.Distribution = DistributionUniform
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Validate checks the options against the given limits. 0 limits are
// ignored.
func (o Options) Validate(l Limits) error {
	if !(quadtree.Rectangle{W: o.Width, H: o.Height}).Valid() {
		return errors.New("width and height must be positive").
			WithType(quadtree.ErrTypeInvalidConfiguration).
			WithTag("width", o.Width).
			WithTag("height", o.Height)
	}

	if o.Capacity < 1 || (l.MaxCapacity > 0 && o.Capacity > l.MaxCapacity) {
		return errors.New("invalid capacity").
			WithType(quadtree.ErrTypeInvalidConfiguration).
			WithTag("capacity", o.Capacity).
			WithTag("max_capacity", l.MaxCapacity)
	}

	if o.MaxDepth < 0 || (l.MaxDepth > 0 && o.MaxDepth > l.MaxDepth) {
		return errors.New("invalid max depth").
			WithType(quadtree.ErrTypeInvalidConfiguration).
			WithTag("max_depth", o.MaxDepth).
			WithTag("limit", l.MaxDepth)
	}

	if o.PointCount < 0 {
		return errors.New("point count must not be negative").
			WithType(quadtree.ErrTypeInvalidConfiguration).
			WithTag("point_count", o.PointCount)
	}

	if !o.Distribution.valid() {
		return errors.New("unknown distribution").
			WithType(quadtree.ErrTypeInvalidConfiguration).
			WithTag("distribution", o.Distribution)
	}

	if l.MaxPoints > 0 {
		if n := max(o.PointCount, len(o.Points)); n > l.MaxPoints {
			return errors.New("too many points").
				WithType(ErrTypeTooManyPoints).
				WithTag("point_count", n).
				WithTag("max_points", l.MaxPoints)
		}
	}
	return nil
}

// Build creates a run: it builds a quadtree over the drawing surface and
// inserts every generated or given point.
func Build(id uint32, opts Options, l Limits) (*models.Run, error) {
	opts = opts.WithDefaults(l)
	if err := opts.Validate(l); err != nil {
		return nil, err
	}

	start := time.Now()

	tree, err := quadtree.New(
		quadtree.Rectangle{X: 0, Y: 0, W: opts.Width, H: opts.Height},
		opts.Capacity,
		quadtree.WithMaxDepth(opts.MaxDepth),
	)
	if err != nil {
		return nil, errors.New("creating quadtree failed").Wrap(err)
	}

	points := opts.Points
	if len(points) == 0 {
		r := rand.New(rand.NewSource(opts.Seed))

		count := opts.PointCount
		if count == 0 {
			count = MinRandomPointCount + r.Intn(MaxRandomPointCount-MinRandomPointCount)
		}
		points = Generate(r, opts.Distribution, opts.Width, opts.Height, count)
	}

	for _, p := range points {
		if err := tree.TryInsert(p); err != nil {
			instrumentPointRejected(err)
			logs.WithTag("run_id", id).Debug(err)
		}
	}

	run := models.NewRun(id, tree, points)
	stats := tree.Stats()
	instrumentRunBuilt(opts.Distribution, stats, start)

	logs.WithTag("run_id", id).
		WithTag("run_uuid", run.RunUUID).
		WithTag("boundary", tree.Boundary().String()).
		WithTag("capacity", opts.Capacity).
		WithTag("distribution", opts.Distribution).
		WithTag("inserted", stats.Points).
		WithTag("rejected", stats.Rejected).
		WithTag("nodes", stats.Nodes).
		WithTag("depth", stats.Depth).
		WithTag("duration", time.Since(start)).
		Info("simulation run built")

	return run, nil
}
