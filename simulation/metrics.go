package simulation

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	distributionLabel = "distribution"
	errTypeLabel      = "error_type"
)

var (
	runBuildLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "run_build_latency",
		Help: "The time to generate the points of a run and build its quadtree.",
	}, []string{
		distributionLabel,
	})

	pointsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_points_inserted",
		Help: "The number of points stored in quadtrees.",
	})

	pointsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_points_rejected",
		Help: "The number of points quadtrees did not store.",
	}, []string{
		errTypeLabel,
	})

	subdivisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quadtree_subdivisions",
		Help: "The number of quadtree node subdivisions.",
	})

	treeDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quadtree_depth",
		Help:    "The depth of built quadtrees.",
		Buckets: prometheus.LinearBuckets(0, 2, 16),
	})
)

func instrumentRunBuilt(d Distribution, stats quadtree.Stats, start time.Time) {
	runBuildLatency.With(prometheus.Labels{
		distributionLabel: string(d),
	}).Observe(time.Since(start).Seconds())

	pointsInserted.Add(float64(stats.Points))
	subdivisions.Add(float64(stats.Subdivisions))
	treeDepth.Observe(float64(stats.Depth))
}

func instrumentPointRejected(err error) {
	pointsRejected.
		With(prometheus.Labels{
			errTypeLabel: errors.Type(err),
		}).
		Inc()
}
