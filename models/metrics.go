package models

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "run_count",
		Help: "The number of stored simulation runs.",
	})

	runCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "run_count_total",
		Help: "The total number of simulation runs.",
	})

	runQueryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "run_query_latency",
		Help:    "The time to answer a range query.",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10),
	})
)

func instrumentIncreaseRunGauge() {
	runCount.Inc()
}

func instrumentDecreaseRunGauge() {
	runCount.Dec()
}

func instrumentCountRun() {
	runCountTotal.Inc()
}

func instrumentQueryLatency(start time.Time) {
	runQueryLatency.Observe(time.Since(start).Seconds())
}
