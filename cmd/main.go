package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/quadrant/featureflag"
	qhttp "github.com/aukilabs/quadrant/http"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/simulation"
	"github.com/aukilabs/quadrant/smoketest"
	qwebsocket "github.com/aukilabs/quadrant/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The quadrant version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "quadrant_info",
		Help:        "Quadrant information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"QUADRANT_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"QUADRANT_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string        `cli:""        env:"QUADRANT_PUBLIC_ENDPOINT"      help:"The public endpoint where this quadrant server is reachable."`
	ServerID           string        `cli:""        env:"QUADRANT_SERVER_ID"            help:"The id prefixed to run ids."`
	LogLevel           string        `cli:""        env:"QUADRANT_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"QUADRANT_LOG_INDENT"           help:"Indent logs."`
	SyncClockInterval  time.Duration `cli:",hidden" env:"QUADRANT_SYNC_CLOCK_INTERVAL"  help:"Client sync clock (heartbeat) message interval."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"QUADRANT_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected"`
	LogSummaryInterval time.Duration `cli:",hidden" env:"QUADRANT_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	SmokeTestToken     string        `cli:",hidden" env:"QUADRANT_SMOKE_TEST_TOKEN"     help:"Bearer token required by the smoke test endpoint. The endpoint is disabled when empty."`
	Simulation         simConfig     `cli:""        env:"-"                             help:"Simulation configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                             help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"QUADRANT_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                             help:"Show version."`
	Help               bool          `cli:""        env:"-"                             help:"Show help."`
}

type simConfig struct {
	MaxDepth       int     `cli:"" env:"QUADRANT_SIMULATION_MAX_DEPTH"        help:"The maximum depth of quadtree nodes."`
	MaxCapacity    int     `cli:"" env:"QUADRANT_SIMULATION_MAX_CAPACITY"     help:"The maximum node capacity a client can request."`
	MaxPoints      int     `cli:"" env:"QUADRANT_SIMULATION_MAX_POINTS"       help:"The maximum number of points of a run."`
	MaxRuns        int     `cli:"" env:"QUADRANT_SIMULATION_MAX_RUNS"         help:"The maximum number of stored runs. The oldest run is evicted when the limit is reached."`
	QueryRangeSize float64 `cli:"" env:"QUADRANT_SIMULATION_QUERY_RANGE_SIZE" help:"The side of the query range centered on the pointer."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"QUADRANT_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"QUADRANT_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"QUADRANT_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"QUADRANT_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		PublicEndpoint:     "http://localhost:4000",
		LogLevel:           logs.InfoLevel.String(),
		SyncClockInterval:  time.Second * 5,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Simulation: simConfig{
			MaxDepth:       32,
			MaxCapacity:    256,
			MaxPoints:      100000,
			MaxRuns:        1024,
			QueryRangeSize: qwebsocket.DefaultQueryRangeSize,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts quadrant server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "quadrant",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	runs := models.RunStore{
		ServerID: conf.ServerID,
		MaxRuns:  conf.Simulation.MaxRuns,
	}
	limits := simulation.Limits{
		MaxPoints:   conf.Simulation.MaxPoints,
		MaxDepth:    conf.Simulation.MaxDepth,
		MaxCapacity: conf.Simulation.MaxCapacity,
	}
	featureFlags := featureflag.New(conf.FeatureFlags)

	var service http.ServeMux

	api := qhttp.RunAPI{
		Runs:           &runs,
		Limits:         limits,
		QueryRangeSize: conf.Simulation.QueryRangeSize,
		FeatureFlags:   featureFlags,
	}
	var apiMux http.ServeMux
	api.Register(&apiMux)

	service.Handle("/runs", qhttp.HandleWithCORS(&apiMux))
	service.Handle("/runs/", qhttp.HandleWithCORS(&apiMux))
	service.Handle("/health", qhttp.HandleWithCORS(http.HandlerFunc(qhttp.HandleHealthCheck)))
	service.Handle("/version", qhttp.HandleWithCORS(http.HandlerFunc(qhttp.HandleVersion(version))))

	readinessCheck := func() bool {
		return ctx.Err() == nil
	}
	service.Handle("/ready", qhttp.HandleWithCORS(http.HandlerFunc(qhttp.HandleReadyCheck(readinessCheck))))

	service.HandleFunc("/smoke-test", qhttp.VerifyAuthTokenHandler(conf.SmokeTestToken, smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("Quadrant %s", version),
		SendResult: func(ctx context.Context, res smoketest.Results) error {
			logs.WithTag("from_endpoint", res.FromEndpoint).
				WithTag("to_endpoint", res.ToEndpoint).
				WithTag("status", res.Status).
				WithTag("latency_ms", res.LatencyMilliSec).
				WithTag("error", res.Error).
				Info("smoke test completed")
			return nil
		},
	})))

	service.Handle("/", qhttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var rh qwebsocket.Handler = &qwebsocket.RealtimeHandler{
				ClientSyncClockInterval: conf.SyncClockInterval,
				ClientIdleTimeout:       conf.ClientIdleTimeout,
				Runs:                    &runs,
				Limits:                  limits,
				QueryRangeSize:          conf.Simulation.QueryRangeSize,
				FeatureFlags:            featureFlags,
			}
			h := qwebsocket.HandlerWithLogs(rh, conf.LogSummaryInterval)
			h = qwebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			qwebsocket.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", qhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", qhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("max_depth", conf.Simulation.MaxDepth).
		WithTag("max_runs", conf.Simulation.MaxRuns).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting quadrant server")

	qhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			qhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.SyncClockInterval <= 0 {
		return errors.New("sync clock interval must be positive").
			WithTag("sync_clock_interval", conf.SyncClockInterval)
	}

	if conf.ClientIdleTimeout <= 0 {
		return errors.New("client idle timeout must be positive").
			WithTag("client_idle_timeout", conf.ClientIdleTimeout)
	}

	if conf.LogSummaryInterval <= 0 {
		return errors.New("log summary interval must be positive").
			WithTag("log_summary_interval", conf.LogSummaryInterval)
	}

	if conf.Simulation.MaxDepth < 0 ||
		conf.Simulation.MaxCapacity < 0 ||
		conf.Simulation.MaxPoints < 0 ||
		conf.Simulation.MaxRuns < 0 {
		return errors.New("simulation limits must not be negative").
			WithTag("simulation", conf.Simulation)
	}

	if conf.Simulation.QueryRangeSize <= 0 {
		return errors.New("query range size must be positive").
			WithTag("query_range_size", conf.Simulation.QueryRangeSize)
	}

	return nil
}
