// Package smoketest checks that a quadrant server answers the reference
// simulation scenario over its WebSocket endpoint.
package smoketest

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/aukilabs/quadrant/simulation"
	qwebsocket "github.com/aukilabs/quadrant/websocket"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"

	defaultTimeout = time.Second * 10
	maxTimeout     = time.Minute
)

const (
	ErrTypeUnexpectedResult = "smoke_test_unexpected_result"
)

// The reference scenario: five points on the diagonal of a 100x100 surface
// with a capacity of 4, and a query range of (0, 0, 25, 25).
var (
	referenceSimulation = simulation.Options{
		Width:    100,
		Height:   100,
		Capacity: 4,
		Points: []quadtree.Point{
			{X: 10, Y: 10},
			{X: 20, Y: 20},
			{X: 30, Y: 30},
			{X: 40, Y: 40},
			{X: 50, Y: 50},
		},
	}

	referencePointerMove = qwebsocket.PointerMove{X: 12.5, Y: 12.5, Size: 25}

	referenceQueryCount = 2
)

// Request is the body of a smoke test request.
type Request struct {
	// The HTTP or WebSocket endpoint of the server to test.
	Endpoint string `json:"endpoint"`

	Timeout time.Duration `json:"timeout,omitempty"`
}

// Results describes the outcome of a smoke test.
type Results struct {
	FromEndpoint    string  `json:"from_endpoint"`
	ToEndpoint      string  `json:"to_endpoint"`
	Status          string  `json:"status"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Error           string  `json:"error,omitempty"`
}

type Options struct {
	// The public endpoint of the server running the smoke test.
	Endpoint string

	UserAgent string

	// Called with the results once a smoke test is over.
	SendResult func(context.Context, Results) error
}

// HandleSmokeTest starts a smoke test against the requested endpoint. The
// test runs in the background and the request is answered immediately.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Endpoint == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		go func() {
			res, err := RunSmokeTest(ctx, RunOptions{
				FromEndpoint: opts.Endpoint,
				ToEndpoint:   req.Endpoint,
				UserAgent:    opts.UserAgent,
				Timeout:      req.Timeout,
			})
			if err != nil {
				logs.Warn(err)
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("from_endpoint", opts.Endpoint).
					WithTag("to_endpoint", req.Endpoint).
					Warn(errors.New("sending smoke test result failed").Wrap(err))
			}
		}()

		w.WriteHeader(http.StatusOK)
	}
}

type RunOptions struct {
	FromEndpoint string
	ToEndpoint   string
	UserAgent    string
	Timeout      time.Duration
}

// RunSmokeTest runs the reference scenario against the given endpoint. The
// returned results are filled even when an error is returned.
func RunSmokeTest(ctx context.Context, opts RunOptions) (Results, error) {
	res := Results{
		FromEndpoint: opts.FromEndpoint,
		ToEndpoint:   opts.ToEndpoint,
		Status:       StatusFailed,
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	timeout = min(timeout, maxTimeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := runScenario(ctx, opts); err != nil {
		err = errors.New("smoke test failed").
			WithTag("from_endpoint", opts.FromEndpoint).
			WithTag("to_endpoint", opts.ToEndpoint).
			Wrap(err)
		res.Error = err.Error()
		return res, err
	}

	res.Status = StatusSuccess
	res.LatencyMilliSec = float64(time.Since(start).Microseconds()) / 1000
	return res, nil
}

func runScenario(ctx context.Context, opts RunOptions) error {
	wsURL, origin, err := websocketURL(opts.ToEndpoint)
	if err != nil {
		return err
	}

	config, err := websocket.NewConfig(wsURL, origin)
	if err != nil {
		return errors.New("creating websocket config failed").Wrap(err)
	}
	if opts.UserAgent != "" {
		config.Header.Set("User-Agent", opts.UserAgent)
	}

	conn, err := config.DialContext(ctx)
	if err != nil {
		return errors.New("dialing websocket failed").Wrap(err)
	}
	defer conn.Close()

	return qwebsocket.NewScenario(conn).
		Send(qwebsocket.MsgTypeSimulateRequest, 1, referenceSimulation).
		Receive(
			qwebsocket.FilterByRequestID(1),
			expectType(qwebsocket.MsgTypeSimulateResponse),
		).
		Send(qwebsocket.MsgTypePointerMove, 2, referencePointerMove).
		Receive(
			qwebsocket.FilterByRequestID(2),
			expectType(qwebsocket.MsgTypeQueryResponse),
			func(msg qwebsocket.Msg) error {
				var res models.QueryResult
				if err := msg.DataTo(&res); err != nil {
					return err
				}

				if len(res.Points) != referenceQueryCount {
					return errors.New("unexpected query result").
						WithType(ErrTypeUnexpectedResult).
						WithTag("expected", referenceQueryCount).
						WithTag("points", len(res.Points))
				}
				return nil
			},
		).
		Run(ctx)
}

// expectType fails on a message that answers the request with another type,
// such as an error response.
func expectType(t qwebsocket.MsgType) qwebsocket.Filter {
	return func(msg qwebsocket.Msg) error {
		if msg.Type == t {
			return nil
		}

		err := errors.New("unexpected response").
			WithType(ErrTypeUnexpectedResult).
			WithTag("expected", t).
			WithTag("msg_type", msg.Type)

		var res qwebsocket.ErrorResponse
		if msg.Type == qwebsocket.MsgTypeErrorResponse && msg.DataTo(&res) == nil {
			err = err.WithTag("code", res.Code).WithTag("message", res.Message)
		}
		return err
	}
}

func websocketURL(endpoint string) (string, string, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return "", "", errors.New("invalid endpoint").
			WithTag("endpoint", endpoint).
			Wrap(err)
	}

	origin := *u
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
		origin.Scheme = "http"

	case "https", "wss":
		u.Scheme = "wss"
		origin.Scheme = "https"

	default:
		return "", "", errors.New("unsupported endpoint scheme").
			WithTag("endpoint", endpoint)
	}

	origin.Path = ""
	origin.RawQuery = ""
	return u.String(), origin.String(), nil
}
