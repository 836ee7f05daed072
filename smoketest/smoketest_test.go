package smoketest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qhttp "github.com/aukilabs/quadrant/http"
	"github.com/aukilabs/quadrant/models"
	qwebsocket "github.com/aukilabs/quadrant/websocket"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newTestServer(t *testing.T, newHandler func() qwebsocket.Handler) *httptest.Server {
	server := httptest.NewServer(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			h := newHandler()
			defer h.Close()

			qwebsocket.Handle(context.Background(), conn, h)
		},
	})
	t.Cleanup(server.Close)
	return server
}

func newRealtimeHandler() qwebsocket.Handler {
	return &qwebsocket.RealtimeHandler{
		ClientSyncClockInterval: time.Millisecond * 10,
		ClientIdleTimeout:       time.Minute,
		Runs:                    &models.RunStore{},
	}
}

// brokenHandler answers pointer moves with the points of the whole surface.
type brokenHandler struct {
	*qwebsocket.RealtimeHandler
}

func (h brokenHandler) HandlePointerMove(ctx context.Context, respond qwebsocket.ResponseSender, msg qwebsocket.Msg) error {
	run := h.CurrentRun()
	respond.Send(qwebsocket.MsgTypeQueryResponse, msg.RequestID, models.QueryResult{
		Range:  run.Boundary(),
		Points: run.Points(),
	})
	return nil
}

func smokeTest(t *testing.T, endpoint string, timeout time.Duration) Results {
	results := make(chan Results, 1)

	h := HandleSmokeTest(context.Background(), Options{
		Endpoint:  "http://localquadrant",
		UserAgent: "quadrant test",
		SendResult: func(_ context.Context, res Results) error {
			results <- res
			return nil
		},
	})

	body, err := json.Marshal(Request{
		Endpoint: endpoint,
		Timeout:  timeout,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "http://localquadrant/smoke-test", bytes.NewBuffer(body))
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case res := <-results:
		return res
	case <-time.After(time.Second * 5):
		t.Fatal("smoke test result not sent")
		return Results{}
	}
}

func TestSmokeTest(t *testing.T) {
	t.Run("smoke test success", func(t *testing.T) {
		server := newTestServer(t, newRealtimeHandler)

		res := smokeTest(t, server.URL, time.Second)
		require.Equal(t, "http://localquadrant", res.FromEndpoint)
		require.Equal(t, server.URL, res.ToEndpoint)
		require.Equal(t, StatusSuccess, res.Status)
		require.Greater(t, res.LatencyMilliSec, float64(0))
		require.Empty(t, res.Error)
	})

	t.Run("smoke test failed - unexpected result", func(t *testing.T) {
		server := newTestServer(t, func() qwebsocket.Handler {
			return brokenHandler{
				RealtimeHandler: newRealtimeHandler().(*qwebsocket.RealtimeHandler),
			}
		})

		res := smokeTest(t, server.URL, time.Second)
		require.Equal(t, StatusFailed, res.Status)
		require.Zero(t, res.LatencyMilliSec)
		require.Contains(t, res.Error, "unexpected query result")
	})

	t.Run("smoke test failed - offline", func(t *testing.T) {
		res := smokeTest(t, "http://127.0.0.1:1", time.Second)
		require.Equal(t, "http://127.0.0.1:1", res.ToEndpoint)
		require.Equal(t, StatusFailed, res.Status)
		require.Zero(t, res.LatencyMilliSec)
		require.NotEmpty(t, res.Error)
	})

	t.Run("unauthorized", func(t *testing.T) {
		h := qhttp.VerifyAuthTokenHandler("secret", HandleSmokeTest(context.Background(), Options{
			SendResult: func(context.Context, Results) error {
				t.Error("no smoke test should run")
				return nil
			},
		}))

		body := `{"endpoint":"http://169.254.169.254"}`

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(body)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		req := httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(body))
		req.Header.Set("Authorization", "Bearer guess")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		req = httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(`{}`))
		req.Header.Set("Authorization", "Bearer secret")
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad request", func(t *testing.T) {
		h := HandleSmokeTest(context.Background(), Options{
			SendResult: func(context.Context, Results) error {
				t.Error("no smoke test should run")
				return nil
			},
		})

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/smoke-test", bytes.NewBufferString(`{}`)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		endpoint       string
		expectedURL    string
		expectedOrigin string
		expectedErr    bool
	}{
		{
			endpoint:       "http://localhost:4000",
			expectedURL:    "ws://localhost:4000",
			expectedOrigin: "http://localhost:4000",
		},
		{
			endpoint:       "https://quadrant.example.com/ws",
			expectedURL:    "wss://quadrant.example.com/ws",
			expectedOrigin: "https://quadrant.example.com",
		},
		{
			endpoint:       "ws://localhost:4000",
			expectedURL:    "ws://localhost:4000",
			expectedOrigin: "http://localhost:4000",
		},
		{
			endpoint:    "ftp://localhost",
			expectedErr: true,
		},
		{
			endpoint:    "localhost",
			expectedErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.endpoint, func(t *testing.T) {
			u, origin, err := websocketURL(test.endpoint)
			if test.expectedErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expectedURL, u)
			require.Equal(t, test.expectedOrigin, origin)
		})
	}
}
