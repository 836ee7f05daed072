package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	runMutex sync.RWMutex
	runID    string
	runUUID  string
}

type httpHeaders struct {
	UserAgent     string `json:"user_agent,omitempty"`
	XForwardedFor string `json:"x_forwarded_for,omitempty"`
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	var headers httpHeaders
	if req := conn.Request(); req != nil {
		headers = headersOf(req)
	}

	logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("http_headers", headers).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleSimulate(ctx context.Context, respond ResponseSender, msg Msg) error {
	previous := h.CurrentRun()

	if err := h.Handler.HandleSimulate(ctx, respond, msg); err != nil {
		return err
	}

	run := h.CurrentRun()
	if run == nil || run == previous {
		logs.WithTag(logs.ClientIDTag, h.GetClientID()).
			WithTag("request_id", msg.RequestID).
			Info("client failed to start a simulation run")
		return nil
	}

	runID := h.GetRuns().GlobalRunID(run.ID)

	h.runMutex.Lock()
	h.runID = runID
	h.runUUID = run.RunUUID
	h.runMutex.Unlock()

	logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("run_id", runID).
		WithTag("run_uuid", run.RunUUID).
		WithTag("points", len(run.Points())).
		WithTag("inserted", run.Inserted()).
		Info("client started a simulation run")
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("run_id", h.currentRunID())

	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !errors.Is(err, context.Canceled) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if errors.IsType(err, ErrTypeMsgMalformed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("run_id", h.currentRunID()).
				Debug(err)
		} else if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("run_id", h.currentRunID()).
				Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("run_id", h.currentRunID()).
				WithTag("msg_type", msg.TypeString()).
				Debug("message received")
			h.incCounter(msg.TypeString())
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		msgType := msg.TypeString()

		n, err := sender(msg)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("run_id", h.currentRunID()).
				WithTag("msg_type", msgType).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			logs.WithTag(logs.ClientIDTag, h.GetClientID()).
				WithTag("run_id", h.currentRunID()).
				WithTag("msg_type", msgType).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("run_uuid", h.currentRunUUID()).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}

func (h *handlerWithLogs) currentRunID() string {
	h.runMutex.RLock()
	defer h.runMutex.RUnlock()
	return h.runID
}

func (h *handlerWithLogs) currentRunUUID() string {
	h.runMutex.RLock()
	defer h.runMutex.RUnlock()
	return h.runUUID
}

func headersOf(r *http.Request) httpHeaders {
	return httpHeaders{
		UserAgent:     r.UserAgent(),
		XForwardedFor: r.Header.Get("X-Forwarded-For"),
	}
}
