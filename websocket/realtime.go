package websocket

import (
	"context"
	"math"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadrant/featureflag"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/aukilabs/quadrant/simulation"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

const (
	// The header used to identify a client. A random id is used when it is
	// missing.
	HeaderClientID = "X-Quadrant-Client-Id"

	// The side of the query range used when a pointer move gives none.
	DefaultQueryRangeSize = 80
)

// PointerMove is the data of a pointer move message.
type PointerMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// The side of the square range centered on the pointer.
	Size float64 `json:"size,omitempty"`
}

// BoundariesResponse is the data of a boundaries response.
type BoundariesResponse struct {
	Boundaries []quadtree.Rectangle `json:"boundaries"`
}

// RealtimeHandler represents a service that runs a simulation for a client
// and answers its pointer moves in realtime.
type RealtimeHandler struct {
	// The interval between each sync clock message sent to the connected
	// client.
	ClientSyncClockInterval time.Duration

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server runs.
	Runs *models.RunStore

	// The limits applied to requested simulations.
	Limits simulation.Limits

	// The side of the query range used when a pointer move gives none.
	QueryRangeSize float64

	FeatureFlags featureflag.FeatureFlag

	conn       *websocket.Conn
	currentRun *models.Run
	clientID   string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = uuid.NewString()
	if req := conn.Request(); req != nil {
		if id := req.Header.Get(HeaderClientID); id != "" {
			h.clientID = id
		}
	}

	h.conn = conn
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(MsgTypePingResponse, msg.RequestID, nil)
	return nil
}

func (h *RealtimeHandler) HandleSimulate(ctx context.Context, respond ResponseSender, msg Msg) error {
	var opts simulation.Options
	if err := msg.DataTo(&opts); err != nil {
		return err
	}

	var callerPointsDisabled bool
	h.FeatureFlags.IfSet(featureflag.FlagDisableCallerPoints, func() {
		callerPointsDisabled = len(opts.Points) != 0
	})
	if callerPointsDisabled {
		respond.Send(MsgTypeErrorResponse, msg.RequestID, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: "caller points are disabled",
		})
		return nil
	}

	id := h.Runs.NewID()
	run, err := simulation.Build(id, opts, h.Limits)
	if err != nil {
		h.Runs.ReleaseID(id)
		respond.Send(MsgTypeErrorResponse, msg.RequestID, ErrorResponse{
			Code:    ErrorCode(err),
			Message: err.Error(),
		})
		return nil
	}

	if err := h.Runs.Add(ctx, run); err != nil {
		h.Runs.ReleaseID(id)
		logs.WithTag(logs.ClientIDTag, h.clientID).Error(errors.New("adding run failed").Wrap(err))
		respond.Send(MsgTypeErrorResponse, msg.RequestID, ErrorResponse{
			Code: ErrCodeInternalError,
		})
		return nil
	}

	if h.currentRun != nil {
		h.Runs.Remove(ctx, h.currentRun)
	}
	h.currentRun = run

	respond.Send(MsgTypeSimulateResponse, msg.RequestID, h.Runs.Document(run, h.FeatureFlags.DocumentOptions()))
	return nil
}

func (h *RealtimeHandler) HandlePointerMove(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req PointerMove
	if err := msg.DataTo(&req); err != nil {
		return err
	}

	run := h.currentRun
	if run == nil {
		respond.Send(MsgTypeErrorResponse, msg.RequestID, ErrorResponse{
			Code:    ErrCodeRunNotStarted,
			Message: "no simulation run is started",
		})
		return nil
	}

	size := req.Size
	if size == 0 {
		size = h.QueryRangeSize
	}
	if size == 0 {
		size = DefaultQueryRangeSize
	}

	center := quadtree.Point{X: req.X, Y: req.Y}
	if size < 0 || math.IsNaN(size) || math.IsInf(size, 0) ||
		math.IsNaN(req.X) || math.IsNaN(req.Y) {
		respond.Send(MsgTypeErrorResponse, msg.RequestID, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: "invalid pointer move",
		})
		return nil
	}

	rng, points := run.QueryAround(center, size)
	respond.Send(MsgTypeQueryResponse, msg.RequestID, models.QueryResult{
		Range:  rng,
		Points: points,
	})
	return nil
}

func (h *RealtimeHandler) HandleBoundaries(ctx context.Context, respond ResponseSender, msg Msg) error {
	run := h.currentRun
	if run == nil {
		respond.Send(MsgTypeErrorResponse, msg.RequestID, ErrorResponse{
			Code:    ErrCodeRunNotStarted,
			Message: "no simulation run is started",
		})
		return nil
	}

	respond.Send(MsgTypeBoundariesResponse, msg.RequestID, BoundariesResponse{
		Boundaries: run.Boundaries(),
	})
	return nil
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	if h.currentRun == nil {
		return
	}

	// The run belongs to the connection. A background context ensures it
	// is removed even when the connection context is done.
	h.Runs.Remove(context.Background(), h.currentRun)
	h.currentRun = nil
}

func (h *RealtimeHandler) SendSyncClock(ctx context.Context, respond ResponseSender) error {
	h.FeatureFlags.IfNotSet(featureflag.FlagDisableSyncClock, func() {
		respond.Send(MsgTypeSyncClock, 0, nil)
	})
	return nil
}

func (h *RealtimeHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		return Receive(h.conn)
	}
}

func (h *RealtimeHandler) Sender() Sender {
	return func(msg Msg) (int, error) {
		return Send(h.conn, msg)
	}
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) SyncClockInterval() time.Duration {
	return h.ClientSyncClockInterval
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetRuns() *models.RunStore {
	return h.Runs
}

func (h *RealtimeHandler) CurrentRun() *models.Run {
	return h.currentRun
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}
