package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/aukilabs/quadrant/featureflag"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/aukilabs/quadrant/simulation"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

var referenceSimulation = simulation.Options{
	Width:  100,
	Height: 100,
	Points: []quadtree.Point{
		{X: 10, Y: 10},
		{X: 20, Y: 20},
		{X: 30, Y: 30},
		{X: 40, Y: 40},
		{X: 50, Y: 50},
	},
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	t.Cleanup(cancel)
	return ctx
}

func requireErrorResponse(t *testing.T, code string) Filter {
	return func(msg Msg) error {
		var res ErrorResponse
		err := msg.DataTo(&res)
		require.NoError(t, err)
		require.Equal(t, code, res.Code)
		return nil
	}
}

func TestHandlerSendSyncClock(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
	defer close()

	err := NewScenario(clientA).
		Receive(FilterByType(MsgTypeSyncClock), func(msg Msg) error {
			require.NotZero(t, msg.Timestamp)
			return nil
		}).
		Run(testContext(t))
	require.NoError(t, err)
}

func TestHandlerHandlePing(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
	defer close()

	err := NewScenario(clientA).
		Send(MsgTypePingRequest, 1, nil).
		Receive(
			FilterByType(MsgTypePingResponse),
			FilterByRequestID(1),
		).
		Run(testContext(t))
	require.NoError(t, err)
}

func TestHandlerHandleSimulate(t *testing.T) {
	t.Run("run is started", func(t *testing.T) {
		runs := &models.RunStore{}
		clientA, _, close := NewTestingEnv(t, newTestHandler(runs))
		defer close()

		var doc models.RunDocument

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, referenceSimulation).
			Receive(
				FilterByType(MsgTypeSimulateResponse),
				FilterByRequestID(1),
				func(msg Msg) error {
					return msg.DataTo(&doc)
				},
			).
			Run(testContext(t))
		require.NoError(t, err)

		require.Equal(t, "quadrantx1", doc.ID)
		require.NotEmpty(t, doc.UUID)
		require.Equal(t, quadtree.Rectangle{X: 0, Y: 0, W: 100, H: 100}, doc.Boundary)
		require.Equal(t, simulation.DefaultCapacity, doc.Capacity)
		require.Equal(t, 5, doc.Inserted)
		require.Zero(t, doc.Rejected)
		require.Equal(t, referenceSimulation.Points, doc.Points)
		require.Len(t, doc.Boundaries, 5)
		require.Equal(t, 1, doc.Stats.Subdivisions)

		_, ok := runs.Get(doc.ID)
		require.True(t, ok)
	})

	t.Run("new run replaces the current one", func(t *testing.T) {
		runs := &models.RunStore{}
		clientA, _, close := NewTestingEnv(t, newTestHandler(runs))
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, referenceSimulation).
			Receive(FilterByType(MsgTypeSimulateResponse), FilterByRequestID(1)).
			Send(MsgTypeSimulateRequest, 2, simulation.Options{
				Width:      800,
				Height:     600,
				PointCount: 120,
			}).
			Receive(FilterByType(MsgTypeSimulateResponse), FilterByRequestID(2), func(msg Msg) error {
				var doc models.RunDocument
				err := msg.DataTo(&doc)
				require.NoError(t, err)
				require.Len(t, doc.Points, 120)
				return err
			}).
			Run(testContext(t))
		require.NoError(t, err)
		require.Equal(t, 1, runs.Len())
	})

	t.Run("invalid configuration", func(t *testing.T) {
		runs := &models.RunStore{}
		clientA, _, close := NewTestingEnv(t, newTestHandler(runs))
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, simulation.Options{Width: 0, Height: 100}).
			Receive(
				FilterByType(MsgTypeErrorResponse),
				FilterByRequestID(1),
				requireErrorResponse(t, ErrCodeInvalidConfiguration),
			).
			Send(MsgTypePingRequest, 2, nil).
			Receive(FilterByType(MsgTypePingResponse), FilterByRequestID(2)).
			Run(testContext(t))
		require.NoError(t, err)
		require.Zero(t, runs.Len())
	})

	t.Run("too many points", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, func() Handler {
			return &RealtimeHandler{
				ClientSyncClockInterval: time.Minute,
				ClientIdleTimeout:       time.Minute,
				Runs:                    &models.RunStore{},
				Limits:                  simulation.Limits{MaxPoints: 10},
			}
		})
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, simulation.Options{
				Width:      100,
				Height:     100,
				PointCount: 11,
			}).
			Receive(
				FilterByType(MsgTypeErrorResponse),
				requireErrorResponse(t, ErrCodeTooManyPoints),
			).
			Run(testContext(t))
		require.NoError(t, err)
	})

	t.Run("caller points disabled", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, func() Handler {
			return &RealtimeHandler{
				ClientSyncClockInterval: time.Minute,
				ClientIdleTimeout:       time.Minute,
				Runs:                    &models.RunStore{},
				FeatureFlags:            featureflag.New([]string{string(featureflag.FlagDisableCallerPoints)}),
			}
		})
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, referenceSimulation).
			Receive(
				FilterByType(MsgTypeErrorResponse),
				requireErrorResponse(t, ErrCodeBadRequest),
			).
			Run(testContext(t))
		require.NoError(t, err)
	})

	t.Run("run points and boundaries disabled", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, func() Handler {
			return &RealtimeHandler{
				ClientSyncClockInterval: time.Minute,
				ClientIdleTimeout:       time.Minute,
				Runs:                    &models.RunStore{},
				FeatureFlags: featureflag.New([]string{
					string(featureflag.FlagDisableRunPoints),
					string(featureflag.FlagDisableRunBoundaries),
				}),
			}
		})
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, referenceSimulation).
			Receive(FilterByType(MsgTypeSimulateResponse), func(msg Msg) error {
				var doc models.RunDocument
				err := msg.DataTo(&doc)
				require.NoError(t, err)
				require.Equal(t, 5, doc.Inserted)
				require.Empty(t, doc.Points)
				require.Empty(t, doc.Boundaries)
				return err
			}).
			Run(testContext(t))
		require.NoError(t, err)
	})
}

func TestHandlerHandlePointerMove(t *testing.T) {
	t.Run("points around the pointer", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, referenceSimulation).
			Receive(FilterByType(MsgTypeSimulateResponse)).
			Send(MsgTypePointerMove, 2, PointerMove{X: 12.5, Y: 12.5, Size: 25}).
			Receive(FilterByType(MsgTypeQueryResponse), FilterByRequestID(2), func(msg Msg) error {
				var res models.QueryResult
				err := msg.DataTo(&res)
				require.NoError(t, err)
				require.Equal(t, quadtree.Rectangle{X: 0, Y: 0, W: 25, H: 25}, res.Range)
				require.Equal(t, []quadtree.Point{{X: 10, Y: 10}, {X: 20, Y: 20}}, res.Points)
				return err
			}).
			Send(MsgTypePointerMove, 3, PointerMove{X: 90, Y: 10, Size: 10}).
			Receive(FilterByType(MsgTypeQueryResponse), FilterByRequestID(3), func(msg Msg) error {
				var res models.QueryResult
				err := msg.DataTo(&res)
				require.NoError(t, err)
				require.NotNil(t, res.Points)
				require.Empty(t, res.Points)
				return err
			}).
			Run(testContext(t))
		require.NoError(t, err)
	})

	t.Run("default range size", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, referenceSimulation).
			Receive(FilterByType(MsgTypeSimulateResponse)).
			Send(MsgTypePointerMove, 2, PointerMove{X: 50, Y: 50}).
			Receive(FilterByType(MsgTypeQueryResponse), func(msg Msg) error {
				var res models.QueryResult
				err := msg.DataTo(&res)
				require.NoError(t, err)
				require.Equal(t, quadtree.Rectangle{X: 10, Y: 10, W: 80, H: 80}, res.Range)
				require.Len(t, res.Points, 5)
				return err
			}).
			Run(testContext(t))
		require.NoError(t, err)
	})

	t.Run("run not started", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypePointerMove, 1, PointerMove{X: 10, Y: 10}).
			Receive(
				FilterByType(MsgTypeErrorResponse),
				FilterByRequestID(1),
				requireErrorResponse(t, ErrCodeRunNotStarted),
			).
			Run(testContext(t))
		require.NoError(t, err)
	})

	t.Run("negative size", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, referenceSimulation).
			Receive(FilterByType(MsgTypeSimulateResponse)).
			Send(MsgTypePointerMove, 2, PointerMove{X: 10, Y: 10, Size: -1}).
			Receive(
				FilterByType(MsgTypeErrorResponse),
				requireErrorResponse(t, ErrCodeBadRequest),
			).
			Run(testContext(t))
		require.NoError(t, err)
	})
}

func TestHandlerHandleBoundaries(t *testing.T) {
	clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
	defer close()

	err := NewScenario(clientA).
		Send(MsgTypeBoundariesRequest, 1, nil).
		Receive(
			FilterByType(MsgTypeErrorResponse),
			requireErrorResponse(t, ErrCodeRunNotStarted),
		).
		Send(MsgTypeSimulateRequest, 2, referenceSimulation).
		Receive(FilterByType(MsgTypeSimulateResponse)).
		Send(MsgTypeBoundariesRequest, 3, nil).
		Receive(FilterByType(MsgTypeBoundariesResponse), FilterByRequestID(3), func(msg Msg) error {
			var res BoundariesResponse
			err := msg.DataTo(&res)
			require.NoError(t, err)
			require.Equal(t, []quadtree.Rectangle{
				{X: 0, Y: 0, W: 100, H: 100},
				{X: 50, Y: 0, W: 50, H: 50},
				{X: 0, Y: 0, W: 50, H: 50},
				{X: 50, Y: 50, W: 50, H: 50},
				{X: 0, Y: 50, W: 50, H: 50},
			}, res.Boundaries)
			return err
		}).
		Run(testContext(t))
	require.NoError(t, err)
}

func TestHandlerBadRequests(t *testing.T) {
	t.Run("malformed frame", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
		defer close()

		err := websocket.Message.Send(clientA, "{not json")
		require.NoError(t, err)

		err = NewScenario(clientA).
			Receive(
				FilterByType(MsgTypeErrorResponse),
				requireErrorResponse(t, ErrCodeBadRequest),
			).
			Send(MsgTypePingRequest, 1, nil).
			Receive(FilterByType(MsgTypePingResponse)).
			Run(testContext(t))
		require.NoError(t, err)
	})

	t.Run("malformed data", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
		defer close()

		err := NewScenario(clientA).
			Send(MsgTypeSimulateRequest, 1, "not options").
			Receive(
				FilterByType(MsgTypeErrorResponse),
				FilterByRequestID(1),
				requireErrorResponse(t, ErrCodeBadRequest),
			).
			Run(testContext(t))
		require.NoError(t, err)
	})

	t.Run("unknown message type", func(t *testing.T) {
		clientA, _, close := NewTestingEnv(t, newTestHandler(&models.RunStore{}))
		defer close()

		err := NewScenario(clientA).
			Send("teleport_request", 1, nil).
			Receive(
				FilterByType(MsgTypeErrorResponse),
				FilterByRequestID(1),
				requireErrorResponse(t, ErrCodeBadRequest),
			).
			Run(testContext(t))
		require.NoError(t, err)
	})
}

func TestHandlerHandleDisconnect(t *testing.T) {
	runs := &models.RunStore{}
	clientA, clientB, close := NewTestingEnv(t, newTestHandler(runs))
	defer close()

	for i, c := range []*websocket.Conn{clientA, clientB} {
		err := NewScenario(c).
			Send(MsgTypeSimulateRequest, uint32(i+1), referenceSimulation).
			Receive(FilterByType(MsgTypeSimulateResponse)).
			Run(testContext(t))
		require.NoError(t, err)
	}
	require.Equal(t, 2, runs.Len())

	clientA.Close()
	require.Eventually(t, func() bool {
		return runs.Len() == 1
	}, time.Second, time.Millisecond*10)
}

func TestHandlerIdleTimeout(t *testing.T) {
	runs := &models.RunStore{}
	clientA, _, close := NewTestingEnv(t, func() Handler {
		return &RealtimeHandler{
			ClientSyncClockInterval: time.Minute,
			ClientIdleTimeout:       time.Millisecond * 100,
			Runs:                    runs,
		}
	})
	defer close()

	err := NewScenario(clientA).
		Send(MsgTypeSimulateRequest, 1, referenceSimulation).
		Receive(FilterByType(MsgTypeSimulateResponse)).
		Run(testContext(t))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.Len() == 0
	}, time.Second, time.Millisecond*10)
}
