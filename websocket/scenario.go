package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/net/websocket"
)

// Filter checks a received message. A filter that returns an error typed
// ErrTypeMsgSkip makes a scenario ignore the message and wait for the next
// one.
type Filter func(Msg) error

// FilterByType skips messages that are not of the given type.
func FilterByType(t MsgType) Filter {
	return func(msg Msg) error {
		if msg.Type != t {
			return errors.New("unexpected message type").
				WithType(ErrTypeMsgSkip).
				WithTag("expected", t).
				WithTag("msg_type", msg.Type)
		}
		return nil
	}
}

// FilterByRequestID skips messages that do not answer the given request.
func FilterByRequestID(requestID uint32) Filter {
	return func(msg Msg) error {
		if msg.RequestID != requestID {
			return errors.New("unexpected request id").
				WithType(ErrTypeMsgSkip).
				WithTag("expected", requestID).
				WithTag("request_id", msg.RequestID)
		}
		return nil
	}
}

// Scenario is a sequence of messages sent and expected over a WebSocket
// connection, acting as a client.
type Scenario struct {
	conn  *websocket.Conn
	steps []func() error
}

func NewScenario(conn *websocket.Conn) *Scenario {
	return &Scenario{conn: conn}
}

// Send adds a step that sends a message with the given data.
func (s *Scenario) Send(t MsgType, requestID uint32, data any) *Scenario {
	s.steps = append(s.steps, func() error {
		msg, err := MsgFromData(t, requestID, data)
		if err != nil {
			return err
		}

		_, err = Send(s.conn, msg)
		return err
	})
	return s
}

// Receive adds a step that receives messages until one passes all the given
// filters.
func (s *Scenario) Receive(filters ...Filter) *Scenario {
	s.steps = append(s.steps, func() error {
	receiving:
		for {
			msg, _, err := Receive(s.conn)
			if err != nil {
				return err
			}

			for _, f := range filters {
				err := f(msg)
				if errors.IsType(err, ErrTypeMsgSkip) {
					continue receiving
				}
				if err != nil {
					return err
				}
			}
			return nil
		}
	})
	return s
}

// Run executes the scenario steps in order. It stops at the first failing
// step or when the context is done.
func (s *Scenario) Run(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetDeadline(deadline)
		defer s.conn.SetDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Now())
	})
	defer stop()

	for i, step := range s.steps {
		if err := step(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return errors.New("scenario step failed").
				WithTag("step", i).
				Wrap(err)
		}
	}
	return nil
}
