package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/aukilabs/quadrant/simulation"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// MsgType is the type of a message exchanged over a WebSocket connection.
type MsgType string

const (
	MsgTypePingRequest        MsgType = "ping_request"
	MsgTypePingResponse       MsgType = "ping_response"
	MsgTypeSimulateRequest    MsgType = "simulate_request"
	MsgTypeSimulateResponse   MsgType = "simulate_response"
	MsgTypePointerMove        MsgType = "pointer_move"
	MsgTypeQueryResponse      MsgType = "query_response"
	MsgTypeBoundariesRequest  MsgType = "boundaries_request"
	MsgTypeBoundariesResponse MsgType = "boundaries_response"
	MsgTypeSyncClock          MsgType = "sync_clock"
	MsgTypeErrorResponse      MsgType = "error_response"
)

// Error codes sent within error responses.
const (
	ErrCodeBadRequest           = "bad_request"
	ErrCodeRunNotStarted        = "run_not_started"
	ErrCodeInvalidConfiguration = quadtree.ErrTypeInvalidConfiguration
	ErrCodeTooManyPoints        = simulation.ErrTypeTooManyPoints
	ErrCodeInternalError        = "internal_error"
)

const (
	ErrTypeMsgMalformed = "msg_malformed"
	ErrTypeMsgSkip      = "msg_skip"
)

// Msg is the envelope of every message exchanged over a WebSocket connection.
type Msg struct {
	Type      MsgType         `json:"type"`
	RequestID uint32          `json:"request_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// MsgFromData creates a message with the given data encoded in JSON.
func MsgFromData(t MsgType, requestID uint32, data any) (Msg, error) {
	msg := Msg{
		Type:      t,
		RequestID: requestID,
		Timestamp: time.Now(),
	}

	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Msg{}, errors.New("encoding message data failed").
				WithTag("msg_type", t).
				Wrap(err)
		}
		msg.Data = b
	}
	return msg, nil
}

// DataTo decodes the message data into v. A message without data leaves v
// untouched.
func (m Msg) DataTo(v any) error {
	if len(m.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.New("decoding message data failed").
			WithType(ErrTypeMsgMalformed).
			WithTag("msg_type", m.Type).
			Wrap(err)
	}
	return nil
}

func (m Msg) TypeString() string {
	return string(m.Type)
}

// Receiver is a function that receives a message. It returns the number of
// bytes read.
type Receiver func() (Msg, int, error)

// Sender is a function that sends a message. It returns the number of bytes
// written.
type Sender func(Msg) (int, error)

// ResponseSender sends messages to the client being handled.
type ResponseSender interface {
	// Sends a message with the given data.
	Send(t MsgType, requestID uint32, data any)

	// Sends an already built message.
	SendMsg(Msg)
}

// ErrorResponse is the data of an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Receive reads a text frame from the connection and decodes it. A frame
// that is not a valid message returns an error typed ErrTypeMsgMalformed and
// the connection can still be used.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var b []byte
	if err := websocket.Message.Receive(conn, &b); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(b, &msg); err != nil {
		return Msg{}, len(b), errors.New("decoding message failed").
			WithType(ErrTypeMsgMalformed).
			Wrap(err)
	}
	if msg.Type == "" {
		return Msg{}, len(b), errors.New("message type is missing").
			WithType(ErrTypeMsgMalformed)
	}
	return msg, len(b), nil
}

// Send encodes the message and writes it as a text frame.
func Send(conn *websocket.Conn, msg Msg) (int, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").
			WithTag("msg_type", msg.Type).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}

// ErrorCode returns the error response code that matches the given error.
func ErrorCode(err error) string {
	switch {
	case errors.IsType(err, ErrTypeMsgMalformed):
		return ErrCodeBadRequest

	case errors.IsType(err, quadtree.ErrTypeInvalidConfiguration):
		return ErrCodeInvalidConfiguration

	case errors.IsType(err, simulation.ErrTypeTooManyPoints):
		return ErrCodeTooManyPoints

	default:
		return ErrCodeInternalError
	}
}
