package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/engine"
	"github.com/aukilabs/tessera/geometry"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// MsgType identifies a message of the viewer protocol.
type MsgType string

const (
	// Client messages.
	MsgTypeCamera     MsgType = "camera"
	MsgTypeInvalidate MsgType = "invalidate"
	MsgTypeLayer      MsgType = "layer"
	MsgTypePing       MsgType = "ping"

	// Server messages.
	MsgTypeFrame MsgType = "frame"
	MsgTypePong  MsgType = "pong"
	MsgTypeError MsgType = "error"
)

const (
	// A message that could not be decoded.
	ErrTypeMsgDecode = "msg_decode_error"

	// A decoded message whose content is rejected. The connection stays
	// open.
	ErrTypeBadRequest = "bad_request"

	// The maximum size of a received message.
	maxMsgSize = 1 << 16
)

// Msg is a message sent by a viewer.
type Msg struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id,omitempty"`

	Camera *geometry.Camera `json:"camera,omitempty"`

	// Target of invalidate and layer messages.
	Layer uint32 `json:"layer,omitempty"`
	Node  string `json:"node,omitempty"`

	Visible *bool    `json:"visible,omitempty"`
	Opacity *float64 `json:"opacity,omitempty"`
}

func (m Msg) TypeString() string {
	if m.Type == "" {
		return "unknown"
	}
	return string(m.Type)
}

// ServerMsg is a message sent to a viewer.
type ServerMsg interface {
	MsgType() MsgType
}

// FrameMsg carries the report of a frame.
type FrameMsg struct {
	Type MsgType `json:"type"`
	engine.Frame
}

func NewFrameMsg(f engine.Frame) FrameMsg {
	return FrameMsg{
		Type:  MsgTypeFrame,
		Frame: f,
	}
}

func (m FrameMsg) MsgType() MsgType {
	return m.Type
}

type PongMsg struct {
	Type      MsgType   `json:"type"`
	RequestID uint32    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (m PongMsg) MsgType() MsgType {
	return m.Type
}

// ErrorMsg reports a rejected message.
type ErrorMsg struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id,omitempty"`
	Code      string  `json:"code"`
	Message   string  `json:"message"`
}

func NewErrorMsg(requestID uint32, err error) ErrorMsg {
	code := errors.Type(err)
	if code == "" {
		code = ErrTypeBadRequest
	}

	return ErrorMsg{
		Type:      MsgTypeError,
		RequestID: requestID,
		Code:      code,
		Message:   err.Error(),
	}
}

func (m ErrorMsg) MsgType() MsgType {
	return m.Type
}

// Receive reads a message from a connection. It returns the number of bytes
// read. A message that is not valid JSON returns an error typed
// ErrTypeMsgDecode.
func Receive(conn *websocket.Conn) (Msg, int, error) {
	var data []byte
	if err := websocket.Message.Receive(conn, &data); err != nil {
		return Msg{}, 0, err
	}

	var msg Msg
	if err := json.Unmarshal(data, &msg); err != nil {
		return Msg{}, len(data), errors.New("decoding message failed").
			WithType(ErrTypeMsgDecode).
			Wrap(err)
	}
	if msg.Type == "" {
		return Msg{}, len(data), errors.New("message type is missing").
			WithType(ErrTypeMsgDecode)
	}
	return msg, len(data), nil
}

// Send writes a message to a connection as a text frame. It returns the
// number of bytes written.
func Send(conn *websocket.Conn, msg ServerMsg) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, errors.New("encoding message failed").
			WithTag("msg_type", msg.MsgType()).
			Wrap(err)
	}

	if err = websocket.Message.Send(conn, string(data)); err != nil {
		return 0, err
	}
	return len(data), nil
}
