package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/engine"
	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// HeaderClientID is the request header identifying a viewer. A random id is
// used when it is missing.
const HeaderClientID = "Tessera-Client-Id"

// Engine is the scene a viewer controls.
type Engine interface {
	SetCamera(geometry.Camera) error
	Invalidate(layerID uint32, nodeName string)
	SetLayerVisible(id uint32, visible bool) bool
	Layer(id uint32) (*models.Layer, bool)
	HandleFrame(func(engine.Frame)) (cancel func())
}

// ViewerHandler forwards the camera of a connected viewer to the engine and
// streams the frame reports back.
type ViewerHandler struct {
	Engine Engine

	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The minimum interval between two frame reports. Zero sends every frame.
	FrameInterval time.Duration

	conn          *websocket.Conn
	clientID      string
	lastFrameSent time.Time
}

func (h *ViewerHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}

	conn.MaxPayloadBytes = maxMsgSize
	h.conn = conn
}

func (h *ViewerHandler) HandleCamera(ctx context.Context, respond ResponseSender, msg Msg) error {
	if msg.Camera == nil {
		return errors.New("camera is missing").
			WithType(ErrTypeBadRequest)
	}

	if err := h.Engine.SetCamera(*msg.Camera); err != nil {
		return errors.New("setting camera failed").
			WithType(ErrTypeBadRequest).
			Wrap(err)
	}
	return nil
}

func (h *ViewerHandler) HandleInvalidate(ctx context.Context, respond ResponseSender, msg Msg) error {
	if _, ok := h.Engine.Layer(msg.Layer); !ok {
		return errors.New("layer not found").
			WithType(ErrTypeBadRequest).
			WithTag("layer", msg.Layer)
	}

	h.Engine.Invalidate(msg.Layer, msg.Node)
	return nil
}

func (h *ViewerHandler) HandleLayer(ctx context.Context, respond ResponseSender, msg Msg) error {
	l, ok := h.Engine.Layer(msg.Layer)
	if !ok {
		return errors.New("layer not found").
			WithType(ErrTypeBadRequest).
			WithTag("layer", msg.Layer)
	}

	if msg.Opacity != nil {
		l.SetOpacity(*msg.Opacity)
	}
	if msg.Visible != nil {
		h.Engine.SetLayerVisible(l.ID, *msg.Visible)
	}
	return nil
}

func (h *ViewerHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(PongMsg{
		Type:      MsgTypePong,
		RequestID: msg.RequestID,
		Timestamp: time.Now(),
	})
	return nil
}

func (h *ViewerHandler) HandleFrames(handle func(engine.Frame)) func() {
	return h.Engine.HandleFrame(handle)
}

func (h *ViewerHandler) SendFrame(ctx context.Context, respond ResponseSender, f engine.Frame) error {
	now := time.Now()
	if h.FrameInterval > 0 && now.Sub(h.lastFrameSent) < h.FrameInterval {
		return nil
	}
	h.lastFrameSent = now

	respond.Send(NewFrameMsg(f))
	return nil
}

func (h *ViewerHandler) HandleDisconnect(_ error) {
}

func (h *ViewerHandler) Receiver() Receiver {
	return func() (Msg, int, error) {
		return Receive(h.conn)
	}
}

func (h *ViewerHandler) Sender() Sender {
	return func(msg ServerMsg) (int, error) {
		return Send(h.conn, msg)
	}
}

func (h *ViewerHandler) Close() {
}

func (h *ViewerHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *ViewerHandler) GetClientID() string {
	return h.clientID
}
