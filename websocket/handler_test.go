package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/engine"
	"github.com/aukilabs/tessera/geometry"
	"github.com/aukilabs/tessera/models"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type testEngine struct {
	mutex       sync.Mutex
	cameras     []geometry.Camera
	invalidated []string
	layers      map[uint32]*models.Layer
	handlers    map[int]func(engine.Frame)
	handlerID   int
}

func newTestEngine(t *testing.T) *testEngine {
	l, err := models.NewLayer(1, models.LayerOptions{
		Kind: "globe",
		URL:  "http://localhost/{z}/{x}/{y}.png",
	})
	require.NoError(t, err)

	return &testEngine{
		layers:   map[uint32]*models.Layer{l.ID: l},
		handlers: make(map[int]func(engine.Frame)),
	}
}

func (e *testEngine) SetCamera(c geometry.Camera) error {
	if !c.Valid() {
		return errors.New("invalid camera").WithType(engine.ErrTypeInvalidCamera)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.cameras = append(e.cameras, c)
	return nil
}

func (e *testEngine) Cameras() []geometry.Camera {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return append([]geometry.Camera(nil), e.cameras...)
}

func (e *testEngine) Invalidate(layerID uint32, nodeName string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.invalidated = append(e.invalidated, nodeName)
}

func (e *testEngine) Invalidated() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return append([]string(nil), e.invalidated...)
}

func (e *testEngine) SetLayerVisible(id uint32, visible bool) bool {
	l, ok := e.Layer(id)
	if ok {
		l.SetVisible(visible)
	}
	return ok
}

func (e *testEngine) Layer(id uint32) (*models.Layer, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	l, ok := e.layers[id]
	return l, ok
}

func (e *testEngine) HandleFrame(h func(engine.Frame)) func() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.handlerID++
	id := e.handlerID
	e.handlers[id] = h

	return func() {
		e.mutex.Lock()
		defer e.mutex.Unlock()

		delete(e.handlers, id)
	}
}

func (e *testEngine) HandlerCount() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return len(e.handlers)
}

func (e *testEngine) Emit(f engine.Frame) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	for _, h := range e.handlers {
		h(f)
	}
}

func newTestHandler(e Engine, idleTimeout time.Duration) func() Handler {
	return func() Handler {
		var h Handler = &ViewerHandler{
			Engine:            e,
			ClientIdleTimeout: idleTimeout,
		}

		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "http://localhost:8080")
		return h
	}
}

// testServerMsg decodes any message sent by the server.
type testServerMsg struct {
	Type      MsgType             `json:"type"`
	RequestID uint32              `json:"request_id"`
	Code      string              `json:"code"`
	Frame     uint64              `json:"frame"`
	Layers    []engine.LayerFrame `json:"layers"`
}

func sendTestMsg(t *testing.T, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, websocket.Message.Send(conn, string(data)))
}

// receiveTestMsg returns the next message of the given type. Messages of other
// types are skipped.
func receiveTestMsg(t *testing.T, conn *websocket.Conn, msgType MsgType) testServerMsg {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second*5)))

	for {
		var data []byte
		require.NoError(t, websocket.Message.Receive(conn, &data))

		var msg testServerMsg
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func testCamera() *geometry.Camera {
	return &geometry.Camera{
		Position:  r3.Vector{Z: 10},
		Direction: r3.Vector{Z: -1},
		Up:        r3.Vector{Y: 1},
		FovY:      1,
		Width:     800,
		Height:    600,
		Near:      0.1,
		Far:       1000,
	}
}

func TestHandlerCamera(t *testing.T) {
	e := newTestEngine(t)
	client, close := NewTestingEnv(t, newTestHandler(e, time.Minute))
	defer close()

	t.Run("camera is forwarded", func(t *testing.T) {
		sendTestMsg(t, client, Msg{
			Type:   MsgTypeCamera,
			Camera: testCamera(),
		})

		require.Eventually(t, func() bool {
			return len(e.Cameras()) == 1
		}, time.Second*5, time.Millisecond*10)
		require.Equal(t, *testCamera(), e.Cameras()[0])
	})

	t.Run("invalid camera", func(t *testing.T) {
		sendTestMsg(t, client, Msg{
			Type:      MsgTypeCamera,
			RequestID: 7,
			Camera:    &geometry.Camera{},
		})

		msg := receiveTestMsg(t, client, MsgTypeError)
		require.Equal(t, uint32(7), msg.RequestID)
		require.Equal(t, ErrTypeBadRequest, msg.Code)
		require.Len(t, e.Cameras(), 1)
	})

	t.Run("missing camera", func(t *testing.T) {
		sendTestMsg(t, client, Msg{Type: MsgTypeCamera})

		msg := receiveTestMsg(t, client, MsgTypeError)
		require.Equal(t, ErrTypeBadRequest, msg.Code)
	})
}

func TestHandlerFrames(t *testing.T) {
	e := newTestEngine(t)
	client, close := NewTestingEnv(t, newTestHandler(e, time.Minute))
	defer close()

	require.Eventually(t, func() bool {
		return e.HandlerCount() == 1
	}, time.Second*5, time.Millisecond*10)

	e.Emit(engine.Frame{
		Number: 42,
		Layers: []engine.LayerFrame{
			{
				ID:   1,
				Name: "globe",
				Displayed: []engine.DisplayedNode{
					{ID: 1, Name: "0", Weight: 1},
				},
				Shown: []uint32{1},
			},
		},
	})

	msg := receiveTestMsg(t, client, MsgTypeFrame)
	require.Equal(t, uint64(42), msg.Frame)
	require.Len(t, msg.Layers, 1)
	require.Equal(t, "globe", msg.Layers[0].Name)
	require.Equal(t, []uint32{1}, msg.Layers[0].Shown)
	require.Len(t, msg.Layers[0].Displayed, 1)

	t.Run("subscription is cancelled on disconnect", func(t *testing.T) {
		client.Close()
		require.Eventually(t, func() bool {
			return e.HandlerCount() == 0
		}, time.Second*5, time.Millisecond*10)
	})
}

func TestHandlerLayers(t *testing.T) {
	e := newTestEngine(t)
	client, close := NewTestingEnv(t, newTestHandler(e, time.Minute))
	defer close()

	l, _ := e.Layer(1)

	t.Run("invalidate", func(t *testing.T) {
		sendTestMsg(t, client, Msg{
			Type:  MsgTypeInvalidate,
			Layer: 1,
			Node:  "012",
		})

		require.Eventually(t, func() bool {
			return len(e.Invalidated()) == 1
		}, time.Second*5, time.Millisecond*10)
		require.Equal(t, []string{"012"}, e.Invalidated())
	})

	t.Run("invalidate unknown layer", func(t *testing.T) {
		sendTestMsg(t, client, Msg{
			Type:  MsgTypeInvalidate,
			Layer: 2,
			Node:  "012",
		})

		msg := receiveTestMsg(t, client, MsgTypeError)
		require.Equal(t, ErrTypeBadRequest, msg.Code)
		require.Len(t, e.Invalidated(), 1)
	})

	t.Run("visibility and opacity", func(t *testing.T) {
		visible := false
		opacity := 0.25
		sendTestMsg(t, client, Msg{
			Type:    MsgTypeLayer,
			Layer:   1,
			Visible: &visible,
			Opacity: &opacity,
		})

		require.Eventually(t, func() bool {
			return !l.Visible() && l.Opacity() == 0.25
		}, time.Second*5, time.Millisecond*10)
	})
}

func TestHandlerBadInput(t *testing.T) {
	e := newTestEngine(t)
	client, close := NewTestingEnv(t, newTestHandler(e, time.Minute))
	defer close()

	t.Run("malformed message", func(t *testing.T) {
		require.NoError(t, websocket.Message.Send(client, "{not json"))

		msg := receiveTestMsg(t, client, MsgTypeError)
		require.Equal(t, ErrTypeMsgDecode, msg.Code)
	})

	t.Run("missing type", func(t *testing.T) {
		require.NoError(t, websocket.Message.Send(client, `{"layer":1}`))

		msg := receiveTestMsg(t, client, MsgTypeError)
		require.Equal(t, ErrTypeMsgDecode, msg.Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		sendTestMsg(t, client, Msg{Type: "teleport", RequestID: 3})

		msg := receiveTestMsg(t, client, MsgTypeError)
		require.Equal(t, uint32(3), msg.RequestID)
		require.Equal(t, ErrTypeBadRequest, msg.Code)
	})

	t.Run("connection stays open", func(t *testing.T) {
		sendTestMsg(t, client, Msg{Type: MsgTypePing, RequestID: 9})

		msg := receiveTestMsg(t, client, MsgTypePong)
		require.Equal(t, uint32(9), msg.RequestID)
	})
}

func TestHandlerIdleTimeout(t *testing.T) {
	e := newTestEngine(t)
	client, close := NewTestingEnv(t, newTestHandler(e, time.Millisecond*50))
	defer close()

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second*5)))

	var data []byte
	err := websocket.Message.Receive(client, &data)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return e.HandlerCount() == 0
	}, time.Second*5, time.Millisecond*10)
}
