package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tessera/engine"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 64
	receiveChanSize = 64
)

// Receiver receives a message and returns the number of bytes read.
type Receiver func() (Msg, int, error)

// Sender sends a message and returns the number of bytes written.
type Sender func(ServerMsg) (int, error)

// ResponseSender queues messages to send to the connected viewer.
type ResponseSender interface {
	Send(ServerMsg)
}

// Handler represents a viewer handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a camera update.
	HandleCamera(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to revisit a node.
	HandleInvalidate(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a layer visibility or opacity update.
	HandleLayer(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Subscribes to the engine frames. The returned function cancels the
	// subscription.
	HandleFrames(func(engine.Frame)) (cancel func())

	// Sends the report of a frame to the client.
	SendFrame(ctx context.Context, respond ResponseSender, f engine.Frame) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender used to send outgoing messages.
	Sender() Sender

	// Closes the handler and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	GetClientID() string
}

// Handle serves a viewer connection until it is closed, idle or ctx is done.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The viewer handler.
	Handler Handler

	sendChan       chan ServerMsg
	receiveChan    chan received
	disconnectChan chan error

	frameMutex  sync.Mutex
	frame       engine.Frame
	frameNotify chan struct{}
}

type received struct {
	msg Msg
	err error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan ServerMsg, sendChanSize)
	sender := h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx, sender)
	}()

	h.receiveChan = make(chan received, receiveChanSize)
	receiver := h.Handler.Receiver()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx, receiver)
	}()

	h.frameNotify = make(chan struct{}, 1)
	cancelFrames := h.Handler.HandleFrames(h.pushFrame)
	defer cancelFrames()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	var responder = responseSender{
		send: h.send,
	}

	var disconnected bool
	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case r := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			err := r.err
			if err == nil {
				err = h.handleMessage(ctx, r.msg, responder)
			}

			switch {
			case err == nil:

			case errors.IsType(err, ErrTypeMsgDecode), errors.IsType(err, ErrTypeBadRequest):
				responder.Send(NewErrorMsg(r.msg.RequestID, err))

			default:
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case <-h.frameNotify:
			if err := h.Handler.SendFrame(ctx, responder, h.latestFrame()); err != nil {
				h.disconnect(errors.New("sending frame failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			disconnected = true
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	if !disconnected {
		h.handleDisconnect(ctx.Err())
	}
	wg.Wait()
}

// pushFrame keeps the latest frame. It runs on the frame goroutine and never
// blocks: frames not sent before the next one are coalesced.
func (h *handler) pushFrame(f engine.Frame) {
	h.frameMutex.Lock()
	h.frame = f
	h.frameMutex.Unlock()

	select {
	case h.frameNotify <- struct{}{}:
	default:
	}
}

func (h *handler) latestFrame() engine.Frame {
	h.frameMutex.Lock()
	defer h.frameMutex.Unlock()

	return h.frame
}

func (h *handler) send(msg ServerMsg) {
	select {
	case h.sendChan <- msg:
	default:
		logs.WithTag(logs.ClientIDTag, h.Handler.GetClientID()).
			WithTag("msg_type", msg.MsgType()).
			Debug("send queue is full, message dropped")
	}
}

func (h *handler) startSending(ctx context.Context, sender Sender) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context, receiver Receiver) {
	for {
		msg, _, err := receiver()
		if err != nil && !errors.IsType(err, ErrTypeMsgDecode) {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return

		case h.receiveChan <- received{msg: msg, err: err}:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	switch msg.Type {
	case MsgTypeCamera:
		return h.Handler.HandleCamera(ctx, responder, msg)

	case MsgTypeInvalidate:
		return h.Handler.HandleInvalidate(ctx, responder, msg)

	case MsgTypeLayer:
		return h.Handler.HandleLayer(ctx, responder, msg)

	case MsgTypePing:
		return h.Handler.HandlePing(ctx, responder, msg)

	default:
		return errors.New("unknown message type").
			WithType(ErrTypeBadRequest).
			WithTag("msg_type", msg.Type)
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send func(ServerMsg)
}

func (r responseSender) Send(msg ServerMsg) {
	r.send(msg)
}
