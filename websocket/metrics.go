package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel        = "error_type"
	msgTypeLabel        = "msg_type"
	publicEndpointLabel = "public_endpoint"
)

var (
	viewersConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tessera_viewers_connected",
		Help: "Viewers currently connected.",
	}, []string{
		publicEndpointLabel,
	})

	viewerMsgsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_viewer_msgs_received_total",
		Help: "Viewer messages received, by type.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	viewerBytesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_viewer_received_bytes_total",
		Help: "Bytes received from viewers, by message type.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	viewerReceiveErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_viewer_receive_errors_total",
		Help: "Viewer messages that could not be read or decoded.",
	}, []string{
		publicEndpointLabel,
		errTypeLabel,
	})

	viewerMsgsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_viewer_msgs_sent_total",
		Help: "Messages sent to viewers, by type.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	viewerBytesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_viewer_sent_bytes_total",
		Help: "Bytes sent to viewers, by message type.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})

	viewerSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tessera_viewer_send_errors_total",
		Help: "Messages that could not be written to a viewer.",
	}, []string{
		publicEndpointLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	viewerMsgDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "tessera_viewer_msg_duration_seconds",
		Help: "Time spent handling a viewer message.",
	}, []string{
		publicEndpointLabel,
		msgTypeLabel,
	})
)

// HandlerWithMetrics decorates a handler with the viewer connection metrics
// of a public endpoint.
func HandlerWithMetrics(h Handler, publicEndpoint string) Handler {
	endpoint := prometheus.Labels{publicEndpointLabel: publicEndpoint}

	return &handlerWithMetrics{
		Handler:       h,
		connected:     viewersConnected.With(endpoint),
		received:      viewerMsgsReceived.MustCurryWith(endpoint),
		receivedBytes: viewerBytesReceived.MustCurryWith(endpoint),
		receiveErrors: viewerReceiveErrors.MustCurryWith(endpoint),
		sent:          viewerMsgsSent.MustCurryWith(endpoint),
		sentBytes:     viewerBytesSent.MustCurryWith(endpoint),
		sendErrors:    viewerSendErrors.MustCurryWith(endpoint),
		duration:      viewerMsgDuration.MustCurryWith(endpoint),
	}
}

type handlerWithMetrics struct {
	Handler

	connected     prometheus.Gauge
	received      *prometheus.CounterVec
	receivedBytes *prometheus.CounterVec
	receiveErrors *prometheus.CounterVec
	sent          *prometheus.CounterVec
	sentBytes     *prometheus.CounterVec
	sendErrors    *prometheus.CounterVec
	duration      prometheus.ObserverVec
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	h.connected.Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleCamera(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.observe(msg, func() error {
		return h.Handler.HandleCamera(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleInvalidate(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.observe(msg, func() error {
		return h.Handler.HandleInvalidate(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleLayer(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.observe(msg, func() error {
		return h.Handler.HandleLayer(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.observe(msg, func() error {
		return h.Handler.HandlePing(ctx, respond, msg)
	})
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	h.connected.Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		msgType := msg.TypeString()

		if err != nil {
			h.receiveErrors.WithLabelValues(errors.Type(err)).Inc()
		} else {
			h.received.WithLabelValues(msgType).Inc()
		}
		if n != 0 {
			h.receivedBytes.WithLabelValues(msgType).Add(float64(n))
		}
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	send := h.Handler.Sender()

	return func(msg ServerMsg) (int, error) {
		msgType := string(msg.MsgType())

		n, err := send(msg)
		if err != nil {
			h.sendErrors.WithLabelValues(errors.Type(err), msgType).Inc()
		}
		if n != 0 {
			h.sent.WithLabelValues(msgType).Inc()
			h.sentBytes.WithLabelValues(msgType).Add(float64(n))
		}
		return n, err
	}
}

// observe records the handling duration of a message. Rejected messages are
// not observed.
func (h *handlerWithMetrics) observe(msg Msg, handle func() error) error {
	start := time.Now()

	err := handle()
	if errors.IsType(err, ErrTypeBadRequest) {
		return err
	}

	h.duration.WithLabelValues(msg.TypeString()).Observe(time.Since(start).Seconds())
	return err
}
