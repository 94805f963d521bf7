package smoketest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/tessera/geometry"
	twebsocket "github.com/aukilabs/tessera/websocket"
	"github.com/golang/geo/r3"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	DefaultTimeout = time.Second * 10
)

type Options struct {
	// The viewer endpoint tested when a request does not name one.
	Endpoint  string
	UserAgent string
}

// Request describes a smoke test. Every field is optional.
type Request struct {
	Endpoint string           `json:"endpoint"`
	Timeout  time.Duration    `json:"timeout"`
	Camera   *geometry.Camera `json:"camera"`
}

// Results reports a smoke test.
type Results struct {
	Endpoint        string  `json:"endpoint"`
	Success         bool    `json:"success"`
	LatencyMilliSec float64 `json:"latency_ms"`
	Frame           uint64  `json:"frame,omitempty"`
	Layers          int     `json:"layers"`
	Displayed       int     `json:"displayed"`
	Error           string  `json:"error,omitempty"`
}

// HandleSmokeTest connects to a viewer endpoint as a viewer, sends a camera
// and waits for a frame report.
func HandleSmokeTest(ctx context.Context, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "reading body failed", http.StatusInternalServerError)
			return
		}

		var req Request
		if len(b) != 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
		}

		if req.Endpoint == "" {
			req.Endpoint = opts.Endpoint
		}
		if req.Timeout <= 0 {
			req.Timeout = DefaultTimeout
		}
		if req.Camera == nil {
			req.Camera = defaultCamera()
		}

		ctx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()

		res, err := Run(ctx, req.Endpoint, opts.UserAgent, *req.Camera)
		if err != nil {
			logs.WithTag("endpoint", req.Endpoint).
				Warn(err)
		}

		data, err := json.Marshal(res)
		if err != nil {
			http.Error(w, "encoding results failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

// Run runs a smoke test against a viewer endpoint. The test stops when ctx is
// done.
func Run(ctx context.Context, endpoint, userAgent string, camera geometry.Camera) (Results, error) {
	res := Results{Endpoint: endpoint}

	err := run(ctx, endpoint, userAgent, camera, &res)
	if err != nil {
		res.Error = err.Error()
		return res, errors.New("smoke test failed").
			WithTag("endpoint", endpoint).
			Wrap(err)
	}

	res.Success = true
	return res, nil
}

func run(ctx context.Context, endpoint, userAgent string, camera geometry.Camera, res *Results) error {
	wsURL := strings.Replace(endpoint, "http", "ws", 1)

	config, err := websocket.NewConfig(wsURL, endpoint)
	if err != nil {
		return errors.New("creating websocket config failed").Wrap(err)
	}
	if userAgent != "" {
		config.Header.Set("User-Agent", userAgent)
	}

	start := time.Now()

	conn, err := config.DialContext(ctx)
	if err != nil {
		return errors.New("dialing viewer endpoint failed").Wrap(err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	// Unblocks reads when ctx is cancelled before its deadline.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	// The ping is answered once the camera is handled: frames received
	// before the pong may predate the camera.
	for _, msg := range []twebsocket.Msg{
		{Type: twebsocket.MsgTypeCamera, RequestID: 1, Camera: &camera},
		{Type: twebsocket.MsgTypePing, RequestID: 2},
	} {
		data, err := json.Marshal(msg)
		if err != nil {
			return errors.New("encoding message failed").Wrap(err)
		}
		if err = websocket.Message.Send(conn, string(data)); err != nil {
			return errors.New("sending message failed").
				WithTag("msg_type", msg.Type).
				Wrap(err)
		}
	}

	var ponged bool
	for {
		var data []byte
		if err := websocket.Message.Receive(conn, &data); err != nil {
			return errors.New("receiving frame failed").Wrap(err)
		}

		var frame twebsocket.FrameMsg
		if err := json.Unmarshal(data, &frame); err != nil {
			return errors.New("decoding message failed").Wrap(err)
		}

		switch frame.Type {
		case twebsocket.MsgTypeError:
			var e twebsocket.ErrorMsg
			json.Unmarshal(data, &e)
			return errors.New("viewer endpoint rejected a message").
				WithType(e.Code).
				WithTag("request_id", e.RequestID).
				WithTag("message", e.Message)

		case twebsocket.MsgTypePong:
			ponged = true

		case twebsocket.MsgTypeFrame:
			if !ponged {
				continue
			}

			res.LatencyMilliSec = float64(time.Since(start)) / float64(time.Millisecond)
			res.Frame = frame.Number
			res.Layers = len(frame.Layers)
			for _, l := range frame.Layers {
				res.Displayed += len(l.Displayed)
			}
			return nil
		}
	}
}

func defaultCamera() *geometry.Camera {
	return &geometry.Camera{
		Position:  r3.Vector{Z: 10},
		Direction: r3.Vector{Z: -1},
		Up:        r3.Vector{Y: 1},
		FovY:      1,
		Width:     640,
		Height:    480,
		Near:      0.1,
		Far:       1e7,
	}
}
