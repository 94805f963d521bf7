package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/tessera/cache"
	"github.com/aukilabs/tessera/engine"
	"github.com/aukilabs/tessera/featureflag"
	tesserahttp "github.com/aukilabs/tessera/http"
	"github.com/aukilabs/tessera/models"
	"github.com/aukilabs/tessera/modules/globe"
	"github.com/aukilabs/tessera/modules/planar"
	"github.com/aukilabs/tessera/modules/pointcloud"
	tilesmodule "github.com/aukilabs/tessera/modules/tiles3d"
	"github.com/aukilabs/tessera/provider"
	"github.com/aukilabs/tessera/provider/potree"
	"github.com/aukilabs/tessera/provider/tiles3d"
	"github.com/aukilabs/tessera/provider/tms"
	"github.com/aukilabs/tessera/scheduler"
	"github.com/aukilabs/tessera/smoketest"
	twebsocket "github.com/aukilabs/tessera/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Tessera version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "tessera_info",
		Help:        "Tessera information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string          `cli:""        env:"TESSERA_ADDR"                 help:"Listening address for viewer connections."`
	AdminAddr          string          `cli:""        env:"TESSERA_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string          `cli:""        env:"TESSERA_PUBLIC_ENDPOINT"      help:"The public endpoint where this Tessera server is reachable."`
	Layers             []string        `cli:""        env:"TESSERA_LAYERS"               help:"Comma separated layer definitions (kind=url[;option=value]...)."`
	LogLevel           string          `cli:""        env:"TESSERA_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool            `cli:""        env:"TESSERA_LOG_INDENT"           help:"Indent logs."`
	AllowedOrigins     []string        `cli:""        env:"TESSERA_ALLOWED_ORIGINS"      help:"Comma separated origins allowed to call the public endpoints."`
	FrameDuration      time.Duration   `cli:",hidden" env:"TESSERA_FRAME_DURATION"       help:"The duration of a frame."`
	GracePeriod        time.Duration   `cli:",hidden" env:"TESSERA_GRACE_PERIOD"         help:"How long hidden nodes are kept before being destroyed."`
	FrameInterval      time.Duration   `cli:",hidden" env:"TESSERA_FRAME_INTERVAL"       help:"The minimum interval between two frame reports sent to a viewer."`
	ClientIdleTimeout  time.Duration   `cli:",hidden" env:"TESSERA_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle viewer will be disconnected."`
	LogSummaryInterval time.Duration   `cli:",hidden" env:"TESSERA_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	SSEThreshold       float64         `cli:",hidden" env:"TESSERA_SSE_THRESHOLD"        help:"Default screen space error, in pixels, above which nodes subdivide."`
	PointBudget        int             `cli:",hidden" env:"TESSERA_POINT_BUDGET"         help:"Default maximum number of points drawn per frame by point cloud layers."`
	Cache              cacheConfig     `cli:",hidden" env:"-"                            help:"Cache configuration."`
	Scheduler          schedulerConfig `cli:",hidden" env:"-"                            help:"Scheduler configuration."`
	Events             eventsConfig    `cli:",hidden" env:"-"                            help:"Event pusher configuration."`
	FeatureFlags       []string        `cli:",hidden" env:"TESSERA_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool            `cli:""        env:"-"                            help:"Show version."`
	Help               bool            `cli:""        env:"-"                            help:"Show help."`
}

type cacheConfig struct {
	Capacity    int    `cli:",hidden" env:"TESSERA_CACHE_CAPACITY"     help:"The maximum number of resident resources."`
	GraceFrames uint64 `cli:",hidden" env:"TESSERA_CACHE_GRACE_FRAMES" help:"The number of frames an unused resource stays resident."`
}

type schedulerConfig struct {
	Workers      int           `cli:",hidden" env:"TESSERA_SCHEDULER_WORKERS"       help:"The number of resources loaded concurrently."`
	Rate         float64       `cli:",hidden" env:"TESSERA_SCHEDULER_RATE"          help:"The number of loads started per second. Zero is unlimited."`
	Burst        int           `cli:",hidden" env:"TESSERA_SCHEDULER_BURST"         help:"The number of loads started at once when a rate is set."`
	FetchTimeout time.Duration `cli:",hidden" env:"TESSERA_SCHEDULER_FETCH_TIMEOUT" help:"The maximum duration of a resource download."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"TESSERA_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"TESSERA_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"TESSERA_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"TESSERA_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4100",
		AdminAddr:          ":18290",
		PublicEndpoint:     "http://localhost:4100",
		LogLevel:           logs.InfoLevel.String(),
		AllowedOrigins:     []string{"*"},
		FrameDuration:      engine.DefaultFrameDuration,
		GracePeriod:        engine.DefaultGracePeriod,
		FrameInterval:      time.Millisecond * 100,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		SSEThreshold:       models.DefaultSSEThreshold,
		PointBudget:        1_000_000,
		Cache: cacheConfig{
			Capacity:    cache.DefaultCapacity,
			GraceFrames: cache.DefaultGraceFrames,
		},
		Scheduler: schedulerConfig{
			Workers:      scheduler.DefaultWorkers,
			FetchTimeout: provider.DefaultTimeout,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Tessera server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	transport := metrics.HTTPTransport(http.DefaultTransport)

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     transport,
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "tessera",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	e, err := newEngine(ctx, conf, transport)
	if err != nil {
		logs.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Run(ctx)
	}()

	readinessCheck := func() bool {
		_, ok := e.LastFrame()
		return ok
	}

	var service http.ServeMux
	service.Handle("/health", tesserahttp.HandlerWithCORS(http.HandlerFunc(tesserahttp.HandleHealthCheck), conf.AllowedOrigins...))
	service.Handle("/ready", tesserahttp.HandlerWithCORS(tesserahttp.HandleReadyCheck(readinessCheck), conf.AllowedOrigins...))
	service.Handle("/version", tesserahttp.HandlerWithCORS(tesserahttp.HandleVersion(version), conf.AllowedOrigins...))
	service.Handle("/layers", tesserahttp.HandlerWithCORS(tesserahttp.HandleLayers(e.LastFrame), conf.AllowedOrigins...))

	service.Handle("/", websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var vh twebsocket.Handler = &twebsocket.ViewerHandler{
				Engine:            e,
				ClientIdleTimeout: conf.ClientIdleTimeout,
				FrameInterval:     conf.FrameInterval,
			}
			h := twebsocket.HandlerWithLogs(vh, conf.LogSummaryInterval)
			h = twebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			twebsocket.Handle(ctx, conn, h)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", tesserahttp.HandleHealthCheck)
	admin.HandleFunc("/ready", tesserahttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/layers", tesserahttp.HandleLayers(e.LastFrame))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("Tessera %s smoke test", version),
	}))
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("layers", len(e.Layers())).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting tessera server")

	tesserahttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			tesserahttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	e.Close()
	wg.Wait()
}

// newEngine builds the engine with every provider and module, then adds the
// configured layers.
func newEngine(ctx context.Context, conf config, transport http.RoundTripper) (*engine.Engine, error) {
	c, err := cache.New(conf.Cache.Capacity, conf.Cache.GraceFrames)
	if err != nil {
		return nil, err
	}

	client := provider.NewClient(transport, conf.Scheduler.FetchTimeout)
	client.UserAgent = fmt.Sprintf("Tessera %s", version)

	s := scheduler.New(c, scheduler.Options{
		Workers: conf.Scheduler.Workers,
		Rate:    conf.Scheduler.Rate,
		Burst:   conf.Scheduler.Burst,
	})
	s.Register(tms.Protocol, &tms.Provider{Client: client})
	s.Register(tiles3d.Protocol, &tiles3d.Provider{Client: client})
	s.Register(potree.Protocol, &potree.Provider{Client: client})

	e := engine.New(s, c, engine.Options{
		FrameDuration: conf.FrameDuration,
		GracePeriod:   conf.GracePeriod,
		Flags:         featureflag.New(conf.FeatureFlags),
	})
	e.RegisterModule(globe.New())
	e.RegisterModule(&planar.Module{})
	e.RegisterModule(&tilesmodule.Module{})
	e.RegisterModule(&pointcloud.Module{})

	defaults := models.LayerOptions{
		SSEThreshold: conf.SSEThreshold,
		PointBudget:  conf.PointBudget,
	}

	for _, def := range conf.Layers {
		opts, err := parseLayer(def, defaults)
		if err != nil {
			return nil, err
		}

		l, err := models.NewLayer(e.NewLayerID(), opts)
		if err != nil {
			return nil, err
		}

		if err = e.AddLayer(ctx, l); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if len(conf.Layers) == 0 {
		return errors.New("no layer is configured")
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.GracePeriod <= 0 {
		return errors.New("grace period must be positive").
			WithTag("grace_period", conf.GracePeriod)
	}
	return nil
}
