package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/teiwaz/featureflag"
	"github.com/aukilabs/teiwaz/geometry"
	teiwazhttp "github.com/aukilabs/teiwaz/http"
	"github.com/aukilabs/teiwaz/smoketest"
	teiwazws "github.com/aukilabs/teiwaz/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Teiwaz version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "teiwaz_info",
		Help:        "Teiwaz information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string          `cli:""        env:"TEIWAZ_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string          `cli:""        env:"TEIWAZ_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string          `cli:""        env:"TEIWAZ_PUBLIC_ENDPOINT"      help:"The public endpoint where this Teiwaz server is reachable."`
	LogLevel           string          `cli:""        env:"TEIWAZ_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool            `cli:""        env:"TEIWAZ_LOG_INDENT"           help:"Indent logs."`
	ClientIdleTimeout  time.Duration   `cli:",hidden" env:"TEIWAZ_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle client will be disconnected."`
	LogSummaryInterval time.Duration   `cli:",hidden" env:"TEIWAZ_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Placement          placementConfig `cli:",hidden" env:"-"                           help:"Placement engine configuration."`
	Events             eventsConfig    `cli:",hidden" env:"-"                           help:"Event pusher configuration."`
	FeatureFlags       []string        `cli:",hidden" env:"TEIWAZ_FEATURE_FLAGS"        help:"Comma separated feature flags."`
	Version            bool            `cli:""        env:"-"                           help:"Show version."`
	Help               bool            `cli:""        env:"-"                           help:"Show help."`
}

type placementConfig struct {
	GapMillimeters             float64 `cli:",hidden" env:"TEIWAZ_PLACEMENT_GAP_MM"              help:"Minimum clearance between a tag and any obstacle, in millimeters."`
	EstimatedWidthMillimeters  float64 `cli:",hidden" env:"TEIWAZ_PLACEMENT_ESTIMATED_WIDTH_MM"  help:"Conservative tag width used before a tag exists, in millimeters."`
	EstimatedHeightMillimeters float64 `cli:",hidden" env:"TEIWAZ_PLACEMENT_ESTIMATED_HEIGHT_MM" help:"Conservative tag height used before a tag exists, in millimeters."`
	MinLeaderLengthMillimeters float64 `cli:",hidden" env:"TEIWAZ_PLACEMENT_MIN_LEADER_MM"       help:"Head to anchor distance over which a tag draws a leader, in millimeters."`
	CellSize                   float64 `cli:",hidden" env:"TEIWAZ_PLACEMENT_CELL_SIZE"           help:"Broad-phase grid cell size in the model's internal unit. Zero selects the default."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"TEIWAZ_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"TEIWAZ_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"TEIWAZ_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"TEIWAZ_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4100",
		AdminAddr:          ":18290",
		PublicEndpoint:     "http://localhost:4100",
		LogLevel:           logs.InfoLevel.String(),
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Placement: placementConfig{
			GapMillimeters:             32,
			EstimatedWidthMillimeters:  3600,
			EstimatedHeightMillimeters: 1200,
			MinLeaderLengthMillimeters: 200,
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
		Help("Starts Teiwaz server.").
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
			SDKType:          "teiwaz",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	var ready atomic.Bool
	readinessCheck := ready.Load

	var service http.ServeMux
	service.Handle("/health", teiwazhttp.HandleWithCORS(http.HandlerFunc(teiwazhttp.HandleHealthCheck)))
	service.Handle("/ready", teiwazhttp.HandleWithCORS(http.HandlerFunc(teiwazhttp.HandleReadyCheck(readinessCheck))))
	service.Handle("/version", teiwazhttp.HandleWithCORS(http.HandlerFunc(teiwazhttp.HandleVersion(version))))

	service.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, func(ctx context.Context, res smoketest.Results) error {
		logs.WithTag("endpoint", res.Endpoint).
			WithTag("view_uuid", res.ViewUUID).
			WithTag("found", res.Found).
			WithTag("latency", res.Latency).
			WithTag("error", res.Error).
			Info("smoke test completed")
		return nil
	}))

	service.Handle("/", teiwazhttp.HandleWithCORS(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var ph teiwazws.Handler = &teiwazws.PlacementHandler{
				ClientIdleTimeout: conf.ClientIdleTimeout,
				Gap:               conf.Placement.GapMillimeters * geometry.FeetPerMillimeter,
				EstimatedWidth:    conf.Placement.EstimatedWidthMillimeters * geometry.FeetPerMillimeter,
				EstimatedHeight:   conf.Placement.EstimatedHeightMillimeters * geometry.FeetPerMillimeter,
				MinLeaderLength:   conf.Placement.MinLeaderLengthMillimeters * geometry.FeetPerMillimeter,
				CellSize:          conf.Placement.CellSize,
				FeatureFlags:      featureFlags,
			}
			h := teiwazws.HandlerWithLogs(ph, conf.LogSummaryInterval)
			h = teiwazws.HandlerWithMetrics(h, conf.PublicEndpoint)
			defer h.Close()

			teiwazws.Handle(ctx, conn, h)
		},
	}))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", teiwazhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", teiwazhttp.HandleReadyCheck(readinessCheck))

	ready.Store(true)

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("feature_flags", conf.FeatureFlags).
		Info("starting teiwaz server")

	teiwazhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			teiwazhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func validateConfig(conf config) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if conf.Placement.EstimatedWidthMillimeters <= 0 ||
		conf.Placement.EstimatedHeightMillimeters <= 0 {
		return errors.New("estimated tag size must be positive")
	}

	return nil
}
