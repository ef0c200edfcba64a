package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/turbomcp/turbomcp/internal/config"
	"github.com/turbomcp/turbomcp/internal/router"
	"github.com/turbomcp/turbomcp/internal/server"
	"github.com/turbomcp/turbomcp/internal/session"
	"github.com/turbomcp/turbomcp/internal/telemetry"
	"github.com/turbomcp/turbomcp/internal/transport"
)

var devMode bool
var serveStdio bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP runtime",
	Long: `Start the turbomcp runtime over every transport enabled in the config.

Examples:
  # Start with config file settings
  turbomcp serve

  # Start a zero-config stdio server (the common MCP entry point)
  turbomcp serve --stdio

  # Start with a specific config file
  turbomcp --config /path/to/turbomcp.yaml serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, relaxed transport defaults)")
	serveCmd.Flags().BoolVar(&serveStdio, "stdio", false, "Force the stdio transport on regardless of config")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if devMode {
		cfg.DevMode = true
	}
	if serveStdio {
		cfg.Transports.Stdio = true
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// stop() restores default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := buildLogger(cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	return run(ctx, cfg, logger)
}

// run wires config into the observability stack, the method registry, and
// one *server.Server per enabled transport, then blocks until ctx is
// cancelled, draining every transport within the configured DrainTimeout.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	requestTimeout, err := time.ParseDuration(cfg.Server.RequestTimeout)
	if err != nil {
		requestTimeout = session.DefaultRequestTimeout
	}
	drainTimeout, err := time.ParseDuration(cfg.Server.DrainTimeout)
	if err != nil {
		drainTimeout = session.DefaultDrainTimeout
	}

	role := session.RoleServer
	if cfg.Server.Role == "client" {
		role = session.RoleClient
	}

	var reg *prometheus.Registry
	var metrics *telemetry.Metrics
	if cfg.Metrics.Enabled {
		reg, metrics = telemetry.NewMetrics()
	}

	var instrumentation *telemetry.Instrumentation
	if cfg.Tracing.Enabled {
		w, closeFn, err := tracingWriter(cfg.Tracing)
		if err != nil {
			return fmt.Errorf("failed to open tracing output: %w", err)
		}
		if closeFn != nil {
			defer closeFn()
		}
		instrumentation, err = telemetry.NewInstrumentation(ctx, cfg.Tracing.ServiceName, w)
		if err != nil {
			return fmt.Errorf("failed to start instrumentation: %w", err)
		}
		defer instrumentation.Shutdown(context.Background())
	}

	rt := router.New(router.NewRegistry().Build(), router.ServerInfo{
		Name:    "turbomcp",
		Version: Version,
	}, logger)

	srvCfg := server.Config{
		Role:                  role,
		ProtocolVersion:       cfg.Server.ProtocolVersion,
		MaxConcurrentRequests: cfg.Server.MaxConcurrentRequests,
		RequestTimeout:        requestTimeout,
		DrainTimeout:          drainTimeout,
		Logger:                logger,
		Metrics:               metrics,
		Instrumentation:       instrumentation,
	}
	srv := server.New(srvCfg, rt)

	listeners, err := startListeners(cfg)
	if err != nil {
		return err
	}

	health := telemetry.NewHealthChecker(Version)
	if cfg.Transports.Stdio {
		health.WithCheck("stdio", livenessFlag(&stdioAlive))
	}
	for _, l := range listeners {
		health.WithCheck(l.name, livenessFlag(l.alive))
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = startMetricsServer(cfg.Metrics, reg, health, logger)
	}

	var wg sync.WaitGroup
	if cfg.Transports.Stdio {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer stdioAlive.Store(false)
			if err := srv.ServeStdio(ctx); err != nil {
				logger.Warn("stdio session ended", "error", err)
			}
		}()
		logger.Info("transport enabled", "transport", "stdio")
	}
	for _, l := range listeners {
		wg.Add(1)
		go func(l namedListener) {
			defer wg.Done()
			defer l.alive.Store(false)
			if err := srv.Serve(ctx, l.ln, l.name); err != nil {
				logger.Warn("listener ended", "transport", l.name, "error", err)
			}
		}(l)
		logger.Info("transport enabled", "transport", l.name, "addr", l.addr)
	}

	logger.Info("turbomcp serving",
		"version", Version,
		"dev_mode", cfg.DevMode,
		"protocol_version", cfg.Server.ProtocolVersion,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := srv.Shutdown(context.Background(), drainTimeout); err != nil {
		logger.Warn("shutdown did not complete cleanly", "error", err)
	}
	wg.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	logger.Info("turbomcp stopped")
	return nil
}

// stdioAlive tracks the single process-lifetime stdio session's liveness
// for the health endpoint (spec's supplemented-features §10.5).
var stdioAlive atomic.Bool

func init() {
	stdioAlive.Store(true)
}

func livenessFlag(flag *atomic.Bool) telemetry.LivenessCheck {
	return func() (bool, string) {
		return flag.Load(), ""
	}
}

type namedListener struct {
	name  string
	addr  string
	ln    transport.Listener
	alive *atomic.Bool
}

// startListeners constructs a transport.Listener for every non-stdio
// transport the config enables.
func startListeners(cfg *config.Config) ([]namedListener, error) {
	var out []namedListener

	if cfg.Transports.HTTP.Enabled {
		ln, err := transport.NewHTTPListener(cfg.Transports.HTTP.Addr, cfg.Transports.HTTP.Path, cfg.Transports.HTTP.AllowedOrigins)
		if err != nil {
			return nil, fmt.Errorf("http transport: %w", err)
		}
		out = append(out, namedListener{name: "http", addr: cfg.Transports.HTTP.Addr, ln: ln, alive: newAliveFlag()})
	}

	if cfg.Transports.WebSocket.Enabled {
		ln, err := transport.NewWebSocketListener(cfg.Transports.WebSocket.Addr, cfg.Transports.WebSocket.Path, cfg.Transports.WebSocket.AllowedOrigins)
		if err != nil {
			return nil, fmt.Errorf("websocket transport: %w", err)
		}
		out = append(out, namedListener{name: "websocket", addr: cfg.Transports.WebSocket.Addr, ln: ln, alive: newAliveFlag()})
	}

	if cfg.Transports.TCP.Enabled {
		ln, err := transport.NewTCPListener(cfg.Transports.TCP.Addr)
		if err != nil {
			return nil, fmt.Errorf("tcp transport: %w", err)
		}
		out = append(out, namedListener{name: "tcp", addr: cfg.Transports.TCP.Addr, ln: ln, alive: newAliveFlag()})
	}

	if cfg.Transports.Unix.Enabled {
		ln, err := transport.NewUnixListener(cfg.Transports.Unix.Path)
		if err != nil {
			return nil, fmt.Errorf("unix transport: %w", err)
		}
		out = append(out, namedListener{name: "unix", addr: cfg.Transports.Unix.Path, ln: ln, alive: newAliveFlag()})
	}

	return out, nil
}

func newAliveFlag() *atomic.Bool {
	var b atomic.Bool
	b.Store(true)
	return &b
}

// startMetricsServer serves /metrics (Prometheus) and /health on their own
// listener, grounded on the teacher's Metrics/HealthChecker shape but
// hosted independently of the MCP transport so scraping never contends
// with the JSON-RPC stream for a connection slot.
func startMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry, health *telemetry.HealthChecker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/health", health.Handler())

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	logger.Info("metrics endpoint enabled", "addr", cfg.Addr, "path", cfg.Path)
	return srv
}

// buildLogger builds the stderr (plus optional rotating file) slog.Logger.
// stdout is reserved for the stdio transport's JSON-RPC stream and must
// never receive a log line.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := parseLogLevel(cfg.Logging.Level)
	return telemetry.NewLogger(telemetry.LogConfig{
		Level:      level,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
}

// parseLogLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// tracingWriter opens the destination for emitted spans/metrics: the
// configured file, rotated via lumberjack the same way the log sink is, or
// os.Stderr when no file is configured.
func tracingWriter(cfg config.TracingConfig) (io.Writer, func() error, error) {
	if cfg.OutputFile == "" {
		return os.Stderr, nil, nil
	}
	f := &lumberjack.Logger{Filename: cfg.OutputFile, MaxSize: 5, MaxBackups: 3, MaxAge: 7}
	return f, f.Close, nil
}
