// Package config provides configuration types for the turbomcp runtime.
//
// This mirrors the teacher's OSS configuration shape (a single YAML-backed
// struct validated with struct tags) but the schema itself describes a
// protocol-core server: which transports to listen on, session concurrency
// limits, and the ambient observability stack. There is no policy, audit,
// or auth schema here — authentication and authorization are the embedding
// application's concern (spec §1 Non-goals), not this core's.
package config

// Config is the top-level configuration for the turbomcp runtime.
type Config struct {
	// Server configures session defaults shared by every transport.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Transports configures which transports to start and their listen
	// addresses. Any subset may be enabled; stdio and at least one other
	// transport may run concurrently from the same process.
	Transports TransportsConfig `yaml:"transports" mapstructure:"transports"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// Tracing configures the OpenTelemetry stdout exporters.
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`

	// DevMode enables verbose logging and relaxed defaults.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the session defaults applied to every connection,
// regardless of which transport accepted it.
type ServerConfig struct {
	// Role is "server" or "client" (spec §4.3). turbomcp serve builds its
	// sessions with the client role when this is "client" and with the
	// server role otherwise.
	Role string `yaml:"role" mapstructure:"role" validate:"omitempty,oneof=server client"`

	// ProtocolVersion is the MCP protocol version logged at startup and
	// carried into each session's config. The initialize response always
	// reports session.DefaultProtocolVersion; this value does not change it.
	// Defaults to the latest supported version if empty.
	ProtocolVersion string `yaml:"protocol_version" mapstructure:"protocol_version"`

	// MaxConcurrentRequests bounds the number of inbound requests a single
	// session may have in flight at once (spec §4.3.6). Defaults to 64.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests" mapstructure:"max_concurrent_requests" validate:"omitempty,min=1"`

	// RequestTimeout bounds how long an outbound request waits for the
	// peer's response before it fails with a timeout (e.g. "30s"). Inbound
	// handlers are not bounded by it. Defaults to "30s".
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty"`

	// DrainTimeout bounds graceful shutdown: how long Shutdown waits for
	// in-flight handlers and pending outbound requests to settle before
	// aborting them (e.g. "5s"). Defaults to "5s".
	DrainTimeout string `yaml:"drain_timeout" mapstructure:"drain_timeout" validate:"omitempty"`
}

// TransportsConfig enables and addresses each of the five wire transports
// (spec §4.2). Each transport is independently optional.
type TransportsConfig struct {
	// Stdio runs one session for the process lifetime over stdin/stdout.
	Stdio bool `yaml:"stdio" mapstructure:"stdio"`

	// HTTP configures the Streamable HTTP+SSE transport.
	HTTP HTTPTransportConfig `yaml:"http" mapstructure:"http"`

	// WebSocket configures the WebSocket transport.
	WebSocket WebSocketTransportConfig `yaml:"websocket" mapstructure:"websocket"`

	// TCP configures the raw TCP transport.
	TCP TCPTransportConfig `yaml:"tcp" mapstructure:"tcp"`

	// Unix configures the Unix domain socket transport.
	Unix UnixTransportConfig `yaml:"unix" mapstructure:"unix"`
}

// HTTPTransportConfig configures the Streamable HTTP+SSE listener.
type HTTPTransportConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Addr is the address to listen on (e.g. "127.0.0.1:8080").
	// Defaults to "127.0.0.1:8080" if empty.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	// Path is the MCP endpoint path. Defaults to "/mcp".
	Path string `yaml:"path" mapstructure:"path"`
	// AllowedOrigins is the Origin header allow-list checked on every
	// request (spec §4.2.2, §6 — DNS-rebinding protection). Required
	// whenever Addr binds to anything other than loopback.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// WebSocketTransportConfig configures the WebSocket listener.
type WebSocketTransportConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Addr is the address to listen on. Defaults to "127.0.0.1:8081".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	// Path is the upgrade endpoint path. Defaults to "/mcp".
	Path string `yaml:"path" mapstructure:"path"`
	// AllowedOrigins is the Origin header allow-list checked by the
	// WebSocket upgrader (spec §4.2.2, §6). Required whenever Addr binds to
	// anything other than loopback.
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// TCPTransportConfig configures the raw line-delimited TCP listener.
type TCPTransportConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Addr is the address to listen on. Defaults to "127.0.0.1:8082".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// UnixTransportConfig configures the Unix domain socket listener.
type UnixTransportConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Path is the socket file path. Defaults to "./turbomcp.sock".
	Path string `yaml:"path" mapstructure:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level sets the minimum log level. Valid values: "debug", "info",
	// "warn", "error". Defaults to "info". DevMode=true forces "debug".
	Level string `yaml:"level" mapstructure:"level" validate:"omitempty,oneof=debug info warn warning error"`

	// FilePath, when set, tees logs to a rotating file via lumberjack in
	// addition to stderr. Empty means stderr only.
	FilePath string `yaml:"file_path" mapstructure:"file_path"`

	// MaxSizeMB is the max size of a log file before rotation. Defaults to 5.
	MaxSizeMB int `yaml:"max_size_mb" mapstructure:"max_size_mb" validate:"omitempty,min=1"`

	// MaxBackups is the number of rotated log files to keep. Defaults to 3.
	MaxBackups int `yaml:"max_backups" mapstructure:"max_backups" validate:"omitempty,min=0"`

	// MaxAgeDays is the number of days to retain rotated log files. Defaults to 7.
	MaxAgeDays int `yaml:"max_age_days" mapstructure:"max_age_days" validate:"omitempty,min=0"`
}

// MetricsConfig configures the Prometheus metrics endpoint. It is served on
// its own listener rather than the MCP transport's, so metrics scraping
// never competes with the JSON-RPC stream for a connection slot.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Addr is the address the metrics/health server listens on. Defaults
	// to "127.0.0.1:9090".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`
	// Path is the metrics endpoint path. Defaults to "/metrics".
	Path string `yaml:"path" mapstructure:"path"`
}

// TracingConfig configures the OpenTelemetry stdout trace/metric exporters.
type TracingConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// ServiceName identifies this process in emitted spans/metrics.
	// Defaults to "turbomcp".
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
	// OutputFile, when set, writes spans/metrics as JSON lines to this
	// path instead of stderr. Empty means stderr.
	OutputFile string `yaml:"output_file" mapstructure:"output_file"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.Role == "" {
		c.Server.Role = "server"
	}
	if c.Server.ProtocolVersion == "" {
		c.Server.ProtocolVersion = "2025-06-18"
	}
	if c.Server.MaxConcurrentRequests == 0 {
		c.Server.MaxConcurrentRequests = 64
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = "30s"
	}
	if c.Server.DrainTimeout == "" {
		c.Server.DrainTimeout = "5s"
	}

	if c.Transports.HTTP.Addr == "" {
		c.Transports.HTTP.Addr = "127.0.0.1:8080"
	}
	if c.Transports.HTTP.Path == "" {
		c.Transports.HTTP.Path = "/mcp"
	}
	if c.Transports.WebSocket.Addr == "" {
		c.Transports.WebSocket.Addr = "127.0.0.1:8081"
	}
	if c.Transports.WebSocket.Path == "" {
		c.Transports.WebSocket.Path = "/mcp"
	}
	if c.Transports.TCP.Addr == "" {
		c.Transports.TCP.Addr = "127.0.0.1:8082"
	}
	if c.Transports.Unix.Path == "" {
		c.Transports.Unix.Path = "./turbomcp.sock"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 5
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 3
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 7
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "127.0.0.1:9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "turbomcp"
	}
}

// SetDevDefaults applies permissive defaults for development mode: debug
// logging, and the HTTP transport enabled when no transport is configured,
// so "turbomcp serve --dev" is runnable with no config file at all.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Logging.Level = "debug"
	if !c.Transports.Stdio && !c.Transports.HTTP.Enabled &&
		!c.Transports.WebSocket.Enabled && !c.Transports.TCP.Enabled && !c.Transports.Unix.Enabled {
		c.Transports.HTTP.Enabled = true
	}
}

// AnyTransportEnabled reports whether at least one transport is configured
// to start.
func (c *Config) AnyTransportEnabled() bool {
	return c.Transports.Stdio || c.Transports.HTTP.Enabled ||
		c.Transports.WebSocket.Enabled || c.Transports.TCP.Enabled || c.Transports.Unix.Enabled
}
