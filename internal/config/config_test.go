package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.Role != "server" {
		t.Errorf("Server.Role = %q, want %q", cfg.Server.Role, "server")
	}
	if cfg.Server.ProtocolVersion != "2025-06-18" {
		t.Errorf("ProtocolVersion = %q, want %q", cfg.Server.ProtocolVersion, "2025-06-18")
	}
	if cfg.Server.MaxConcurrentRequests != 64 {
		t.Errorf("MaxConcurrentRequests = %d, want 64", cfg.Server.MaxConcurrentRequests)
	}
	if cfg.Server.RequestTimeout != "30s" {
		t.Errorf("RequestTimeout = %q, want %q", cfg.Server.RequestTimeout, "30s")
	}
	if cfg.Server.DrainTimeout != "5s" {
		t.Errorf("DrainTimeout = %q, want %q", cfg.Server.DrainTimeout, "5s")
	}
	if cfg.Transports.HTTP.Addr != "127.0.0.1:8080" {
		t.Errorf("HTTP.Addr = %q, want %q", cfg.Transports.HTTP.Addr, "127.0.0.1:8080")
	}
	if cfg.Transports.HTTP.Path != "/mcp" {
		t.Errorf("HTTP.Path = %q, want %q", cfg.Transports.HTTP.Path, "/mcp")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
	if cfg.Tracing.ServiceName != "turbomcp" {
		t.Errorf("Tracing.ServiceName = %q, want %q", cfg.Tracing.ServiceName, "turbomcp")
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{
			MaxConcurrentRequests: 16,
			RequestTimeout:        "10s",
		},
		Transports: TransportsConfig{
			HTTP: HTTPTransportConfig{Addr: ":9090"},
		},
	}
	cfg.SetDefaults()

	if cfg.Server.MaxConcurrentRequests != 16 {
		t.Errorf("MaxConcurrentRequests was overwritten: got %d, want 16", cfg.Server.MaxConcurrentRequests)
	}
	if cfg.Server.RequestTimeout != "10s" {
		t.Errorf("RequestTimeout was overwritten: got %q, want %q", cfg.Server.RequestTimeout, "10s")
	}
	if cfg.Transports.HTTP.Addr != ":9090" {
		t.Errorf("HTTP.Addr was overwritten: got %q, want %q", cfg.Transports.HTTP.Addr, ":9090")
	}
}

func TestConfig_SetDevDefaults_EnablesHTTPWhenNothingConfigured(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if !cfg.Transports.HTTP.Enabled {
		t.Error("expected HTTP transport to be enabled by dev defaults when nothing else is configured")
	}
}

func TestConfig_SetDevDefaults_RespectsExplicitTransportChoice(t *testing.T) {
	t.Parallel()

	cfg := Config{DevMode: true, Transports: TransportsConfig{Stdio: true}}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if cfg.Transports.HTTP.Enabled {
		t.Error("dev defaults should not force HTTP on when stdio was explicitly enabled")
	}
}

func TestAnyTransportEnabled(t *testing.T) {
	t.Parallel()

	var cfg Config
	if cfg.AnyTransportEnabled() {
		t.Error("AnyTransportEnabled() = true, want false for zero-value config")
	}

	cfg.Transports.Stdio = true
	if !cfg.AnyTransportEnabled() {
		t.Error("AnyTransportEnabled() = false, want true with stdio enabled")
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "turbomcp.yaml")
	_ = os.WriteFile(cfgPath, []byte("transports:\n  stdio: true\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "turbomcp.yml")
	_ = os.WriteFile(cfgPath, []byte("transports:\n  stdio: true\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "turbomcp" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "turbomcp"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "turbomcp.yaml")
	ymlPath := filepath.Join(dir, "turbomcp.yml")
	_ = os.WriteFile(yamlPath, []byte("transports:\n  stdio: true\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("transports:\n  stdio: false\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
