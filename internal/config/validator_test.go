package config

import (
	"strings"
	"testing"
)

// minimalValidConfig returns a minimal valid Config for testing.
func minimalValidConfig() *Config {
	cfg := &Config{
		Transports: TransportsConfig{Stdio: true},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_NoTransportEnabled(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Transports.Stdio = false

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "at least one transport") {
		t.Errorf("error = %q, want to contain 'at least one transport'", err.Error())
	}
}

func TestValidate_InvalidHTTPAddr(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Transports.HTTP.Enabled = true
	cfg.Transports.HTTP.Addr = "not a valid addr!!"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid addr, got nil")
	}
	if !strings.Contains(err.Error(), "host:port") {
		t.Errorf("error = %q, want to contain 'host:port'", err.Error())
	}
}

func TestValidate_InvalidRole(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.Role = "neither"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid role, got nil")
	}
	if !strings.Contains(err.Error(), "Role") {
		t.Errorf("error = %q, want to contain 'Role'", err.Error())
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Logging.Level = "verbose"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "Level") {
		t.Errorf("error = %q, want to contain 'Level'", err.Error())
	}
}

func TestValidate_InvalidRequestTimeoutDuration(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Server.RequestTimeout = "not-a-duration"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid duration, got nil")
	}
	if !strings.Contains(err.Error(), "request_timeout") {
		t.Errorf("error = %q, want to contain 'request_timeout'", err.Error())
	}
}

func TestValidate_ZeroConfigWithStdio(t *testing.T) {
	t.Parallel()

	// Simulate a user running "turbomcp serve" with no config file, stdio
	// forced on by the CLI (the common zero-config MCP entry point).
	cfg := &Config{Transports: TransportsConfig{Stdio: true}}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() zero-config unexpected error: %v", err)
	}
}

func TestValidate_NonLoopbackHTTPWithoutAllowedOrigins(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Transports.HTTP.Enabled = true
	cfg.Transports.HTTP.Addr = "0.0.0.0:8080"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for non-loopback bind with no allowed_origins, got nil")
	}
	if !strings.Contains(err.Error(), "allowed_origins") {
		t.Errorf("error = %q, want to contain 'allowed_origins'", err.Error())
	}
}

func TestValidate_NonLoopbackHTTPWithAllowedOrigins(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Transports.HTTP.Enabled = true
	cfg.Transports.HTTP.Addr = "0.0.0.0:8080"
	cfg.Transports.HTTP.AllowedOrigins = []string{"https://example.com"}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error with allowed_origins configured: %v", err)
	}
}

func TestValidate_NonLoopbackWebSocketWithoutAllowedOrigins(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Transports.WebSocket.Enabled = true
	cfg.Transports.WebSocket.Addr = "0.0.0.0:8081"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for non-loopback bind with no allowed_origins, got nil")
	}
	if !strings.Contains(err.Error(), "allowed_origins") {
		t.Errorf("error = %q, want to contain 'allowed_origins'", err.Error())
	}
}

func TestValidate_DevModeEnablesTransport(t *testing.T) {
	t.Parallel()

	cfg := &Config{DevMode: true}
	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() dev-mode config unexpected error: %v", err)
	}
}
