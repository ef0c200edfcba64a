// Package config provides configuration loading for the turbomcp runtime.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for turbomcp.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("turbomcp")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: TURBOMCP_SERVER_MAX_CONCURRENT_REQUESTS
	viper.SetEnvPrefix("TURBOMCP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a turbomcp config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "turbomcp" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".turbomcp"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "turbomcp"))
		}
	} else {
		paths = append(paths, "/etc/turbomcp")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for turbomcp.yaml or
// .yml. Returns the full path of the first match, or empty string if none
// found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "turbomcp"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the config keys most useful to override without a
// config file. Example: TURBOMCP_TRANSPORTS_HTTP_ADDR overrides
// transports.http.addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.role")
	_ = viper.BindEnv("server.protocol_version")
	_ = viper.BindEnv("server.max_concurrent_requests")
	_ = viper.BindEnv("server.request_timeout")
	_ = viper.BindEnv("server.drain_timeout")

	_ = viper.BindEnv("transports.stdio")
	_ = viper.BindEnv("transports.http.enabled")
	_ = viper.BindEnv("transports.http.addr")
	_ = viper.BindEnv("transports.http.path")
	_ = viper.BindEnv("transports.http.allowed_origins")
	_ = viper.BindEnv("transports.websocket.enabled")
	_ = viper.BindEnv("transports.websocket.addr")
	_ = viper.BindEnv("transports.websocket.path")
	_ = viper.BindEnv("transports.websocket.allowed_origins")
	_ = viper.BindEnv("transports.tcp.enabled")
	_ = viper.BindEnv("transports.tcp.addr")
	_ = viper.BindEnv("transports.unix.enabled")
	_ = viper.BindEnv("transports.unix.path")

	_ = viper.BindEnv("logging.level")
	_ = viper.BindEnv("logging.file_path")

	_ = viper.BindEnv("metrics.enabled")
	_ = viper.BindEnv("metrics.addr")
	_ = viper.BindEnv("metrics.path")

	_ = viper.BindEnv("tracing.enabled")
	_ = viper.BindEnv("tracing.service_name")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults and dev defaults, validates, and returns the Config. Callers
// that need CLI flag overrides (e.g. --dev) applied before validation use
// LoadConfigRaw instead.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; continue with env vars and flag defaults.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigRaw reads the configuration file and applies defaults, but does
// NOT apply dev defaults or validate. Use this when CLI flags may override
// DevMode before validation.
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
