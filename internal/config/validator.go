package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/turbomcp/turbomcp/internal/transport"
)

// Validate validates the Config using struct tags and cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateDurations(); err != nil {
		return err
	}

	if err := c.validateOriginPolicy(); err != nil {
		return err
	}

	if !c.AnyTransportEnabled() {
		return errors.New("transports: at least one transport must be enabled")
	}

	return nil
}

// validateOriginPolicy rejects an HTTP or WebSocket transport bound to a
// non-loopback address with no Origin allow-list configured: spec §6
// requires Origin validation against an allow-list for any such bind, and
// an empty allow-list has no safe default once other hosts can reach it.
func (c *Config) validateOriginPolicy() error {
	if c.Transports.HTTP.Enabled &&
		len(c.Transports.HTTP.AllowedOrigins) == 0 &&
		!transport.IsLoopbackAddr(c.Transports.HTTP.Addr) {
		return fmt.Errorf("transports.http: addr %q is not loopback; allowed_origins must be configured", c.Transports.HTTP.Addr)
	}
	if c.Transports.WebSocket.Enabled &&
		len(c.Transports.WebSocket.AllowedOrigins) == 0 &&
		!transport.IsLoopbackAddr(c.Transports.WebSocket.Addr) {
		return fmt.Errorf("transports.websocket: addr %q is not loopback; allowed_origins must be configured", c.Transports.WebSocket.Addr)
	}
	return nil
}

// validateDurations ensures the duration-as-string fields parse, since
// mapstructure/yaml carry them as plain strings (spec §4.3.6 timeouts are
// parsed once here rather than on every session construction).
func (c *Config) validateDurations() error {
	fields := map[string]string{
		"server.request_timeout": c.Server.RequestTimeout,
		"server.drain_timeout":   c.Server.DrainTimeout,
	}
	for field, value := range fields {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
