package telemetry

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig shapes the process logger. Stdout is reserved for the stdio
// transport's JSON-RPC stream, so logs always go to stderr and/or a
// rotated file — never stdout (matches the teacher's start.go comment and
// the unraid agent's "stdio mode: stdout is reserved" split).
type LogConfig struct {
	Level      slog.Level
	FilePath   string // empty disables file rotation
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger builds the process-wide structured logger. With FilePath set,
// log lines go to both stderr and the rotating file; without it, stderr
// only.
func NewLogger(cfg LogConfig) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.FilePath != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    defaultInt(cfg.MaxSizeMB, 5),
			MaxBackups: defaultInt(cfg.MaxBackups, 3),
			MaxAge:     defaultInt(cfg.MaxAgeDays, 7),
			Compress:   false,
		}
		w = io.MultiWriter(os.Stderr, fileWriter)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level}))
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
