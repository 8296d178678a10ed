// Package logger builds the process slog logger with optional file rotation.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// LogDir enables a rotating log file next to stdout. Empty means stdout only.
	LogDir string
	// FileName defaults to "studio.log".
	FileName string

	Debug bool
	JSON  bool

	Component string

	// Output replaces stdout; tests use it to capture records.
	Output io.Writer
}

// New returns a logger and a close func for the rotating file, if any.
func New(cfg Config) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var writer io.Writer = os.Stdout
	if cfg.Output != nil {
		writer = cfg.Output
	}
	closeFn := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, nil, err
		}
		name := cfg.FileName
		if name == "" {
			name = "studio.log"
		}
		logFile := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, name),
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		writer = io.MultiWriter(writer, logFile)
		closeFn = logFile.Close
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger := slog.New(handler)
	if cfg.Component != "" {
		logger = logger.With("component", cfg.Component)
	}
	return logger, closeFn, nil
}

// Init builds a logger with New and installs it as the slog default.
func Init(cfg Config) (func() error, error) {
	logger, closeFn, err := New(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeFn, nil
}

// WithComponent returns the default logger tagged with a component.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
