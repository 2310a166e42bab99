package telemetry

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide zerolog logger built from LoggingConfig.
// Components get a child tagged with their name.
type Logger struct {
	zlog zerolog.Logger
}

// NewLogger opens cfg.Output and returns a logger writing to it. Output is
// stderr, stdout, discard or a file path opened for appending.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var w io.Writer
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	case "discard":
		w = io.Discard
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output %s: %w", cfg.Output, err)
		}
		w = file
	}

	return NewLoggerWriter(cfg, w), nil
}

// NewLoggerWriter returns a logger writing to w.
func NewLoggerWriter(cfg LoggingConfig, w io.Writer) *Logger {
	consoleTime := time.RFC3339
	switch cfg.TimeFormat {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		consoleTime = "unix"
	case "unixms":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTime}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if cfg.EnableCaller {
		ctx = ctx.Caller()
	}
	return &Logger{zlog: ctx.Logger()}
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// NewComponentLogger returns a child logger whose entries carry
// component=name.
func (l *Logger) NewComponentLogger(name string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", name).Logger()}
}
