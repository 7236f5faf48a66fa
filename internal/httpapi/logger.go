package httpapi

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions describes the process in every log line.
type LogOptions struct {
	Level   string
	Version string
	// Output defaults to stdout.
	Output io.Writer
}

// NewLogger returns the JSON logger shared by the API and the layer
// controllers. The level is set on the logger rather than globally so
// several loggers can coexist in one process.
func NewLogger(opts LogOptions) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	ctx := zerolog.New(out).Level(parseLevel(opts.Level)).With().Timestamp().Str("service", "neomap")
	if v := strings.TrimSpace(opts.Version); v != "" {
		ctx = ctx.Str("version", v)
	}
	return ctx.Logger()
}

// parseLevel accepts zerolog's level names plus "warning"; anything else,
// including an empty value, means info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
