// Package logging configures the global zerolog logger and the optional
// session log that mirrors the request trace to a file.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger. format is "console" or "json"; a nil
// writer means stderr.
func Setup(level, format string, w io.Writer) zerolog.Level {
	if w == nil {
		w = os.Stderr
	}

	lvl := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = w
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(lvl)

	return lvl
}

// ParseLevel parses a level name, falling back to info
func ParseLevel(raw string) zerolog.Level {
	if raw == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}
