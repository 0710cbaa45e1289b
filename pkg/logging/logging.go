// Package logging configures zerolog for the chitchat binaries.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a logger writing to w. Format "json" emits one JSON object per
// line; anything else uses the human-readable console writer. Unknown levels
// fall back to info.
func New(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
