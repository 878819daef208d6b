// Package logging configures the process-wide zerolog logger (§ ambient
// stack).
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to stderr, honoring level and
// pretty-console formatting for local development.
func New(level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		l = zerolog.InfoLevel
	}

	var writer = os.Stderr
	logger := zerolog.New(writer).Level(l).With().Timestamp().Caller().Logger()
	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: writer})
	}
	return logger
}
