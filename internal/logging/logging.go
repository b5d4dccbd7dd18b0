// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup sets the global level and output. Unknown levels fall back to info.
// When pretty is set, output goes through a console writer on stderr.
func Setup(level string, pretty bool) zerolog.Level {
	return SetupWriter(os.Stderr, level, pretty)
}

// SetupWriter is Setup with an explicit output.
func SetupWriter(w io.Writer, level string, pretty bool) zerolog.Level {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, NoColor: w != os.Stderr}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return lvl
}

// Component returns a child logger tagged with a component name.
func Component(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
