package logging

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// New builds the stderr diagnostic logger. The JSON envelope on stdout is the
// machine surface; this logger only exists for humans running with --verbose.
func New(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Nop returns a disabled logger for tests and library callers that do not
// care about diagnostics.
func Nop() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
