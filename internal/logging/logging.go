package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service is the value of the "service" field on every log line.
const Service = "fraud-signals"

// Init configures the global zerolog logger. Console output is human-readable
// and meant for terminals; otherwise each event is a JSON line on stderr.
func Init(level string, console bool) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	log.Logger = New(os.Stderr, lvl, console)
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// New builds a logger writing to w.
func New(w io.Writer, lvl zerolog.Level, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", Service).
		Logger()
}

// ParseLevel accepts debug, info, warn and error. Empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return lvl, nil
}

// IsTerminal reports whether f looks like an interactive terminal.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
