//go:build !logless

// Package logger provides the shared zerolog logger for the firmware.
// Only run-level events go through here; inside the 1 kHz control path
// that means the one-shot start, goal and emergency transitions.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
)

var Log = logger.With().Caller().Logger().Output(zerolog.ConsoleWriter{Out: os.Stderr})

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// SetLevel adjusts the global log level (e.g. from a -v flag).
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}
