// Package applog configures the process-wide zerolog logger once at startup,
// in the style of web3guy0-polybot/cmd/polybot/main.go: a package-level
// log.Logger, console output for local runs, structured fields over string
// formatting everywhere else in the module.
package applog

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger. format is "console" (human-
// readable, default) or "json" (structured, for production log shipping).
// level is any zerolog level name ("debug", "info", "warn", "error");
// invalid or empty defaults to "info".
func Setup(level, format string) {
	if format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
