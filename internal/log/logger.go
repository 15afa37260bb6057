package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. Production emits JSON lines, every other
// environment gets the human readable console writer.
func New(environment string, component string) zerolog.Logger {
	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	if environment == "production" {
		output = os.Stdout
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("env", environment).
		Str("component", component).
		Logger()

	zerolog.SetGlobalLevel(levelFor(environment))

	return logger
}

func levelFor(environment string) zerolog.Level {
	if lvl := os.Getenv("SMARTCROP_LOG_LEVEL"); lvl != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(lvl)); err == nil {
			return parsed
		}
	}
	if environment == "production" {
		return zerolog.InfoLevel
	}
	return zerolog.DebugLevel
}
