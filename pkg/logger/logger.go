// Package logger wires a process-wide zerolog logger.
package logger

import (
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once sync.Once
	log  zerolog.Logger
)

// Get returns the shared logger, initialized on first use. Debug enables
// debug level and human-readable console output.
func Get(debug ...bool) *zerolog.Logger {
	once.Do(func() {
		level := zerolog.InfoLevel
		var out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		if len(debug) > 0 && debug[0] {
			level = zerolog.DebugLevel
		}
		log = zerolog.New(out).Level(level).With().Timestamp().Logger()
	})
	return &log
}
