package obs

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	loggerOnce sync.Once
	loggerMu   sync.Mutex
	logger     zerolog.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	loggerOnce.Do(func() {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	})
	return &logger
}

// SetOutput redirects the shared logger and returns a restore function.
// Tests use it to capture emitted lines.
func SetOutput(w io.Writer) func() {
	Logger()
	loggerMu.Lock()
	defer loggerMu.Unlock()
	prev := logger
	logger = logger.Output(w)
	return func() {
		loggerMu.Lock()
		defer loggerMu.Unlock()
		logger = prev
	}
}
