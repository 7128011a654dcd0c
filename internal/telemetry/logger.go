package telemetry

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
)

// NewLogger builds the service logger described by cfg, writing to w.
// Console output is meant for terminals; json is the default.
func NewLogger(cfg config.LogConfig, service string, w io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("telemetry: invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", service).Logger(), nil
}
