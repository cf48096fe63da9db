package heartbeat

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultInterval is the heartbeat cadence.
const DefaultInterval = 10 * time.Second

// Config configures a Runner.
type Config struct {
	// Handler is invoked on every tick.
	Handler TickCallback
	// Interval between ticks.
	Interval time.Duration
	// Origin is the time of tick 0. Zero means the time Start is called.
	Origin time.Time
	// Now returns the current time. Defaults to time.Now if nil.
	Now    func() time.Time
	Logger zerolog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		Interval: DefaultInterval,
		Now:      time.Now,
		Logger:   logger.With().Str("component", "heartbeat").Logger(),
	}
}
