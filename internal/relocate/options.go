package relocate

import (
	"context"
	"time"

	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/Iron-Ham/teambot/internal/metrics"
)

const (
	// DefaultConcurrency is the number of relocation calls allowed in flight
	// across all teams of a session.
	DefaultConcurrency = 5

	// DefaultPacing is how long a slot stays held after each executed call.
	DefaultPacing = 500 * time.Millisecond
)

// Option configures an Orchestrator.
type Option func(*config)

type config struct {
	concurrency  int
	pacing       time.Duration
	maxPerSecond float64
	sleep        func(context.Context, time.Duration)
	logger       *logging.Logger
	metrics      metrics.Recorder
}

// WithConcurrency sets the global in-flight cap. Values below 1 are replaced
// with 1.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithPacing sets the delay held after every executed call. Negative values
// are treated as zero.
func WithPacing(d time.Duration) Option {
	return func(c *config) {
		c.pacing = d
	}
}

// WithMaxPerSecond adds a global token bucket on top of the per-slot pacing.
// Zero or negative disables it.
func WithMaxPerSecond(rps float64) Option {
	return func(c *config) {
		c.maxPerSecond = rps
	}
}

// WithSleeper replaces the pacing sleep, for tests.
func WithSleeper(sleep func(context.Context, time.Duration)) Option {
	return func(c *config) {
		c.sleep = sleep
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics sets the recorder for per-member outcomes and session timing.
func WithMetrics(m metrics.Recorder) Option {
	return func(c *config) {
		c.metrics = m
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
