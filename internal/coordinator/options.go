package coordinator

import (
	"github.com/Iron-Ham/teambot/internal/logging"
)

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	seed         uint64
	excludeNames []string
	logger       *logging.Logger
}

// WithSeed fixes the random source so splits and winners are reproducible.
// Zero keeps the default random seed.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithExcludeNames leaves members whose display name matches any of the glob
// patterns out of rosters. Matching is case-insensitive. Captains are never
// excluded.
func WithExcludeNames(patterns ...string) Option {
	return func(o *options) {
		o.excludeNames = append(o.excludeNames, patterns...)
	}
}

// WithLogger sets the coordinator's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
