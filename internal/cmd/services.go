package cmd

import (
	"slices"

	"github.com/Iron-Ham/teambot/internal/config"
	"github.com/Iron-Ham/teambot/internal/coordinator"
	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/Iron-Ham/teambot/internal/metrics"
	"github.com/Iron-Ham/teambot/internal/relocate"
	"github.com/Iron-Ham/teambot/internal/resolve"
	"github.com/Iron-Ham/teambot/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// services is the platform-independent part of the bot, built from config.
type services struct {
	logger   *logging.Logger
	registry *prometheus.Registry // nil when metrics are disabled
	recorder metrics.Recorder

	store        *state.Store
	pruner       *state.Pruner // nil when pruning is disabled
	orchestrator *relocate.Orchestrator
	coordinator  *coordinator.Coordinator
}

func newServices(cfg *config.Config, logger *logging.Logger) (*services, error) {
	s := &services{logger: logger, recorder: metrics.NewNop()}

	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector := metrics.NewPrometheus(s.registry, metrics.DefaultNamespace)
		collector.Register()
		s.recorder = collector
	}

	s.store = state.New(cfg.State.ResolvePath(),
		state.WithTTL(cfg.State.TTL),
		state.WithLogger(logger.With("component", "state")),
		state.WithMetrics(s.recorder),
	)

	if cfg.State.PruneCron != "" || cfg.State.PruneInterval > 0 {
		pruner, err := state.NewPruner(s.store,
			state.PrunerConfig{Interval: cfg.State.PruneInterval, Cron: cfg.State.PruneCron},
			state.WithPrunerLogger(logger.With("component", "pruner")),
		)
		if err != nil {
			return nil, err
		}
		s.pruner = pruner
	}

	resolver := resolve.New(
		resolve.WithConcurrency(cfg.Resolver.Concurrency),
		resolve.WithLogger(logger.With("component", "resolver")),
		resolve.WithMetrics(s.recorder),
	)

	s.orchestrator = relocate.New(resolver,
		relocate.WithConcurrency(cfg.Relocation.Concurrency),
		relocate.WithPacing(cfg.Relocation.Pacing),
		relocate.WithMaxPerSecond(cfg.Relocation.MaxPerSecond),
		relocate.WithLogger(logger.With("component", "relocate")),
		relocate.WithMetrics(s.recorder),
	)

	coord, err := coordinator.New(
		coordinator.Config{Store: s.store, Orchestrator: s.orchestrator},
		coordinator.WithSeed(cfg.Teams.Seed),
		coordinator.WithExcludeNames(cfg.Teams.ExcludeNames...),
		coordinator.WithLogger(logger.With("component", "coordinator")),
	)
	if err != nil {
		return nil, err
	}
	s.coordinator = coord

	return s, nil
}

// applyConfig pushes live settings from a reloaded config into the running
// services and warns about changes that only take effect after a restart.
func (s *services) applyConfig(old, updated *config.Config) {
	s.orchestrator.SetConcurrency(updated.Relocation.Concurrency)
	s.orchestrator.SetPacing(updated.Relocation.Pacing)
	s.orchestrator.SetMaxPerSecond(updated.Relocation.MaxPerSecond)
	if err := s.coordinator.SetExcludeNames(updated.Teams.ExcludeNames); err != nil {
		s.logger.Warn("ignoring invalid exclusion patterns", "error", err.Error())
	}

	live := config.LiveKeys()
	for _, key := range old.ChangedKeys(updated) {
		if slices.Contains(live, key) {
			s.logger.Info("configuration applied", "key", key)
			continue
		}
		s.logger.Warn("configuration change requires a restart", "key", key)
	}
}
