package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/Iron-Ham/teambot/internal/logging"
)

// DefaultPruneInterval is how often the Pruner runs when no cron expression
// is configured.
const DefaultPruneInterval = 30 * time.Minute

// Pruneable is the part of Store the Pruner drives.
type Pruneable interface {
	PruneExpired(now time.Time) int
}

// PrunerConfig selects the prune schedule. A non-empty Cron takes precedence
// over Interval.
type PrunerConfig struct {
	Interval time.Duration
	Cron     string
}

// Pruner periodically removes expired records from a store. It runs
// independently of request handling; the store's own locking makes each
// prune safe alongside commits and reads.
type Pruner struct {
	store  Pruneable
	config PrunerConfig
	logger *logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PrunerOption configures a Pruner.
type PrunerOption func(*Pruner)

// WithPrunerLogger sets the Pruner's logger.
func WithPrunerLogger(logger *logging.Logger) PrunerOption {
	return func(p *Pruner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPrunerClock replaces time.Now, for tests.
func WithPrunerClock(now func() time.Time) PrunerOption {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPruner validates the schedule and returns a stopped Pruner.
func NewPruner(store Pruneable, config PrunerConfig, opts ...PrunerOption) (*Pruner, error) {
	if config.Cron != "" {
		if !gronx.New().IsValid(config.Cron) {
			return nil, fmt.Errorf("invalid prune cron expression %q", config.Cron)
		}
	} else if config.Interval <= 0 {
		return nil, fmt.Errorf("prune interval must be positive, got %s", config.Interval)
	}

	p := &Pruner{
		store:  store,
		config: config,
		logger: logging.NopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start launches the prune loop. It returns immediately; call Stop or cancel
// ctx to end it. Calling Start on a running Pruner is a no-op.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		p.Run(ctx)
	}(p.done)
}

// Stop ends the prune loop and waits for it to exit.
func (p *Pruner) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Run blocks, pruning on every tick until ctx is canceled.
func (p *Pruner) Run(ctx context.Context) {
	if p.config.Cron != "" {
		p.logger.Info("team state pruner started", "cron", p.config.Cron)
		p.runCron(ctx)
	} else {
		p.logger.Info("team state pruner started", "interval", p.config.Interval.String())
		p.runInterval(ctx)
	}
	p.logger.Info("team state pruner stopped")
}

func (p *Pruner) runInterval(ctx context.Context) {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce()
		}
	}
}

// runCron sleeps until the next cron tick, prunes, and repeats.
func (p *Pruner) runCron(ctx context.Context) {
	for {
		now := p.now()
		next, err := gronx.NextTickAfter(p.config.Cron, now, false)
		if err != nil {
			p.logger.Error("failed to compute next prune tick", "cron", p.config.Cron, "error", err.Error())
			next = now.Add(DefaultPruneInterval)
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			p.pruneOnce()
		}
	}
}

func (p *Pruner) pruneOnce() {
	if removed := p.store.PruneExpired(p.now()); removed > 0 {
		p.logger.Debug("prune tick removed records", "removed", removed)
	}
}
