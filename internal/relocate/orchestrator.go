// Package relocate moves members into destination voice channels in bulk.
//
// A session resolves every requested member once, classifies each one (not
// found, not in voice, already there, needs a move) and issues the needed
// move calls concurrently. All calls of a session share one slot limiter;
// after each executed call its slot stays held for the pacing delay, so the
// aggregate call rate stays near concurrency/pacing. Failures are recorded
// per member and never stop the rest of the session.
package relocate

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/Iron-Ham/teambot/internal/metrics"
	"github.com/Iron-Ham/teambot/internal/resolve"
	"github.com/Iron-Ham/teambot/internal/teams"
)

// Mover performs a single relocation on the platform.
type Mover interface {
	// Move connects member to the destination voice channel. It returns an
	// error wrapping errors.ErrPermissionDenied, errors.ErrNotInLocation,
	// errors.ErrNotFound or errors.ErrTransport.
	Move(ctx context.Context, member, destination snowflake.ID) error
}

// Orchestrator runs relocation sessions. It is safe for concurrent use;
// concurrent sessions share the same slot limiter.
type Orchestrator struct {
	resolver *resolve.Resolver
	slots    *slotLimiter
	limiter  *rate.Limiter
	pacing   atomic.Int64
	sleep    func(context.Context, time.Duration)
	logger   *logging.Logger
	metrics  metrics.Recorder
}

// New creates an Orchestrator that resolves members through resolver.
func New(resolver *resolve.Resolver, opts ...Option) *Orchestrator {
	cfg := config{
		concurrency: DefaultConcurrency,
		pacing:      DefaultPacing,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.metrics == nil {
		cfg.metrics = metrics.NewNop()
	}
	if cfg.sleep == nil {
		cfg.sleep = sleepContext
	}
	if resolver == nil {
		resolver = resolve.New()
	}

	o := &Orchestrator{
		resolver: resolver,
		slots:    newSlotLimiter(cfg.concurrency),
		limiter:  rate.NewLimiter(rate.Inf, 1),
		sleep:    cfg.sleep,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
	}
	o.SetPacing(cfg.pacing)
	o.SetMaxPerSecond(cfg.maxPerSecond)
	return o
}

// SetConcurrency changes the in-flight cap. Sessions already running pick up
// the new value for calls that have not started yet.
func (o *Orchestrator) SetConcurrency(n int) {
	o.slots.SetLimit(n)
}

// Concurrency returns the in-flight cap.
func (o *Orchestrator) Concurrency() int {
	return o.slots.Limit()
}

// SetPacing changes the delay held after each executed call.
func (o *Orchestrator) SetPacing(d time.Duration) {
	o.pacing.Store(int64(max(d, 0)))
}

// Pacing returns the delay held after each executed call.
func (o *Orchestrator) Pacing() time.Duration {
	return time.Duration(o.pacing.Load())
}

// SetMaxPerSecond sets a global ceiling on call starts. Zero or negative
// removes it.
func (o *Orchestrator) SetMaxPerSecond(rps float64) {
	if rps <= 0 {
		o.limiter.SetLimit(rate.Inf)
		return
	}
	o.limiter.SetLimit(rate.Limit(rps))
}

// member is one classified entry of a batch.
type member struct {
	label  teams.Label
	id     snowflake.ID
	ref    teams.MemberRef
	found  bool
	dest   snowflake.ID
	noop   bool
	skip   string
	moveOK bool
	err    error
}

func (m *member) needsCall() bool {
	return m.found && m.skip == "" && !m.noop
}

// Relocate runs one session over batches and always returns a complete
// report. The session is detached from ctx cancellation: once started it
// runs to completion, and ctx only contributes its values.
func (o *Orchestrator) Relocate(ctx context.Context, dir resolve.Directory, mover Mover, batches map[teams.Label]Batch) *Report {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	report := &Report{
		SessionID: uuid.NewString(),
		Teams:     make(map[teams.Label]*TeamOutcome, len(batches)),
	}
	logger := o.logger.WithSession(report.SessionID)

	labels := orderedLabels(batches)

	var all []*member
	var ids []snowflake.ID
	for _, label := range labels {
		batch := batches[label]
		report.Teams[label] = &TeamOutcome{Destination: batch.Destination}

		seen := make(map[snowflake.ID]struct{}, len(batch.Members))
		for _, id := range batch.Members {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			all = append(all, &member{label: label, id: id, dest: batch.Destination})
			ids = append(ids, id)
		}
	}

	resolved := o.resolver.Resolve(ctx, dir, ids)

	var pending []*member
	for _, m := range all {
		m.ref, m.found = resolved[m.id]
		switch {
		case !m.found:
			m.skip = ReasonNotFound
		case !m.ref.InLocation():
			m.skip = ReasonNotInLocation
		case m.ref.Location == m.dest:
			m.noop = true
		default:
			pending = append(pending, m)
		}
	}

	logger.Info("relocation session started",
		"members", len(all),
		"resolved", len(resolved),
		"calls", len(pending),
	)

	var wg conc.WaitGroup
	for _, m := range pending {
		wg.Go(func() {
			o.move(ctx, mover, m)
		})
	}
	wg.Wait()

	for _, m := range all {
		outcome := report.Teams[m.label]
		result := metrics.ResultMoved
		switch {
		case m.noop:
			outcome.Moved = append(outcome.Moved, Placement{Member: m.ref, NoOp: true})
			result = metrics.ResultNoop
		case m.moveOK:
			outcome.Moved = append(outcome.Moved, Placement{Member: m.ref})
		default:
			skip := Skip{MemberID: m.id, Reason: m.skip, Err: m.err}
			if m.found {
				ref := m.ref
				skip.Member = &ref
			}
			outcome.Skipped = append(outcome.Skipped, skip)
			result = metrics.ResultSkipped
			logger.WithTeam(m.label.String()).Warn("member skipped",
				"member_id", m.id.String(),
				"reason", skip.Reason,
			)
		}
		o.metrics.RecordRelocation(m.label.String(), result)
	}

	report.Duration = time.Since(start)
	o.metrics.ObserveSession(report.Duration.Seconds())

	moved, skipped := report.Totals()
	logger.Info("relocation session finished",
		"moved", moved,
		"skipped", skipped,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report
}

// move issues one relocation call inside a slot and holds the slot for the
// pacing delay afterwards, whether or not the call succeeded.
func (o *Orchestrator) move(ctx context.Context, mover Mover, m *member) {
	if err := o.slots.Acquire(ctx); err != nil {
		m.skip, m.err = err.Error(), err
		return
	}
	defer o.slots.Release()

	if err := o.limiter.Wait(ctx); err != nil {
		m.skip, m.err = err.Error(), err
		return
	}

	err := mover.Move(ctx, m.id, m.dest)
	if err != nil {
		m.skip, m.err = failureReason(err), err
	} else {
		m.moveOK = true
	}

	o.sleep(ctx, o.Pacing())
}

// failureReason turns a move error into the text shown to users.
func failureReason(err error) string {
	switch errors.Kind(err) {
	case errors.ErrPermissionDenied:
		return ReasonForbidden
	case errors.ErrNotInLocation:
		return ReasonNotInLocation
	case errors.ErrNotFound:
		return ReasonNotFound
	default:
		return err.Error()
	}
}

// orderedLabels returns red, then blue, then any other batch labels sorted.
func orderedLabels(batches map[teams.Label]Batch) []teams.Label {
	out := make([]teams.Label, 0, len(batches))
	for _, l := range teams.Labels() {
		if _, ok := batches[l]; ok {
			out = append(out, l)
		}
	}
	var rest []teams.Label
	for l := range batches {
		if !l.IsValid() {
			rest = append(rest, l)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}
