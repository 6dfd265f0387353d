// Package resolve turns member IDs into live member views. Each ID is first
// looked up in the platform's local cache; misses are fetched remotely with a
// bounded number of fetches in flight. A failed fetch only affects its own ID.
package resolve

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/Iron-Ham/teambot/internal/metrics"
	"github.com/Iron-Ham/teambot/internal/teams"
)

// DefaultConcurrency is the number of remote fetches allowed in flight.
const DefaultConcurrency = 5

// Directory is the platform's view of a guild's members.
type Directory interface {
	// Lookup consults the local cache only. It never blocks on I/O.
	Lookup(id snowflake.ID) (teams.MemberRef, bool)
	// Fetch asks the platform for the member. It returns an error wrapping
	// errors.ErrNotFound, errors.ErrPermissionDenied or errors.ErrTransport.
	Fetch(ctx context.Context, id snowflake.ID) (teams.MemberRef, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConcurrency caps in-flight remote fetches. Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n >= 1 {
			r.concurrency = n
		}
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the recorder for lookup results.
func WithMetrics(m metrics.Recorder) Option {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// Resolver resolves batches of member IDs. It holds no per-call state and is
// safe for concurrent use.
type Resolver struct {
	concurrency int
	logger      *logging.Logger
	metrics     metrics.Recorder
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		concurrency: DefaultConcurrency,
		logger:      logging.NopLogger(),
		metrics:     metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Concurrency returns the fetch limit.
func (r *Resolver) Concurrency() int {
	return r.concurrency
}

type fetchResult struct {
	id     snowflake.ID
	member teams.MemberRef
	ok     bool
}

// Resolve returns the members it could resolve, keyed by ID. IDs that are
// unknown, forbidden or failed to fetch are simply absent from the map.
// Duplicate and zero IDs are ignored.
func (r *Resolver) Resolve(ctx context.Context, dir Directory, ids []snowflake.ID) map[snowflake.ID]teams.MemberRef {
	out := make(map[snowflake.ID]teams.MemberRef, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))

	var misses []snowflake.ID
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if m, ok := dir.Lookup(id); ok {
			r.metrics.RecordFetch(metrics.FetchHit)
			out[id] = m
			continue
		}
		misses = append(misses, id)
	}

	if len(misses) == 0 {
		return out
	}

	p := pool.NewWithResults[fetchResult]().WithMaxGoroutines(r.concurrency)
	for _, id := range misses {
		p.Go(func() fetchResult {
			m, err := dir.Fetch(ctx, id)
			if err != nil {
				r.recordFailure(id, err)
				return fetchResult{id: id}
			}
			r.metrics.RecordFetch(metrics.FetchMiss)
			return fetchResult{id: id, member: m, ok: true}
		})
	}

	for _, res := range p.Wait() {
		if res.ok {
			out[res.id] = res.member
		}
	}

	r.logger.Debug("resolved members",
		"requested", len(seen),
		"cached", len(seen)-len(misses),
		"fetched", len(misses),
		"resolved", len(out),
	)
	return out
}

func (r *Resolver) recordFailure(id snowflake.ID, err error) {
	r.metrics.RecordFetch(metrics.FetchErr)
	if errors.Is(err, errors.ErrNotFound) {
		r.logger.Debug("member not found", "member_id", id.String())
		return
	}
	r.logger.Warn("member fetch failed",
		"member_id", id.String(),
		"kind", errors.Kind(err).Error(),
		"error", err.Error(),
	)
}
