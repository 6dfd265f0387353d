package state

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/Iron-Ham/teambot/internal/errors"
	"github.com/Iron-Ham/teambot/internal/logging"
	"github.com/Iron-Ham/teambot/internal/metrics"
	"github.com/Iron-Ham/teambot/internal/teams"
)

const (
	// DefaultTTL is how long an assignment or destination record stays valid.
	DefaultTTL = 7 * 24 * time.Hour

	// DefaultFileName is the snapshot file name inside the data directory.
	DefaultFileName = "team_state.json"

	filePerm = 0o644
)

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLogger sets the logger used for persistence diagnostics.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics sets the recorder for prune and persist-failure counts.
func WithMetrics(m metrics.Recorder) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Store owns the assignment and destination maps and their commit times.
// All methods are safe for concurrent use; each one is a single critical
// section including the snapshot write it triggers.
type Store struct {
	mu sync.Mutex

	path    string // empty disables persistence
	ttl     time.Duration
	now     func() time.Time
	logger  *logging.Logger
	metrics metrics.Recorder

	assignments        map[snowflake.ID]teams.Assignment
	assignmentUpdated  map[snowflake.ID]time.Time
	destinations       map[snowflake.ID]teams.Destinations
	destinationUpdated map[snowflake.ID]time.Time
}

// LoadResult summarizes what Load accepted from disk.
type LoadResult struct {
	Assignments  int
	Destinations int
	// Dropped counts malformed entries.
	Dropped int
	// Expired counts entries older than the TTL.
	Expired int
	// Ignored is why the whole file was discarded, nil if it was accepted or
	// absent.
	Ignored error
}

// New creates a Store that persists to path. An empty path keeps state in
// memory only. Call Load once before serving requests.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:               path,
		ttl:                DefaultTTL,
		now:                time.Now,
		logger:             logging.NopLogger(),
		metrics:            metrics.NewNop(),
		assignments:        make(map[snowflake.ID]teams.Assignment),
		assignmentUpdated:  make(map[snowflake.ID]time.Time),
		destinations:       make(map[snowflake.ID]teams.Destinations),
		destinationUpdated: make(map[snowflake.ID]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the snapshot path, empty when persistence is disabled.
func (s *Store) Path() string {
	return s.path
}

// TTL returns the retention window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Assignment returns the assignment committed for origin. An expired record
// is purged and reported as absent.
func (s *Store) Assignment(origin snowflake.ID) (teams.Assignment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, ok := s.assignmentUpdated[origin]
	if !ok {
		return teams.Assignment{}, false
	}
	if s.now().Sub(updated) > s.ttl {
		delete(s.assignments, origin)
		delete(s.assignmentUpdated, origin)
		s.metrics.RecordPruned(1)
		s.persistLocked()
		return teams.Assignment{}, false
	}
	return s.assignments[origin].Clone(), true
}

// CommitAssignment replaces the assignment for origin, stamps it with the
// current time and persists the snapshot.
func (s *Store) CommitAssignment(origin snowflake.ID, a teams.Assignment) {
	a = a.Clone()
	a.Origin = origin

	s.mu.Lock()
	defer s.mu.Unlock()

	s.assignments[origin] = a
	s.assignmentUpdated[origin] = s.now()
	s.persistLocked()
}

// Destinations returns the destinations committed for origin. An expired
// record is purged and reported as absent.
func (s *Store) Destinations(origin snowflake.ID) (teams.Destinations, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated, ok := s.destinationUpdated[origin]
	if !ok {
		return teams.Destinations{}, false
	}
	if s.now().Sub(updated) > s.ttl {
		delete(s.destinations, origin)
		delete(s.destinationUpdated, origin)
		s.metrics.RecordPruned(1)
		s.persistLocked()
		return teams.Destinations{}, false
	}
	return s.destinations[origin], true
}

// CommitDestinations replaces the destinations for origin, stamps them with
// the current time and persists the snapshot.
func (s *Store) CommitDestinations(origin snowflake.ID, d teams.Destinations) {
	d.Origin = origin

	s.mu.Lock()
	defer s.mu.Unlock()

	s.destinations[origin] = d
	s.destinationUpdated[origin] = s.now()
	s.persistLocked()
}

// PruneExpired removes every record older than the TTL as of now. The
// snapshot is only written when something was removed. It returns the number
// of records removed across both maps.
func (s *Store) PruneExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for origin, updated := range s.assignmentUpdated {
		if now.Sub(updated) > s.ttl {
			delete(s.assignments, origin)
			delete(s.assignmentUpdated, origin)
			removed++
		}
	}
	for origin, updated := range s.destinationUpdated {
		if now.Sub(updated) > s.ttl {
			delete(s.destinations, origin)
			delete(s.destinationUpdated, origin)
			removed++
		}
	}

	if removed > 0 {
		s.metrics.RecordPruned(removed)
		s.logger.Info("pruned expired team state", "removed", removed)
		s.persistLocked()
	}
	return removed
}

// Load reads the snapshot from disk. A missing, unreadable, corrupt or
// mismatched-version file leaves the store empty. Malformed and expired
// entries are dropped individually, and if any were dropped the cleaned
// snapshot is written back. Records already committed in memory win over
// loaded ones.
func (s *Store) Load() LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result LoadResult
	if s.path == "" {
		return result
	}

	contents, err := ReadFile(s.path)
	if err != nil {
		s.logger.Warn("ignoring persisted team state",
			"path", s.path,
			"error", err.Error(),
		)
		result.Ignored = err
		return result
	}

	now := s.now()
	result.Dropped = contents.Dropped

	for origin, rec := range contents.Assignments {
		if rec.Expired(now, s.ttl) {
			result.Expired++
			continue
		}
		if _, exists := s.assignmentUpdated[origin]; exists {
			continue
		}
		s.assignments[origin] = rec.Value
		s.assignmentUpdated[origin] = rec.UpdatedAt
		result.Assignments++
	}
	for origin, rec := range contents.Destinations {
		if rec.Expired(now, s.ttl) {
			result.Expired++
			continue
		}
		if _, exists := s.destinationUpdated[origin]; exists {
			continue
		}
		s.destinations[origin] = rec.Value
		s.destinationUpdated[origin] = rec.UpdatedAt
		result.Destinations++
	}

	s.logger.Info("team state loaded",
		"path", s.path,
		"assignments", result.Assignments,
		"destinations", result.Destinations,
		"dropped", result.Dropped,
		"expired", result.Expired,
	)

	if result.Dropped > 0 || result.Expired > 0 {
		s.persistLocked()
	}
	return result
}

// Contents returns a deep copy of the current records, including ones that
// have expired but not yet been purged.
func (s *Store) Contents() *Contents {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contentsLocked()
}

func (s *Store) contentsLocked() *Contents {
	c := Empty()
	for origin, a := range s.assignments {
		c.Assignments[origin] = Record[teams.Assignment]{Value: a.Clone(), UpdatedAt: s.assignmentUpdated[origin]}
	}
	for origin, d := range s.destinations {
		c.Destinations[origin] = Record[teams.Destinations]{Value: d, UpdatedAt: s.destinationUpdated[origin]}
	}
	return c
}

// persistLocked writes the full snapshot. Failures are logged and counted;
// in-memory state is never rolled back. The caller must hold the mutex.
func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}

	data, err := Encode(s.contentsLocked())
	if err != nil {
		s.persistFailed(errors.NewPersistenceError("encode snapshot", err).WithPath(s.path))
		return
	}
	if err := atomicWriteFile(s.path, data, filePerm); err != nil {
		s.persistFailed(errors.NewPersistenceError("write snapshot", err).WithPath(s.path))
	}
}

func (s *Store) persistFailed(err error) {
	s.metrics.RecordPersistFailure()
	s.logger.Error("failed to persist team state", "error", err.Error())
}
