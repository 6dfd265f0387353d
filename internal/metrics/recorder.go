// Package metrics defines the instrumentation surface used by the state store,
// identity resolver and relocation orchestrator, with a Prometheus-backed
// implementation and a no-op default.
package metrics

// Relocation results recorded per member.
const (
	ResultMoved   = "moved"
	ResultNoop    = "noop"
	ResultSkipped = "skipped"
)

// Fetch results recorded per remote identity lookup.
const (
	FetchHit  = "hit"
	FetchMiss = "miss"
	FetchErr  = "error"
)

// Recorder receives domain events worth counting.
type Recorder interface {
	// RecordRelocation counts one member outcome for a team.
	RecordRelocation(team, result string)
	// ObserveSession records the wall-clock duration of a relocation session.
	ObserveSession(seconds float64)
	// RecordPruned counts records removed by TTL expiry.
	RecordPruned(count int)
	// RecordPersistFailure counts snapshot writes that failed.
	RecordPersistFailure()
	// RecordFetch counts one identity lookup by result.
	RecordFetch(result string)
}
