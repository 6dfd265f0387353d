package metrics

// NopMetrics implements a no-op Recorder.
//
// All metrics are discarded. Used when metrics are disabled and in tests.
type NopMetrics struct{}

// Compile-time assertion that NopMetrics implements Recorder.
var _ Recorder = (*NopMetrics)(nil)

// NewNop creates a new no-op recorder.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// RecordRelocation discards the relocation outcome.
func (n *NopMetrics) RecordRelocation(_ /* team */, _ /* result */ string) {}

// ObserveSession discards the session duration.
func (n *NopMetrics) ObserveSession(_ /* seconds */ float64) {}

// RecordPruned discards the prune count.
func (n *NopMetrics) RecordPruned(_ /* count */ int) {}

// RecordPersistFailure discards the persist failure.
func (n *NopMetrics) RecordPersistFailure() {}

// RecordFetch discards the fetch result.
func (n *NopMetrics) RecordFetch(_ /* result */ string) {}
