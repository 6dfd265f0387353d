package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "teambot"

// PrometheusCollector implements Recorder backed by Prometheus.
//
// Collectors are created and registered lazily on first use so that a
// collector which never records anything leaves the registry untouched.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	relocations     *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	pruned          prometheus.Counter
	persistFailures prometheus.Counter
	fetches         *prometheus.CounterVec
}

// Compile-time assertion that PrometheusCollector implements Recorder.
var _ Recorder = (*PrometheusCollector)(nil)

// NewPrometheus creates a new Prometheus-backed recorder.
//
// Parameters:
//   - reg: Prometheus registerer (uses prometheus.DefaultRegisterer if nil)
//   - namespace: metrics namespace (defaults to "teambot" if empty)
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

// Register creates and registers every collector immediately, so that
// /metrics exposes them before the first event.
func (p *PrometheusCollector) Register() {
	p.ensureRegistered()
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.relocations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      "relocations_total",
			Help:      "Member relocation outcomes by team and result (moved, noop, skipped).",
		}, []string{"team", "result"})

		p.sessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      "relocation_session_seconds",
			Help:      "Wall-clock duration of relocation sessions in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		})

		p.pruned = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "pruned_total",
			Help:      "Total assignment and destination records removed by TTL expiry.",
		})

		p.persistFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "store",
			Name:      "persist_failures_total",
			Help:      "Total snapshot writes that failed.",
		})

		p.fetches = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "resolver",
			Name:      "fetches_total",
			Help:      "Member identity lookups by result (hit, miss, error).",
		}, []string{"result"})

		p.reg.MustRegister(p.relocations)
		p.reg.MustRegister(p.sessionDuration)
		p.reg.MustRegister(p.pruned)
		p.reg.MustRegister(p.persistFailures)
		p.reg.MustRegister(p.fetches)
	})
}

// RecordRelocation increments the relocation outcome counter.
func (p *PrometheusCollector) RecordRelocation(team, result string) {
	p.ensureRegistered()
	p.relocations.WithLabelValues(team, result).Inc()
}

// ObserveSession observes a relocation session duration.
func (p *PrometheusCollector) ObserveSession(seconds float64) {
	p.ensureRegistered()
	p.sessionDuration.Observe(seconds)
}

// RecordPruned adds to the pruned record counter.
func (p *PrometheusCollector) RecordPruned(count int) {
	if count <= 0 {
		return
	}
	p.ensureRegistered()
	p.pruned.Add(float64(count))
}

// RecordPersistFailure increments the persist failure counter.
func (p *PrometheusCollector) RecordPersistFailure() {
	p.ensureRegistered()
	p.persistFailures.Inc()
}

// RecordFetch increments the resolver lookup counter.
func (p *PrometheusCollector) RecordFetch(result string) {
	p.ensureRegistered()
	p.fetches.WithLabelValues(result).Inc()
}
