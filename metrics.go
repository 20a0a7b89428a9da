package radwatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Instrumentation exposes engine activity as Prometheus metrics. It is
// optional; a nil *Instrumentation on Config disables collection entirely.
type Instrumentation struct {
	readingsAccepted *prometheus.CounterVec
	readingsRejected *prometheus.CounterVec
	gapResets        prometheus.Counter
	verdicts         *prometheus.CounterVec
	ingestDuration   prometheus.Histogram
}

// NewInstrumentation creates and registers engine metrics on the given
// registerer (pass prometheus.DefaultRegisterer for the global registry).
func NewInstrumentation(reg prometheus.Registerer) *Instrumentation {
	ins := &Instrumentation{
		readingsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radwatch",
			Name:      "readings_accepted_total",
			Help:      "Readings accepted by the engine.",
		}, []string{"metric"}),
		readingsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radwatch",
			Name:      "readings_rejected_total",
			Help:      "Readings rejected by the engine.",
		}, []string{"metric", "reason"}),
		gapResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "radwatch",
			Name:      "gap_resets_total",
			Help:      "Data discontinuities that reset change-detection state.",
		}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "radwatch",
			Name:      "verdicts_total",
			Help:      "Ensemble verdicts emitted, by level.",
		}, []string{"metric", "level"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "radwatch",
			Name:      "ingest_duration_seconds",
			Help:      "Time spent processing one reading.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 2, 14),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			ins.readingsAccepted,
			ins.readingsRejected,
			ins.gapResets,
			ins.verdicts,
			ins.ingestDuration,
		)
	}
	return ins
}

func (i *Instrumentation) observeAccepted(metric Metric, elapsed time.Duration) {
	if i == nil {
		return
	}
	i.readingsAccepted.WithLabelValues(metric.String()).Inc()
	i.ingestDuration.Observe(elapsed.Seconds())
}

func (i *Instrumentation) observeRejected(metric Metric, reason string) {
	if i == nil {
		return
	}
	i.readingsRejected.WithLabelValues(metric.String(), reason).Inc()
}

func (i *Instrumentation) observeGapReset() {
	if i == nil {
		return
	}
	i.gapResets.Inc()
}

func (i *Instrumentation) observeVerdict(v EnsembleVerdict) {
	if i == nil {
		return
	}
	i.verdicts.WithLabelValues(v.Metric.String(), v.Level.String()).Inc()
}
