package radwatch

import "math"

// Metric identifies a monitored radiological quantity.
type Metric int

const (
	// MetricDoseRate is ambient dose equivalent rate (e.g., µSv/h).
	MetricDoseRate Metric = iota
	// MetricCountRate is raw detector count rate (counts per second).
	MetricCountRate

	metricCount // sentinel, keep last
)

func (m Metric) String() string {
	switch m {
	case MetricDoseRate:
		return "dose_rate"
	case MetricCountRate:
		return "count_rate"
	default:
		return "unknown"
	}
}

// Valid reports whether the metric is one of the known kinds.
func (m Metric) Valid() bool {
	return m >= 0 && m < metricCount
}

// Metrics returns all known metric kinds in a fixed order.
func Metrics() []Metric {
	return []Metric{MetricDoseRate, MetricCountRate}
}

// Reading is a single scalar measurement produced by the sensor layer.
// Readings are immutable and must arrive in strictly increasing timestamp
// order per metric.
type Reading struct {
	// Metric is the measured quantity.
	Metric Metric `json:"metric"`
	// Value is the measurement itself.
	Value float64 `json:"value"`
	// TimestampMs is the observation time in Unix milliseconds.
	TimestampMs int64 `json:"timestamp_ms"`
}

// Validate checks that the reading can be ingested at all. Ordering is not
// checked here; the engine enforces monotonicity against its own state.
func (r Reading) Validate() error {
	if !r.Metric.Valid() {
		return newIngestError(IngestErrorTypeUnknownMetric, "unknown metric", r, nil)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return newIngestError(IngestErrorTypeNonFinite, "non-finite value", r, nil)
	}
	return nil
}
