package radwatch

// VerdictLevel grades an ensemble verdict.
type VerdictLevel int

const (
	// LevelWatching is the quiescent level: fewer detectors agree than the
	// attention threshold requires.
	LevelWatching VerdictLevel = iota
	// LevelAttention means enough detectors agree to warrant a closer look.
	LevelAttention
	// LevelAlert means the agreement threshold for an alert has been met.
	LevelAlert
)

func (l VerdictLevel) String() string {
	switch l {
	case LevelAttention:
		return "attention"
	case LevelAlert:
		return "alert"
	default:
		return "watching"
	}
}

// EnsembleVerdict is the combined decision for one reading.
type EnsembleVerdict struct {
	Metric Metric       `json:"metric"`
	Level  VerdictLevel `json:"level"`
	// AgreeingDetectors lists the detectors whose confidence cleared their
	// activation threshold, in evaluation order.
	AgreeingDetectors []DetectorKind `json:"agreeing_detectors"`
	// CombinedConfidence is the maximum confidence among agreeing
	// detectors. A maximum, not a sum: correlated detectors must not
	// amplify each other.
	CombinedConfidence float64 `json:"combined_confidence"`
	TimestampMs        int64   `json:"timestamp_ms"`
}

// EnsembleConfig configures verdict voting.
type EnsembleConfig struct {
	// ActivationThresholds is the per-detector confidence needed to count
	// as "agreeing".
	ActivationThresholds map[DetectorKind]float64

	// WatchingCount, AttentionCount and AlertCount map agreement counts to
	// verdict levels. Counts below AttentionCount yield Watching.
	WatchingCount  int
	AttentionCount int
	AlertCount     int

	// HistorySize bounds the per-metric verdict ring buffer kept for
	// diagnostics.
	HistorySize int
}

// DefaultEnsembleConfig returns default voting configuration.
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		ActivationThresholds: map[DetectorKind]float64{
			DetectorZScore:          0.95,
			DetectorRateOfChange:    0.8,
			DetectorCusum:           0.8,
			DetectorBayesian:        0.5,
			DetectorCrossover:       0.6,
			DetectorAutocorrelation: 0.7,
		},
		WatchingCount:  1,
		AttentionCount: 2,
		AlertCount:     3,
		HistorySize:    64,
	}
}

func (c EnsembleConfig) withDefaults() EnsembleConfig {
	def := DefaultEnsembleConfig()
	if len(c.ActivationThresholds) == 0 {
		c.ActivationThresholds = def.ActivationThresholds
	} else {
		merged := make(map[DetectorKind]float64, len(def.ActivationThresholds))
		for k, v := range def.ActivationThresholds {
			merged[k] = v
		}
		for k, v := range c.ActivationThresholds {
			merged[k] = v
		}
		c.ActivationThresholds = merged
	}
	if c.WatchingCount <= 0 {
		c.WatchingCount = def.WatchingCount
	}
	if c.AttentionCount <= 0 {
		c.AttentionCount = def.AttentionCount
	}
	if c.AlertCount <= 0 {
		c.AlertCount = def.AlertCount
	}
	if c.HistorySize <= 0 {
		c.HistorySize = def.HistorySize
	}
	return c
}

// verdictRing is a bounded per-metric history; oldest entries are evicted
// first.
type verdictRing struct {
	entries []EnsembleVerdict
	max     int
}

func (r *verdictRing) push(v EnsembleVerdict) {
	r.entries = append(r.entries, v)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
}

// EnsembleAggregator converts the detector bank's per-reading signals into
// a single graded verdict by agreement-count voting. It is not safe for
// concurrent use; the engine serializes access.
type EnsembleAggregator struct {
	config  EnsembleConfig
	history map[Metric]*verdictRing
}

// NewEnsembleAggregator creates an aggregator.
func NewEnsembleAggregator(config EnsembleConfig) *EnsembleAggregator {
	return &EnsembleAggregator{
		config:  config.withDefaults(),
		history: make(map[Metric]*verdictRing),
	}
}

// setConfig swaps voting parameters for subsequent votes. History is kept.
func (a *EnsembleAggregator) setConfig(config EnsembleConfig) {
	a.config = config.withDefaults()
}

// Vote combines one reading's signals into a verdict and records it.
func (a *EnsembleAggregator) Vote(metric Metric, timestampMs int64, signals []DetectorSignal) EnsembleVerdict {
	verdict := EnsembleVerdict{
		Metric:      metric,
		Level:       LevelWatching,
		TimestampMs: timestampMs,
	}

	for _, sig := range signals {
		threshold, ok := a.config.ActivationThresholds[sig.Detector]
		if !ok {
			threshold = 0.5
		}
		if sig.Confidence >= threshold && sig.Confidence > 0 {
			verdict.AgreeingDetectors = append(verdict.AgreeingDetectors, sig.Detector)
			if sig.Confidence > verdict.CombinedConfidence {
				verdict.CombinedConfidence = sig.Confidence
			}
		}
	}

	agree := len(verdict.AgreeingDetectors)
	switch {
	case agree >= a.config.AlertCount:
		verdict.Level = LevelAlert
	case agree >= a.config.AttentionCount:
		verdict.Level = LevelAttention
	default:
		verdict.Level = LevelWatching
	}

	ring, ok := a.history[metric]
	if !ok {
		ring = &verdictRing{max: a.config.HistorySize}
		a.history[metric] = ring
	}
	ring.push(verdict)
	return verdict
}

// Last returns the most recent verdict for the metric.
func (a *EnsembleAggregator) Last(metric Metric) (EnsembleVerdict, bool) {
	ring, ok := a.history[metric]
	if !ok || len(ring.entries) == 0 {
		return EnsembleVerdict{Metric: metric}, false
	}
	return ring.entries[len(ring.entries)-1], true
}

// History returns a copy of the verdict ring for the metric, oldest first.
func (a *EnsembleAggregator) History(metric Metric) []EnsembleVerdict {
	ring, ok := a.history[metric]
	if !ok {
		return nil
	}
	out := make([]EnsembleVerdict, len(ring.entries))
	copy(out, ring.entries)
	return out
}
