package radwatch

import "gonum.org/v1/gonum/stat"

// AutocorrelationConfig configures the periodicity detector.
type AutocorrelationConfig struct {
	// BufferLen is the number of most-recent readings kept for analysis.
	BufferLen int

	// MaxLag is the largest lag, in readings, examined by the ACF.
	MaxLag int

	// Cadence is how many readings pass between ACF recomputations. The
	// recompute is the only part of the detector bank that is not O(1) per
	// tick, so it is deliberately run off the per-reading budget.
	Cadence int

	// SignificanceThreshold is the minimum peak correlation coefficient
	// for a lag to be reported as a detected period.
	SignificanceThreshold float64
}

// DefaultAutocorrelationConfig returns default periodicity configuration.
func DefaultAutocorrelationConfig() AutocorrelationConfig {
	return AutocorrelationConfig{
		BufferLen:             256,
		MaxLag:                64,
		Cadence:               30,
		SignificanceThreshold: 0.3,
	}
}

func (c AutocorrelationConfig) withDefaults() AutocorrelationConfig {
	def := DefaultAutocorrelationConfig()
	if c.BufferLen < 16 {
		c.BufferLen = def.BufferLen
	}
	if c.MaxLag < 2 {
		c.MaxLag = def.MaxLag
	}
	if c.MaxLag > c.BufferLen/2 {
		c.MaxLag = c.BufferLen / 2
	}
	if c.Cadence < 1 {
		c.Cadence = def.Cadence
	}
	if c.SignificanceThreshold <= 0 || c.SignificanceThreshold >= 1 {
		c.SignificanceThreshold = def.SignificanceThreshold
	}
	return c
}

// AutocorrelationDetector looks for periodic structure in the reading
// stream. Every Cadence readings it recomputes the autocorrelation function
// over lags 1..MaxLag and reports the lag of maximum positive correlation
// above the significance threshold as a detected period. Between
// recomputations the most recent detection is re-emitted.
type AutocorrelationDetector struct {
	config AutocorrelationConfig

	buf       []float64 // circular buffer of recent values
	head      int
	size      int
	sinceScan int

	lastLag  int
	lastPeak float64
}

// NewAutocorrelationDetector creates a periodicity detector.
func NewAutocorrelationDetector(config AutocorrelationConfig) *AutocorrelationDetector {
	config = config.withDefaults()
	return &AutocorrelationDetector{
		config: config,
		buf:    make([]float64, config.BufferLen),
	}
}

// Kind implements Detector.
func (d *AutocorrelationDetector) Kind() DetectorKind { return DetectorAutocorrelation }

// Evaluate implements Detector.
func (d *AutocorrelationDetector) Evaluate(r Reading, baseline BaselineStats) DetectorSignal {
	sig := DetectorSignal{
		Detector:    DetectorAutocorrelation,
		Direction:   DirectionNeutral,
		TimestampMs: r.TimestampMs,
	}

	d.buf[d.head] = r.Value
	d.head = (d.head + 1) % len(d.buf)
	if d.size < len(d.buf) {
		d.size++
	}

	d.sinceScan++
	if d.sinceScan >= d.config.Cadence && d.size >= 2*d.config.MaxLag {
		d.sinceScan = 0
		d.scan()
	}

	if d.lastLag > 0 {
		sig.Confidence = clamp01(d.lastPeak)
		sig.Detail = map[string]float64{
			"period_lag":       float64(d.lastLag),
			"peak_correlation": d.lastPeak,
		}
	}
	return sig
}

// scan recomputes the ACF over the buffered window and records the
// dominant positive lag, if any.
func (d *AutocorrelationDetector) scan() {
	series := d.ordered()
	maxLag := d.config.MaxLag
	if maxLag > len(series)/2 {
		maxLag = len(series) / 2
	}

	bestLag := 0
	bestCorr := 0.0
	for lag := 1; lag <= maxLag; lag++ {
		corr := stat.Correlation(series[:len(series)-lag], series[lag:], nil)
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestLag > 0 && bestCorr >= d.config.SignificanceThreshold {
		d.lastLag = bestLag
		d.lastPeak = bestCorr
	} else {
		d.lastLag = 0
		d.lastPeak = 0
	}
}

// ordered returns the buffered values oldest-first.
func (d *AutocorrelationDetector) ordered() []float64 {
	out := make([]float64, d.size)
	start := d.head - d.size
	for i := 0; i < d.size; i++ {
		out[i] = d.buf[(start+i+len(d.buf))%len(d.buf)]
	}
	return out
}

// DetectedPeriod returns the most recent detected period in readings and
// whether a period is currently detected.
func (d *AutocorrelationDetector) DetectedPeriod() (int, bool) {
	return d.lastLag, d.lastLag > 0
}

// Reset implements Detector.
func (d *AutocorrelationDetector) Reset() {
	d.head = 0
	d.size = 0
	d.sinceScan = 0
	d.lastLag = 0
	d.lastPeak = 0
}
