package radwatch

import "math"

// RateOfChangeConfig configures the rate-of-change detector.
type RateOfChangeConfig struct {
	// WindowSize is the number of recent readings kept for smoothing.
	WindowSize int

	// BaselineAlpha is the EWMA factor for the learned |roc| baseline.
	BaselineAlpha float64

	// SaturationMultiple is the ratio of smoothed |roc| to its learned
	// baseline at which confidence saturates at 1.
	SaturationMultiple float64

	// Epsilon floors the learned baseline to avoid division blow-up.
	Epsilon float64
}

// DefaultRateOfChangeConfig returns default rate-of-change configuration.
func DefaultRateOfChangeConfig() RateOfChangeConfig {
	return RateOfChangeConfig{
		WindowSize:         5,
		BaselineAlpha:      0.05,
		SaturationMultiple: 6,
		Epsilon:            1e-9,
	}
}

func (c RateOfChangeConfig) withDefaults() RateOfChangeConfig {
	def := DefaultRateOfChangeConfig()
	if c.WindowSize < 2 {
		c.WindowSize = def.WindowSize
	}
	if c.BaselineAlpha <= 0 || c.BaselineAlpha >= 1 {
		c.BaselineAlpha = def.BaselineAlpha
	}
	if c.SaturationMultiple <= 0 {
		c.SaturationMultiple = def.SaturationMultiple
	}
	if c.Epsilon <= 0 {
		c.Epsilon = def.Epsilon
	}
	return c
}

type rocSample struct {
	value       float64
	timestampMs int64
}

// RateOfChangeDetector tracks the smoothed first derivative of the reading
// stream plus its acceleration, and scores the smoothed rate against a
// learned EWMA of historical rate magnitude.
type RateOfChangeDetector struct {
	config RateOfChangeConfig

	samples []rocSample // ring buffer, oldest first
	rates   []float64   // per-step rates matching samples[1:]

	prevSmoothed float64
	hasSmoothed  bool

	// baselineAbs is the learned EWMA of |roc|.
	baselineAbs    float64
	hasBaselineAbs bool
}

// NewRateOfChangeDetector creates a rate-of-change detector.
func NewRateOfChangeDetector(config RateOfChangeConfig) *RateOfChangeDetector {
	config = config.withDefaults()
	return &RateOfChangeDetector{
		config:  config,
		samples: make([]rocSample, 0, config.WindowSize),
		rates:   make([]float64, 0, config.WindowSize),
	}
}

// Kind implements Detector.
func (d *RateOfChangeDetector) Kind() DetectorKind { return DetectorRateOfChange }

// Evaluate implements Detector.
func (d *RateOfChangeDetector) Evaluate(r Reading, baseline BaselineStats) DetectorSignal {
	sig := DetectorSignal{
		Detector:    DetectorRateOfChange,
		Direction:   DirectionNeutral,
		TimestampMs: r.TimestampMs,
	}

	if len(d.samples) > 0 {
		last := d.samples[len(d.samples)-1]
		dt := float64(r.TimestampMs-last.timestampMs) / 1000.0
		if dt <= 0 {
			dt = 1e-3
		}
		rate := (r.Value - last.value) / dt
		d.rates = append(d.rates, rate)
		if len(d.rates) > d.config.WindowSize {
			d.rates = d.rates[1:]
		}
	}
	d.samples = append(d.samples, rocSample{value: r.Value, timestampMs: r.TimestampMs})
	if len(d.samples) > d.config.WindowSize {
		d.samples = d.samples[1:]
	}

	if len(d.rates) == 0 {
		return sig
	}

	var sum float64
	for _, rate := range d.rates {
		sum += rate
	}
	smoothed := sum / float64(len(d.rates))

	var accel float64
	if d.hasSmoothed {
		accel = smoothed - d.prevSmoothed
	}
	d.prevSmoothed = smoothed
	d.hasSmoothed = true

	abs := math.Abs(smoothed)
	if !d.hasBaselineAbs {
		d.baselineAbs = abs
		d.hasBaselineAbs = true
	} else {
		d.baselineAbs += d.config.BaselineAlpha * (abs - d.baselineAbs)
	}

	floor := math.Max(d.baselineAbs, d.config.Epsilon)
	sig.Confidence = clamp01(abs / (d.config.SaturationMultiple * floor))
	sig.Direction = directionOf(smoothed)
	sig.Detail = map[string]float64{
		"rate":          smoothed,
		"acceleration":  accel,
		"rate_baseline": d.baselineAbs,
	}
	return sig
}

// Reset implements Detector. It discards buffered samples so a rate is
// never computed across a data discontinuity.
func (d *RateOfChangeDetector) Reset() {
	d.samples = d.samples[:0]
	d.rates = d.rates[:0]
	d.hasSmoothed = false
	// The learned |roc| baseline survives the gap; it describes the sensor,
	// not the outage.
}
