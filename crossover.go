package radwatch

import "math"

// CrossoverConfig configures the moving-average crossover detector.
type CrossoverConfig struct {
	// ShortWindow is the fast moving-average length in readings.
	ShortWindow int

	// LongWindow is the slow moving-average length in readings.
	LongWindow int

	// Epsilon floors the baseline sigma used to normalize the crossover gap.
	Epsilon float64
}

// DefaultCrossoverConfig returns default crossover configuration.
func DefaultCrossoverConfig() CrossoverConfig {
	return CrossoverConfig{ShortWindow: 10, LongWindow: 60, Epsilon: zScoreEpsilon}
}

func (c CrossoverConfig) withDefaults() CrossoverConfig {
	def := DefaultCrossoverConfig()
	if c.ShortWindow < 2 {
		c.ShortWindow = def.ShortWindow
	}
	if c.LongWindow <= c.ShortWindow {
		c.LongWindow = def.LongWindow
		if c.LongWindow <= c.ShortWindow {
			c.LongWindow = c.ShortWindow * 6
		}
	}
	if c.Epsilon <= 0 {
		c.Epsilon = def.Epsilon
	}
	return c
}

// MovingAverageCrossoverDetector watches a fast and a slow simple moving
// average and fires when their difference changes sign: short crossing
// above long ("golden") reads as rising, below ("death") as falling. After
// a fire the detector is suppressed for LongWindow/2 readings so noise
// around the crossing point cannot flip-flop.
type MovingAverageCrossoverDetector struct {
	config CrossoverConfig

	values   []float64 // ring of the last LongWindow values, oldest first
	shortSum float64
	longSum  float64

	prevDiff    float64
	hasPrevDiff bool
	cooldown    int
}

// NewMovingAverageCrossoverDetector creates a crossover detector.
func NewMovingAverageCrossoverDetector(config CrossoverConfig) *MovingAverageCrossoverDetector {
	config = config.withDefaults()
	return &MovingAverageCrossoverDetector{
		config: config,
		values: make([]float64, 0, config.LongWindow),
	}
}

// Kind implements Detector.
func (d *MovingAverageCrossoverDetector) Kind() DetectorKind { return DetectorCrossover }

// Evaluate implements Detector.
func (d *MovingAverageCrossoverDetector) Evaluate(r Reading, baseline BaselineStats) DetectorSignal {
	sig := DetectorSignal{
		Detector:    DetectorCrossover,
		Direction:   DirectionNeutral,
		TimestampMs: r.TimestampMs,
	}

	d.values = append(d.values, r.Value)
	if len(d.values) > d.config.LongWindow {
		d.values = d.values[1:]
	}
	if len(d.values) < d.config.LongWindow {
		// Warming up; no opinion until the slow average is populated.
		return sig
	}

	longSum := 0.0
	for _, v := range d.values {
		longSum += v
	}
	shortSum := 0.0
	for _, v := range d.values[len(d.values)-d.config.ShortWindow:] {
		shortSum += v
	}
	shortMA := shortSum / float64(d.config.ShortWindow)
	longMA := longSum / float64(d.config.LongWindow)
	diff := shortMA - longMA

	crossed := d.hasPrevDiff && d.cooldown == 0 &&
		((d.prevDiff <= 0 && diff > 0) || (d.prevDiff >= 0 && diff < 0))
	if d.cooldown > 0 {
		d.cooldown--
	}
	d.prevDiff = diff
	d.hasPrevDiff = true

	sig.Detail = map[string]float64{
		"short_ma": shortMA,
		"long_ma":  longMA,
		"gap":      diff,
		"cooldown": float64(d.cooldown),
	}
	if !crossed {
		return sig
	}

	sigma := math.Max(baseline.StdDev(), d.config.Epsilon)
	sig.Confidence = clamp01(math.Abs(diff) / sigma)
	sig.Direction = directionOf(diff)
	d.cooldown = d.config.LongWindow / 2
	sig.Detail["cooldown"] = float64(d.cooldown)
	return sig
}

// Reset implements Detector. Buffered averages span the discontinuity and
// are discarded.
func (d *MovingAverageCrossoverDetector) Reset() {
	d.values = d.values[:0]
	d.hasPrevDiff = false
	d.cooldown = 0
}
