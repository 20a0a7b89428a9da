package radwatch

import "math"

// CusumConfig configures the CUSUM change detector.
type CusumConfig struct {
	// K is the slack multiple: slack = K * baseline sigma. Small sustained
	// shifts below the slack are ignored.
	K float64

	// H is the trigger threshold multiple: threshold = H * baseline sigma.
	H float64

	// Epsilon floors the baseline sigma so thresholds stay positive against
	// near-constant baselines.
	Epsilon float64
}

// DefaultCusumConfig returns default CUSUM configuration.
func DefaultCusumConfig() CusumConfig {
	return CusumConfig{K: 0.5, H: 5, Epsilon: zScoreEpsilon}
}

func (c CusumConfig) withDefaults() CusumConfig {
	def := DefaultCusumConfig()
	if c.K <= 0 {
		c.K = def.K
	}
	if c.H <= 0 {
		c.H = def.H
	}
	if c.Epsilon <= 0 {
		c.Epsilon = def.Epsilon
	}
	return c
}

// CusumState is a snapshot of the detector's accumulators.
// Invariant: High >= 0 >= Low.
type CusumState struct {
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Slack     float64 `json:"slack"`
	Threshold float64 `json:"threshold"`
}

// CusumDetector implements a tabular CUSUM control chart over the baseline
// mean. Triggers are edge-latched: both accumulators reset to zero when
// either side crosses its threshold, so a sustained shift fires once and
// re-arms instead of firing every tick.
type CusumDetector struct {
	config CusumConfig
	state  CusumState
}

// NewCusumDetector creates a CUSUM detector.
func NewCusumDetector(config CusumConfig) *CusumDetector {
	return &CusumDetector{config: config.withDefaults()}
}

// setConfig swaps tunables without discarding accumulated sums.
func (d *CusumDetector) setConfig(config CusumConfig) {
	d.config = config.withDefaults()
}

// Kind implements Detector.
func (d *CusumDetector) Kind() DetectorKind { return DetectorCusum }

// Evaluate implements Detector.
func (d *CusumDetector) Evaluate(r Reading, baseline BaselineStats) DetectorSignal {
	sig := DetectorSignal{
		Detector:    DetectorCusum,
		Direction:   DirectionNeutral,
		TimestampMs: r.TimestampMs,
	}
	if baseline.SampleCount < 2 {
		return sig
	}

	sigma := math.Max(baseline.StdDev(), d.config.Epsilon)
	slack := d.config.K * sigma
	threshold := d.config.H * sigma
	d.state.Slack = slack
	d.state.Threshold = threshold

	diff := r.Value - baseline.Mean
	d.state.High = math.Max(0, d.state.High+diff-slack)
	d.state.Low = math.Min(0, d.state.Low+diff+slack)

	magnitude := math.Max(d.state.High, -d.state.Low)
	sig.Confidence = clamp01(magnitude / threshold)
	if d.state.High >= -d.state.Low {
		sig.Direction = DirectionRising
	} else {
		sig.Direction = DirectionFalling
	}

	triggered := 0.0
	if d.state.High >= threshold || -d.state.Low >= threshold {
		triggered = 1.0
		// Edge-triggered latch: re-arm so a sustained shift does not spam.
		d.state.High = 0
		d.state.Low = 0
	}
	sig.Detail = map[string]float64{
		"cusum_high": d.state.High,
		"cusum_low":  d.state.Low,
		"threshold":  threshold,
		"triggered":  triggered,
	}
	return sig
}

// State returns a copy of the current accumulators.
func (d *CusumDetector) State() CusumState {
	return d.state
}

// Reset implements Detector. A change cannot be meaningfully attributed
// across a sensor outage, so both accumulators drop to zero.
func (d *CusumDetector) Reset() {
	d.state.High = 0
	d.state.Low = 0
}
