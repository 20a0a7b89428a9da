package radwatch

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ZScoreConfig configures the z-score detector.
type ZScoreConfig struct {
	// Epsilon floors the baseline standard deviation to avoid division
	// blow-up against near-constant baselines.
	Epsilon float64
}

// DefaultZScoreConfig returns default z-score detector configuration.
func DefaultZScoreConfig() ZScoreConfig {
	return ZScoreConfig{Epsilon: zScoreEpsilon}
}

func (c ZScoreConfig) withDefaults() ZScoreConfig {
	if c.Epsilon <= 0 {
		c.Epsilon = zScoreEpsilon
	}
	return c
}

// ZScoreDetector scores each reading by its deviation from the baseline
// mean, mapping |z| through the two-tailed standard normal CDF so that
// |z|=1 yields ~0.68, |z|=2 ~0.95, |z|=3 ~0.997.
type ZScoreDetector struct {
	config ZScoreConfig
	norm   distuv.Normal
}

// NewZScoreDetector creates a z-score detector.
func NewZScoreDetector(config ZScoreConfig) *ZScoreDetector {
	return &ZScoreDetector{
		config: config.withDefaults(),
		norm:   distuv.Normal{Mu: 0, Sigma: 1},
	}
}

// Kind implements Detector.
func (d *ZScoreDetector) Kind() DetectorKind { return DetectorZScore }

// Evaluate implements Detector.
func (d *ZScoreDetector) Evaluate(r Reading, baseline BaselineStats) DetectorSignal {
	sig := DetectorSignal{
		Detector:    DetectorZScore,
		Direction:   DirectionNeutral,
		TimestampMs: r.TimestampMs,
	}
	// Against a single-sample or zero-variance baseline the z-score is
	// defined as zero, not infinity.
	if baseline.SampleCount < 2 {
		return sig
	}
	sd := math.Max(baseline.StdDev(), d.config.Epsilon)
	z := (r.Value - baseline.Mean) / sd

	// Two-tailed probability of seeing a deviation at least this large.
	sig.Confidence = clamp01(2*d.norm.CDF(math.Abs(z)) - 1)
	sig.Direction = directionOf(r.Value - baseline.Mean)
	sig.Detail = map[string]float64{"z": z}
	return sig
}

// Reset implements Detector. The z-score detector carries no state across
// readings.
func (d *ZScoreDetector) Reset() {}
