package radwatch

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// BayesianConfig configures the Bayesian online changepoint detector.
type BayesianConfig struct {
	// Hazard is the prior probability of a changepoint at any step.
	Hazard float64

	// MaxRunLength bounds the run-length posterior support. Probability
	// mass beyond the bound is folded into the last bucket.
	MaxRunLength int

	// MinVariance floors the observation variance borrowed from the
	// baseline so predictive densities stay proper.
	MinVariance float64
}

// DefaultBayesianConfig returns default Bayesian detector configuration.
func DefaultBayesianConfig() BayesianConfig {
	return BayesianConfig{
		Hazard:       1.0 / 250.0,
		MaxRunLength: 512,
		MinVariance:  1e-6,
	}
}

func (c BayesianConfig) withDefaults() BayesianConfig {
	def := DefaultBayesianConfig()
	if c.Hazard <= 0 || c.Hazard >= 1 {
		c.Hazard = def.Hazard
	}
	if c.MaxRunLength < 2 {
		c.MaxRunLength = def.MaxRunLength
	}
	if c.MinVariance <= 0 {
		c.MinVariance = def.MinVariance
	}
	return c
}

// BayesianChangepointDetector implements the Adams-MacKay online run-length
// posterior over a Gaussian observation model with conjugate mean updates.
// All probability arithmetic happens in log space; the distribution is
// renormalized every step and always sums to one within floating tolerance.
type BayesianChangepointDetector struct {
	config BayesianConfig

	seeded    bool
	priorMean float64

	// Per-run-length posterior parameters for the mean. Index i corresponds
	// to run length i; index 0 holds the prior.
	means   []float64
	invVars []float64

	// logProbs is the current run-length log-distribution.
	logProbs []float64
}

// NewBayesianChangepointDetector creates a Bayesian changepoint detector.
func NewBayesianChangepointDetector(config BayesianConfig) *BayesianChangepointDetector {
	return &BayesianChangepointDetector{config: config.withDefaults()}
}

// Kind implements Detector.
func (d *BayesianChangepointDetector) Kind() DetectorKind { return DetectorBayesian }

// Evaluate implements Detector.
func (d *BayesianChangepointDetector) Evaluate(r Reading, baseline BaselineStats) DetectorSignal {
	sig := DetectorSignal{
		Detector:    DetectorBayesian,
		Direction:   DirectionNeutral,
		TimestampMs: r.TimestampMs,
	}

	obsVar := math.Max(baseline.Variance, d.config.MinVariance)

	if !d.seeded {
		d.seed(r.Value, obsVar)
		return sig
	}

	// Predictive log-density of the observation under each run-length
	// hypothesis.
	logPred := make([]float64, len(d.logProbs))
	expected := 0.0
	for i := range d.logProbs {
		predVar := 1/d.invVars[i] + obsVar
		norm := distuv.Normal{Mu: d.means[i], Sigma: math.Sqrt(predVar)}
		logPred[i] = norm.LogProb(r.Value)
		expected += math.Exp(d.logProbs[i]) * d.means[i]
	}

	logH := math.Log(d.config.Hazard)
	log1mH := math.Log(1 - d.config.Hazard)

	// Growth: the run survives and lengthens by one.
	growth := make([]float64, len(d.logProbs))
	cp := make([]float64, len(d.logProbs))
	for i := range d.logProbs {
		joint := d.logProbs[i] + logPred[i]
		growth[i] = joint + log1mH
		cp[i] = joint + logH
	}

	next := make([]float64, 0, len(growth)+1)
	next = append(next, floats.LogSumExp(cp))
	next = append(next, growth...)

	d.updatePosterior(r.Value, obsVar)

	// Bounded support: fold tail mass into the last bucket.
	if len(next) > d.config.MaxRunLength {
		bound := d.config.MaxRunLength
		next[bound-1] = floats.LogSumExp(next[bound-1:])
		next = next[:bound]
		d.means = d.means[:bound]
		d.invVars = d.invVars[:bound]
	}

	// Renormalize.
	total := floats.LogSumExp(next)
	for i := range next {
		next[i] -= total
	}
	d.logProbs = next

	sig.Confidence = clamp01(math.Exp(d.logProbs[0]))
	sig.Direction = directionOf(r.Value - expected)
	sig.Detail = map[string]float64{
		"p_changepoint":   sig.Confidence,
		"map_run_length":  float64(d.mapRunLength()),
		"expected_value":  expected,
		"run_length_bins": float64(len(d.logProbs)),
	}
	return sig
}

// seed initializes the posterior from the first observation after
// construction or a reset.
func (d *BayesianChangepointDetector) seed(value, obsVar float64) {
	d.seeded = true
	d.priorMean = value
	d.means = []float64{value}
	d.invVars = []float64{1 / obsVar}
	d.logProbs = []float64{0} // P(run length = 0) = 1
}

// updatePosterior shifts the conjugate mean parameters by one run length
// and re-inserts the prior at run length zero.
func (d *BayesianChangepointDetector) updatePosterior(x, obsVar float64) {
	n := len(d.means)
	newMeans := make([]float64, n+1)
	newInvVars := make([]float64, n+1)
	newMeans[0] = d.priorMean
	newInvVars[0] = 1 / obsVar
	for i := 0; i < n; i++ {
		iv := d.invVars[i] + 1/obsVar
		newInvVars[i+1] = iv
		newMeans[i+1] = (d.means[i]*d.invVars[i] + x/obsVar) / iv
	}
	d.means = newMeans
	d.invVars = newInvVars
}

// mapRunLength returns the maximum a posteriori run length.
func (d *BayesianChangepointDetector) mapRunLength() int {
	best := 0
	for i, lp := range d.logProbs {
		if lp > d.logProbs[best] {
			best = i
		}
	}
	return best
}

// RunLengthPosterior returns a copy of the run-length distribution in
// probability space. Useful for diagnostics; the returned slice always
// sums to 1 within floating tolerance.
func (d *BayesianChangepointDetector) RunLengthPosterior() []float64 {
	out := make([]float64, len(d.logProbs))
	for i, lp := range d.logProbs {
		out[i] = math.Exp(lp)
	}
	return out
}

// Reset implements Detector. The posterior is discarded; the next reading
// re-seeds the prior, since run lengths across a sensor outage are
// meaningless.
func (d *BayesianChangepointDetector) Reset() {
	d.seeded = false
	d.means = nil
	d.invVars = nil
	d.logProbs = nil
}
