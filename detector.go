package radwatch

import "fmt"

// DetectorKind identifies an anomaly detector in the bank.
type DetectorKind int

const (
	// DetectorZScore is the z-score deviation detector.
	DetectorZScore DetectorKind = iota
	// DetectorRateOfChange is the smoothed first/second derivative detector.
	DetectorRateOfChange
	// DetectorCusum is the cumulative-sum change detector.
	DetectorCusum
	// DetectorBayesian is the Bayesian online changepoint detector.
	DetectorBayesian
	// DetectorCrossover is the moving-average crossover detector.
	DetectorCrossover
	// DetectorAutocorrelation is the periodicity detector.
	DetectorAutocorrelation
)

func (k DetectorKind) String() string {
	switch k {
	case DetectorZScore:
		return "zscore"
	case DetectorRateOfChange:
		return "rate_of_change"
	case DetectorCusum:
		return "cusum"
	case DetectorBayesian:
		return "bayesian"
	case DetectorCrossover:
		return "crossover"
	case DetectorAutocorrelation:
		return "autocorrelation"
	default:
		return "unknown"
	}
}

// DetectorKinds returns all detector kinds in evaluation order.
func DetectorKinds() []DetectorKind {
	return []DetectorKind{
		DetectorZScore,
		DetectorRateOfChange,
		DetectorCusum,
		DetectorBayesian,
		DetectorCrossover,
		DetectorAutocorrelation,
	}
}

// ParseDetectorKind parses the string form produced by DetectorKind.String.
func ParseDetectorKind(s string) (DetectorKind, error) {
	for _, k := range DetectorKinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown detector %q", s)
}

// Direction indicates which way a signal points.
type Direction int

const (
	// DirectionNeutral means the detector has no directional opinion.
	DirectionNeutral Direction = iota
	// DirectionRising means the metric is moving above its baseline.
	DirectionRising
	// DirectionFalling means the metric is moving below its baseline.
	DirectionFalling
)

func (d Direction) String() string {
	switch d {
	case DirectionRising:
		return "rising"
	case DirectionFalling:
		return "falling"
	default:
		return "neutral"
	}
}

// DetectorSignal is emitted once per reading per detector. A confidence of
// 0 means "no signal this tick", not absence of the detector.
type DetectorSignal struct {
	// Detector is the emitting detector.
	Detector DetectorKind `json:"detector"`
	// Confidence is the detector's belief in an anomaly, in [0,1].
	Confidence float64 `json:"confidence"`
	// Direction is the sign of the detected movement.
	Direction Direction `json:"direction"`
	// TimestampMs is the timestamp of the evaluated reading.
	TimestampMs int64 `json:"timestamp_ms"`
	// Detail carries detector-specific diagnostics (accumulator values,
	// detected lags, trigger markers).
	Detail map[string]float64 `json:"detail,omitempty"`
}

// Detector is the contract every member of the detector bank implements.
// Evaluate is called once per accepted reading with the adaptive-window
// baseline snapshot; it must complete in bounded time. Reset discards
// accumulated change state after a data discontinuity.
type Detector interface {
	Kind() DetectorKind
	Evaluate(r Reading, baseline BaselineStats) DetectorSignal
	Reset()
}

// clamp01 clamps a confidence to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// directionOf returns Rising or Falling based on the sign of diff, or
// Neutral when diff is zero.
func directionOf(diff float64) Direction {
	switch {
	case diff > 0:
		return DirectionRising
	case diff < 0:
		return DirectionFalling
	default:
		return DirectionNeutral
	}
}
