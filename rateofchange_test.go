package radwatch

import (
	"math"
	"testing"
)

func steadyBaseline() BaselineStats {
	return BaselineStats{Mean: 1, Variance: 0.01, SampleCount: 100}
}

func TestRateOfChangeDetector_FirstReadingIsSilent(t *testing.T) {
	d := NewRateOfChangeDetector(DefaultRateOfChangeConfig())

	sig := d.Evaluate(Reading{Metric: MetricDoseRate, Value: 1, TimestampMs: 1000}, steadyBaseline())
	if sig.Confidence != 0 {
		t.Errorf("confidence with no prior sample = %v, want 0", sig.Confidence)
	}
}

func TestRateOfChangeDetector_SteadyStreamStaysQuiet(t *testing.T) {
	d := NewRateOfChangeDetector(DefaultRateOfChangeConfig())

	ts := int64(1000)
	var sig DetectorSignal
	for i := 0; i < 60; i++ {
		sig = d.Evaluate(Reading{Metric: MetricDoseRate, Value: 1.0, TimestampMs: ts}, steadyBaseline())
		ts += 1000
	}
	if sig.Confidence != 0 {
		t.Errorf("confidence on flat stream = %v, want 0", sig.Confidence)
	}
	if sig.Detail["rate"] != 0 {
		t.Errorf("smoothed rate on flat stream = %v, want 0", sig.Detail["rate"])
	}
}

func TestRateOfChangeDetector_SuddenRampFires(t *testing.T) {
	d := NewRateOfChangeDetector(DefaultRateOfChangeConfig())

	ts := int64(1000)
	for i := 0; i < 60; i++ {
		d.Evaluate(Reading{Metric: MetricDoseRate, Value: 1.0 + 0.001*math.Sin(float64(i)), TimestampMs: ts}, steadyBaseline())
		ts += 1000
	}

	value := 1.0
	var sig DetectorSignal
	for i := 0; i < 5; i++ {
		value += 0.5
		sig = d.Evaluate(Reading{Metric: MetricDoseRate, Value: value, TimestampMs: ts}, steadyBaseline())
		ts += 1000
	}

	if sig.Confidence < 0.9 {
		t.Errorf("confidence on steep ramp = %v, want >= 0.9", sig.Confidence)
	}
	if sig.Direction != DirectionRising {
		t.Errorf("direction on upward ramp = %v, want rising", sig.Direction)
	}
	if sig.Detail["rate"] <= 0 {
		t.Errorf("smoothed rate = %v, want positive", sig.Detail["rate"])
	}
}

func TestRateOfChangeDetector_ResetKeepsLearnedBaseline(t *testing.T) {
	d := NewRateOfChangeDetector(DefaultRateOfChangeConfig())

	ts := int64(1000)
	for i := 0; i < 30; i++ {
		d.Evaluate(Reading{Metric: MetricDoseRate, Value: float64(i), TimestampMs: ts}, steadyBaseline())
		ts += 1000
	}
	learned := d.baselineAbs
	if learned <= 0 {
		t.Fatalf("learned rate baseline = %v, want positive", learned)
	}

	d.Reset()
	if len(d.samples) != 0 || len(d.rates) != 0 {
		t.Error("reset should discard buffered samples and rates")
	}
	if d.baselineAbs != learned {
		t.Errorf("learned rate baseline after reset = %v, want %v", d.baselineAbs, learned)
	}

	// The first reading after a reset computes no rate across the gap.
	sig := d.Evaluate(Reading{Metric: MetricDoseRate, Value: 500, TimestampMs: ts + 60000}, steadyBaseline())
	if sig.Confidence != 0 {
		t.Errorf("confidence on first post-reset reading = %v, want 0", sig.Confidence)
	}
}
