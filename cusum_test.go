package radwatch

import (
	"math"
	"testing"
)

func TestCusumDetector_NoiseStaysBelowThreshold(t *testing.T) {
	d := NewCusumDetector(DefaultCusumConfig())
	baseline := BaselineStats{Mean: 1, Variance: 0.01, SampleCount: 100}

	// Symmetric noise inside the slack band never accumulates.
	ts := int64(1000)
	for i := 0; i < 200; i++ {
		value := 1.0 + 0.03*math.Sin(float64(i))
		sig := d.Evaluate(Reading{Metric: MetricDoseRate, Value: value, TimestampMs: ts}, baseline)
		if sig.Detail["triggered"] != 0 {
			t.Fatalf("triggered on in-band noise at tick %d", i)
		}
		ts += 1000
	}

	st := d.State()
	if st.High < 0 || st.Low > 0 {
		t.Errorf("accumulator invariant violated: high=%v low=%v", st.High, st.Low)
	}
}

func TestCusumDetector_SustainedShiftTriggersOnce(t *testing.T) {
	d := NewCusumDetector(DefaultCusumConfig())
	baseline := BaselineStats{Mean: 1, Variance: 0.01, SampleCount: 100}

	// A persistent +2 sigma shift accumulates and fires within a few ticks.
	ts := int64(1000)
	fired := -1
	for i := 0; i < 20; i++ {
		sig := d.Evaluate(Reading{Metric: MetricDoseRate, Value: 1.2, TimestampMs: ts}, baseline)
		if sig.Detail["triggered"] == 1 {
			fired = i
			if sig.Direction != DirectionRising {
				t.Errorf("trigger direction = %v, want rising", sig.Direction)
			}
			if sig.Confidence < 1 {
				t.Errorf("confidence at trigger = %v, want 1", sig.Confidence)
			}
			break
		}
		ts += 1000
	}
	if fired < 0 {
		t.Fatal("sustained shift never triggered")
	}

	// Edge latch: the trigger re-arms the accumulators.
	st := d.State()
	if st.High != 0 || st.Low != 0 {
		t.Errorf("accumulators after trigger = high %v low %v, want both 0", st.High, st.Low)
	}
}

func TestCusumDetector_FallingShift(t *testing.T) {
	d := NewCusumDetector(DefaultCusumConfig())
	baseline := BaselineStats{Mean: 1, Variance: 0.01, SampleCount: 100}

	ts := int64(1000)
	var sig DetectorSignal
	for i := 0; i < 10; i++ {
		sig = d.Evaluate(Reading{Metric: MetricDoseRate, Value: 0.8, TimestampMs: ts}, baseline)
		if sig.Detail["triggered"] == 1 {
			break
		}
		ts += 1000
	}
	if sig.Detail["triggered"] != 1 {
		t.Fatal("sustained negative shift never triggered")
	}
	if sig.Direction != DirectionFalling {
		t.Errorf("direction = %v, want falling", sig.Direction)
	}
}

func TestCusumDetector_WarmupAndReset(t *testing.T) {
	d := NewCusumDetector(DefaultCusumConfig())

	sig := d.Evaluate(
		Reading{Metric: MetricDoseRate, Value: 100, TimestampMs: 1000},
		BaselineStats{Mean: 1, SampleCount: 1},
	)
	if sig.Confidence != 0 {
		t.Errorf("confidence against unseeded baseline = %v, want 0", sig.Confidence)
	}

	baseline := BaselineStats{Mean: 1, Variance: 0.01, SampleCount: 100}
	d.Evaluate(Reading{Metric: MetricDoseRate, Value: 1.3, TimestampMs: 2000}, baseline)
	if d.State().High == 0 {
		t.Fatal("expected accumulation before reset")
	}
	d.Reset()
	st := d.State()
	if st.High != 0 || st.Low != 0 {
		t.Errorf("accumulators after reset = high %v low %v, want both 0", st.High, st.Low)
	}
}
