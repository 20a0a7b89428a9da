package radwatch

import (
	"errors"
	"math"
	"testing"
)

func TestForecastEngine_NoStateBeforeFirstReading(t *testing.T) {
	f := NewForecastEngine(DefaultForecastConfig())

	if _, err := f.Forecast(MetricDoseRate, 60); !errors.Is(err, ErrNoForecast) {
		t.Errorf("forecast before any reading: err = %v, want ErrNoForecast", err)
	}
	if _, ok := f.State(MetricDoseRate); ok {
		t.Error("state should not exist before any reading")
	}
}

func TestForecastEngine_TracksLinearRamp(t *testing.T) {
	f := NewForecastEngine(DefaultForecastConfig())

	// 0.1 units per second, one reading per second.
	ts := int64(1000)
	for i := 0; i < 120; i++ {
		f.Observe(MetricDoseRate, 0.1*float64(i), ts)
		ts += 1000
	}

	st, ok := f.State(MetricDoseRate)
	if !ok {
		t.Fatal("expected state after observations")
	}
	if math.Abs(st.Trend-0.1) > 0.02 {
		t.Errorf("fitted trend = %v, want ~0.1 per second", st.Trend)
	}
	if math.Abs(st.Level-0.1*119) > 0.5 {
		t.Errorf("fitted level = %v, want near the last value %v", st.Level, 0.1*119)
	}

	result, err := f.Forecast(MetricDoseRate, 10)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	want := st.Level + 10*st.Trend
	if result.Value != want {
		t.Errorf("forecast value = %v, want %v", result.Value, want)
	}
	if result.LowerBound > result.Value || result.UpperBound < result.Value {
		t.Errorf("bounds [%v, %v] must bracket the point forecast %v",
			result.LowerBound, result.UpperBound, result.Value)
	}
}

func TestForecastEngine_BoundsWidenWithHorizon(t *testing.T) {
	f := NewForecastEngine(DefaultForecastConfig())

	ts := int64(1000)
	for i := 0; i < 120; i++ {
		// Noisy constant keeps the residual deviation positive.
		f.Observe(MetricDoseRate, 1.0+0.05*math.Sin(float64(i)), ts)
		ts += 1000
	}

	short, err := f.Forecast(MetricDoseRate, 10)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	long, err := f.Forecast(MetricDoseRate, 100)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if short.ResidualStdDev <= 0 {
		t.Fatalf("residual stddev = %v, want positive on a noisy stream", short.ResidualStdDev)
	}
	shortWidth := short.UpperBound - short.LowerBound
	longWidth := long.UpperBound - long.LowerBound
	if longWidth <= shortWidth {
		t.Errorf("interval width must widen with horizon: %v <= %v", longWidth, shortWidth)
	}
}

func TestForecastEngine_ThresholdCrossing(t *testing.T) {
	f := NewForecastEngine(DefaultForecastConfig())

	ts := int64(1000)
	for i := 0; i < 120; i++ {
		f.Observe(MetricDoseRate, 0.1*float64(i), ts)
		ts += 1000
	}
	st, _ := f.State(MetricDoseRate)

	// Rising trend toward a threshold above the current level.
	secs, ok := f.ThresholdCrossing(MetricDoseRate, st.Level+1.0)
	if !ok {
		t.Fatal("expected a predicted crossing on a rising trend")
	}
	want := 1.0 / st.Trend
	if math.Abs(secs-want) > 1e-9 {
		t.Errorf("crossing in %v s, want %v s", secs, want)
	}

	// Threshold already behind the trajectory: no future crossing.
	if _, ok := f.ThresholdCrossing(MetricDoseRate, st.Level-1.0); ok {
		t.Error("threshold below a rising trajectory must not cross in the future")
	}
	if _, ok := f.ThresholdCrossing(MetricCountRate, 10); ok {
		t.Error("unobserved metric must report no crossing")
	}
}

func TestForecastEngine_FlatTrendNeverCrosses(t *testing.T) {
	f := NewForecastEngine(DefaultForecastConfig())

	ts := int64(1000)
	for i := 0; i < 60; i++ {
		f.Observe(MetricDoseRate, 1.0, ts)
		ts += 1000
	}
	if _, ok := f.ThresholdCrossing(MetricDoseRate, 100); ok {
		t.Error("flat series must report no crossing")
	}
}

func TestForecastEngine_MarkStaleRecovery(t *testing.T) {
	f := NewForecastEngine(DefaultForecastConfig())

	ts := int64(1000)
	for i := 0; i < 30; i++ {
		f.Observe(MetricDoseRate, 1.0, ts)
		ts += 1000
	}
	f.MarkStale(MetricDoseRate, 3)

	result, err := f.Forecast(MetricDoseRate, 10)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if !result.Stale {
		t.Fatal("forecast should be flagged stale")
	}

	for i := 0; i < 3; i++ {
		f.Observe(MetricDoseRate, 1.0, ts)
		ts += 1000
	}
	result, _ = f.Forecast(MetricDoseRate, 10)
	if result.Stale {
		t.Error("forecast should recover after enough fresh readings")
	}
}

func TestForecastEngine_ResetDiscardsModel(t *testing.T) {
	f := NewForecastEngine(DefaultForecastConfig())

	f.Observe(MetricDoseRate, 1.0, 1000)
	f.Reset(MetricDoseRate)
	if _, err := f.Forecast(MetricDoseRate, 10); !errors.Is(err, ErrNoForecast) {
		t.Errorf("forecast after reset: err = %v, want ErrNoForecast", err)
	}
}
