package radwatch

import "math"

// ForecastConfig configures the Holt double-exponential forecaster.
type ForecastConfig struct {
	// Alpha is the smoothing parameter for level (0-1).
	Alpha float64

	// Beta is the smoothing parameter for trend (0-1).
	Beta float64

	// ResidualAlpha is the EWMA factor for the forecast-error variance.
	ResidualAlpha float64

	// ConfidenceZ is the z multiple for the confidence half-width
	// (1.96 for ~95%).
	ConfidenceZ float64

	// TrendEpsilon is the trend magnitude below which threshold-crossing
	// solutions are treated as "no crossing".
	TrendEpsilon float64
}

// DefaultForecastConfig returns default forecasting configuration.
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Alpha:         0.5,
		Beta:          0.1,
		ResidualAlpha: 0.1,
		ConfidenceZ:   1.96,
		TrendEpsilon:  1e-9,
	}
}

func (c ForecastConfig) withDefaults() ForecastConfig {
	def := DefaultForecastConfig()
	if c.Alpha <= 0 || c.Alpha >= 1 {
		c.Alpha = def.Alpha
	}
	if c.Beta <= 0 || c.Beta >= 1 {
		c.Beta = def.Beta
	}
	if c.ResidualAlpha <= 0 || c.ResidualAlpha >= 1 {
		c.ResidualAlpha = def.ResidualAlpha
	}
	if c.ConfidenceZ <= 0 {
		c.ConfidenceZ = def.ConfidenceZ
	}
	if c.TrendEpsilon <= 0 {
		c.TrendEpsilon = def.TrendEpsilon
	}
	return c
}

// ForecastState is a snapshot of the fitted model for one metric. Trend is
// expressed per second.
type ForecastState struct {
	Metric          Metric  `json:"metric"`
	Level           float64 `json:"level"`
	Trend           float64 `json:"trend"`
	ResidualStdDev  float64 `json:"residual_std_dev"`
	LastTimestampMs int64   `json:"last_timestamp_ms"`
	SampleCount     uint64  `json:"sample_count"`
	Stale           bool    `json:"stale"`
}

// ForecastResult is a point forecast with confidence bounds for a horizon.
type ForecastResult struct {
	Metric         Metric  `json:"metric"`
	HorizonSeconds float64 `json:"horizon_seconds"`
	Value          float64 `json:"value"`
	LowerBound     float64 `json:"lower_bound"`
	UpperBound     float64 `json:"upper_bound"`
	ResidualStdDev float64 `json:"residual_std_dev"`
	Stale          bool    `json:"stale"`
	// BasisTimestampMs is the timestamp of the last observation the
	// forecast extrapolates from.
	BasisTimestampMs int64 `json:"basis_timestamp_ms"`
}

type forecastState struct {
	state          ForecastState
	residVariance  float64
	staleCountdown int
}

// ForecastEngine maintains a streaming Holt (double exponential, no
// seasonality) model per metric: a level and a per-second trend updated on
// every accepted reading, with the residual standard deviation tracked as
// a secondary EWMA of one-step forecast error. It is not safe for
// concurrent use; the engine serializes access.
type ForecastEngine struct {
	config ForecastConfig
	states map[Metric]*forecastState
}

// NewForecastEngine creates a forecaster. Per-metric state is created
// lazily on first observation.
func NewForecastEngine(config ForecastConfig) *ForecastEngine {
	return &ForecastEngine{
		config: config.withDefaults(),
		states: make(map[Metric]*forecastState),
	}
}

// setConfig swaps smoothing parameters for subsequent observations.
func (f *ForecastEngine) setConfig(config ForecastConfig) {
	f.config = config.withDefaults()
}

// Observe folds a reading into the metric's model.
func (f *ForecastEngine) Observe(metric Metric, value float64, timestampMs int64) {
	st, ok := f.states[metric]
	if !ok {
		f.states[metric] = &forecastState{
			state: ForecastState{
				Metric:          metric,
				Level:           value,
				Trend:           0,
				LastTimestampMs: timestampMs,
				SampleCount:     1,
			},
		}
		return
	}

	dt := float64(timestampMs-st.state.LastTimestampMs) / 1000.0
	if dt <= 0 {
		dt = 1e-3
	}

	predicted := st.state.Level + st.state.Trend*dt
	residual := value - predicted
	st.residVariance += f.config.ResidualAlpha * (residual*residual - st.residVariance)
	if st.residVariance < 0 {
		st.residVariance = 0
	}

	prevLevel := st.state.Level
	st.state.Level = f.config.Alpha*value + (1-f.config.Alpha)*predicted
	st.state.Trend = f.config.Beta*(st.state.Level-prevLevel)/dt + (1-f.config.Beta)*st.state.Trend
	st.state.ResidualStdDev = math.Sqrt(st.residVariance)
	st.state.LastTimestampMs = timestampMs
	st.state.SampleCount++

	if st.state.Stale {
		st.staleCountdown--
		if st.staleCountdown <= 0 {
			st.state.Stale = false
		}
	}
}

// State returns a copy of the fitted model for the metric.
func (f *ForecastEngine) State(metric Metric) (ForecastState, bool) {
	st, ok := f.states[metric]
	if !ok {
		return ForecastState{Metric: metric}, false
	}
	return st.state, true
}

// Forecast extrapolates the metric's model horizonSeconds ahead. The
// confidence half-width widens with the square root of the horizon.
func (f *ForecastEngine) Forecast(metric Metric, horizonSeconds float64) (ForecastResult, error) {
	st, ok := f.states[metric]
	if !ok {
		return ForecastResult{}, ErrNoForecast
	}
	if horizonSeconds < 0 {
		horizonSeconds = 0
	}

	value := st.state.Level + horizonSeconds*st.state.Trend
	half := f.config.ConfidenceZ * st.state.ResidualStdDev * math.Sqrt(horizonSeconds)
	return ForecastResult{
		Metric:           metric,
		HorizonSeconds:   horizonSeconds,
		Value:            value,
		LowerBound:       value - half,
		UpperBound:       value + half,
		ResidualStdDev:   st.state.ResidualStdDev,
		Stale:            st.state.Stale,
		BasisTimestampMs: st.state.LastTimestampMs,
	}, nil
}

// ThresholdCrossing solves level + t*trend = threshold for t seconds.
// The second return is false when the model does not cross the threshold:
// no state, a flat or wrong-signed trend, or a crossing in the past.
func (f *ForecastEngine) ThresholdCrossing(metric Metric, threshold float64) (float64, bool) {
	st, ok := f.states[metric]
	if !ok {
		return 0, false
	}
	trend := st.state.Trend
	if math.Abs(trend) < f.config.TrendEpsilon {
		return 0, false
	}
	t := (threshold - st.state.Level) / trend
	if t <= 0 {
		return 0, false
	}
	return t, true
}

// MarkStale flags the metric's model as stale until recoveryReadings fresh
// readings have been observed. The fitted level and trend are kept.
func (f *ForecastEngine) MarkStale(metric Metric, recoveryReadings int) {
	if st, ok := f.states[metric]; ok {
		st.state.Stale = true
		st.staleCountdown = recoveryReadings
	}
}

// Reset discards the metric's model entirely.
func (f *ForecastEngine) Reset(metric Metric) {
	delete(f.states, metric)
}
