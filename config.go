package radwatch

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config defines engine configuration. Zero values are replaced with
// defaults by New; use DefaultConfig as a starting point.
type Config struct {
	// ExpectedInterval is the nominal spacing between readings.
	// Default: 1 second.
	ExpectedInterval time.Duration

	// GapFactor is the multiple of ExpectedInterval beyond which a gap
	// between consecutive readings is treated as a data discontinuity.
	// Default: 3.
	GapFactor float64

	// StaleRecoveryReadings is the number of fresh readings required after
	// a discontinuity before baselines and forecasts are trusted again.
	// Default: 10.
	StaleRecoveryReadings int

	// Baseline configures the per-window baseline estimators.
	Baseline BaselineConfig

	// ZScore configures the z-score detector.
	ZScore ZScoreConfig

	// RateOfChange configures the rate-of-change detector.
	RateOfChange RateOfChangeConfig

	// Cusum configures the CUSUM change detector.
	Cusum CusumConfig

	// Bayesian configures the Bayesian changepoint detector.
	Bayesian BayesianConfig

	// Crossover configures the moving-average crossover detector.
	Crossover CrossoverConfig

	// Autocorrelation configures the periodicity detector.
	Autocorrelation AutocorrelationConfig

	// Forecast configures the Holt double-exponential forecaster.
	Forecast ForecastConfig

	// Ensemble configures verdict voting.
	Ensemble EnsembleConfig

	// Logger receives engine diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger

	// Instrumentation, if non-nil, receives ingestion and verdict metrics.
	Instrumentation *Instrumentation
}

// DefaultConfig returns a configuration with sensible defaults for a
// roughly 1 Hz reading stream.
func DefaultConfig() Config {
	return Config{
		ExpectedInterval:      time.Second,
		GapFactor:             3,
		StaleRecoveryReadings: 10,
		Baseline:              DefaultBaselineConfig(),
		ZScore:                DefaultZScoreConfig(),
		RateOfChange:          DefaultRateOfChangeConfig(),
		Cusum:                 DefaultCusumConfig(),
		Bayesian:              DefaultBayesianConfig(),
		Crossover:             DefaultCrossoverConfig(),
		Autocorrelation:       DefaultAutocorrelationConfig(),
		Forecast:              DefaultForecastConfig(),
		Ensemble:              DefaultEnsembleConfig(),
		Logger:                zap.NewNop(),
	}
}

// withDefaults fills zero values with defaults without touching valid fields.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ExpectedInterval <= 0 {
		c.ExpectedInterval = def.ExpectedInterval
	}
	if c.GapFactor <= 0 {
		c.GapFactor = def.GapFactor
	}
	if c.StaleRecoveryReadings <= 0 {
		c.StaleRecoveryReadings = def.StaleRecoveryReadings
	}
	c.Baseline = c.Baseline.withDefaults()
	c.ZScore = c.ZScore.withDefaults()
	c.RateOfChange = c.RateOfChange.withDefaults()
	c.Cusum = c.Cusum.withDefaults()
	c.Bayesian = c.Bayesian.withDefaults()
	c.Crossover = c.Crossover.withDefaults()
	c.Autocorrelation = c.Autocorrelation.withDefaults()
	c.Forecast = c.Forecast.withDefaults()
	c.Ensemble = c.Ensemble.withDefaults()
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Validate checks cross-field constraints that defaulting cannot repair.
func (c Config) Validate() error {
	if c.Cusum.K >= c.Cusum.H {
		return newConfigError("Cusum.K", fmt.Sprintf("slack multiple k=%g must be below threshold multiple h=%g", c.Cusum.K, c.Cusum.H))
	}
	if c.Ensemble.AttentionCount < c.Ensemble.WatchingCount || c.Ensemble.AlertCount < c.Ensemble.AttentionCount {
		return newConfigError("Ensemble", "agreement thresholds must be nondecreasing from Watching to Alert")
	}
	for kind, th := range c.Ensemble.ActivationThresholds {
		if th < 0 || th > 1 {
			return newConfigError("Ensemble.ActivationThresholds",
				fmt.Sprintf("threshold %g for %s outside [0,1]", th, kind))
		}
	}
	return nil
}

// Options is the set of tunables recognized by Engine.Configure. Nil or
// empty fields leave the corresponding setting unchanged. Options are
// serializable so the settings-persistence collaborator can round-trip them.
type Options struct {
	// ActivationThresholds overrides per-detector activation thresholds,
	// keyed by DetectorKind.String().
	ActivationThresholds map[string]float64 `json:"activation_thresholds,omitempty" yaml:"activation_thresholds,omitempty"`

	// CusumK and CusumH override the CUSUM slack and threshold multiples.
	CusumK *float64 `json:"cusum_k,omitempty" yaml:"cusum_k,omitempty"`
	CusumH *float64 `json:"cusum_h,omitempty" yaml:"cusum_h,omitempty"`

	// ForecastAlpha and ForecastBeta override the Holt smoothing parameters.
	ForecastAlpha *float64 `json:"forecast_alpha,omitempty" yaml:"forecast_alpha,omitempty"`
	ForecastBeta  *float64 `json:"forecast_beta,omitempty" yaml:"forecast_beta,omitempty"`

	// BaselineHalfLifeSeconds overrides baseline half-lives, keyed by
	// WindowKind.String().
	BaselineHalfLifeSeconds map[string]float64 `json:"baseline_half_life_seconds,omitempty" yaml:"baseline_half_life_seconds,omitempty"`

	// WatchingCount, AttentionCount and AlertCount override the ensemble
	// agreement thresholds.
	WatchingCount  *int `json:"watching_count,omitempty" yaml:"watching_count,omitempty"`
	AttentionCount *int `json:"attention_count,omitempty" yaml:"attention_count,omitempty"`
	AlertCount     *int `json:"alert_count,omitempty" yaml:"alert_count,omitempty"`

	// AutocorrelationCadence and AutocorrelationBufferLen override the
	// periodicity detector's recompute cadence and sample buffer length.
	AutocorrelationCadence   *int `json:"autocorrelation_cadence,omitempty" yaml:"autocorrelation_cadence,omitempty"`
	AutocorrelationBufferLen *int `json:"autocorrelation_buffer_len,omitempty" yaml:"autocorrelation_buffer_len,omitempty"`
}

// validate checks the options against the configuration they would produce
// when applied on top of cur. It returns the first violation found.
func (o Options) validate(cur Config) error {
	for name, th := range o.ActivationThresholds {
		if _, err := ParseDetectorKind(name); err != nil {
			return newConfigError("ActivationThresholds", "unknown detector "+name)
		}
		if th < 0 || th > 1 {
			return newConfigError("ActivationThresholds", fmt.Sprintf("threshold %g for %s outside [0,1]", th, name))
		}
	}
	k, h := cur.Cusum.K, cur.Cusum.H
	if o.CusumK != nil {
		k = *o.CusumK
	}
	if o.CusumH != nil {
		h = *o.CusumH
	}
	if k <= 0 || h <= 0 || k >= h {
		return newConfigError("CusumK", fmt.Sprintf("require 0 < k < h, got k=%g h=%g", k, h))
	}
	if o.ForecastAlpha != nil && (*o.ForecastAlpha <= 0 || *o.ForecastAlpha >= 1) {
		return newConfigError("ForecastAlpha", "must be in (0,1)")
	}
	if o.ForecastBeta != nil && (*o.ForecastBeta <= 0 || *o.ForecastBeta >= 1) {
		return newConfigError("ForecastBeta", "must be in (0,1)")
	}
	for name, secs := range o.BaselineHalfLifeSeconds {
		if _, err := ParseWindowKind(name); err != nil {
			return newConfigError("BaselineHalfLifeSeconds", "unknown window "+name)
		}
		if secs <= 0 {
			return newConfigError("BaselineHalfLifeSeconds", fmt.Sprintf("half-life %gs for %s must be positive", secs, name))
		}
	}
	watching, attention, alert := cur.Ensemble.WatchingCount, cur.Ensemble.AttentionCount, cur.Ensemble.AlertCount
	if o.WatchingCount != nil {
		watching = *o.WatchingCount
	}
	if o.AttentionCount != nil {
		attention = *o.AttentionCount
	}
	if o.AlertCount != nil {
		alert = *o.AlertCount
	}
	if watching < 1 || attention < watching || alert < attention {
		return newConfigError("WatchingCount", fmt.Sprintf("agreement thresholds must satisfy 1 <= watching <= attention <= alert, got %d/%d/%d", watching, attention, alert))
	}
	if o.AutocorrelationCadence != nil && *o.AutocorrelationCadence < 1 {
		return newConfigError("AutocorrelationCadence", "must be at least 1")
	}
	if o.AutocorrelationBufferLen != nil && *o.AutocorrelationBufferLen < 16 {
		return newConfigError("AutocorrelationBufferLen", "must be at least 16")
	}
	return nil
}

// apply merges the options into a copy of cur. Callers must validate first.
func (o Options) apply(cur Config) Config {
	if len(o.ActivationThresholds) > 0 {
		merged := make(map[DetectorKind]float64, len(cur.Ensemble.ActivationThresholds))
		for k, v := range cur.Ensemble.ActivationThresholds {
			merged[k] = v
		}
		for name, th := range o.ActivationThresholds {
			kind, _ := ParseDetectorKind(name)
			merged[kind] = th
		}
		cur.Ensemble.ActivationThresholds = merged
	}
	if o.CusumK != nil {
		cur.Cusum.K = *o.CusumK
	}
	if o.CusumH != nil {
		cur.Cusum.H = *o.CusumH
	}
	if o.ForecastAlpha != nil {
		cur.Forecast.Alpha = *o.ForecastAlpha
	}
	if o.ForecastBeta != nil {
		cur.Forecast.Beta = *o.ForecastBeta
	}
	if len(o.BaselineHalfLifeSeconds) > 0 {
		merged := make(map[WindowKind]time.Duration, len(cur.Baseline.HalfLives))
		for k, v := range cur.Baseline.HalfLives {
			merged[k] = v
		}
		for name, secs := range o.BaselineHalfLifeSeconds {
			window, _ := ParseWindowKind(name)
			merged[window] = time.Duration(secs * float64(time.Second))
		}
		cur.Baseline.HalfLives = merged
	}
	if o.WatchingCount != nil {
		cur.Ensemble.WatchingCount = *o.WatchingCount
	}
	if o.AttentionCount != nil {
		cur.Ensemble.AttentionCount = *o.AttentionCount
	}
	if o.AlertCount != nil {
		cur.Ensemble.AlertCount = *o.AlertCount
	}
	if o.AutocorrelationCadence != nil {
		cur.Autocorrelation.Cadence = *o.AutocorrelationCadence
	}
	if o.AutocorrelationBufferLen != nil {
		cur.Autocorrelation.BufferLen = *o.AutocorrelationBufferLen
	}
	return cur
}

// LoadOptionsFile reads engine options from a YAML file.
func LoadOptionsFile(path string) (Options, error) {
	var opts Options
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read options file: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse options file: %w", err)
	}
	return opts, nil
}

// SaveOptionsFile writes engine options to a YAML file.
func SaveOptionsFile(path string, opts Options) error {
	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write options file: %w", err)
	}
	return nil
}
