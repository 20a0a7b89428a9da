package radwatch

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// WindowKind identifies a baseline time-scale.
type WindowKind int

const (
	// Window1m is a fixed one-minute window.
	Window1m WindowKind = iota
	// Window5m is a fixed five-minute window.
	Window5m
	// Window60m is a fixed one-hour window.
	Window60m
	// WindowAdaptive is a window whose half-life adapts during regime changes.
	WindowAdaptive

	windowKindCount // sentinel, keep last
)

func (w WindowKind) String() string {
	switch w {
	case Window1m:
		return "1m"
	case Window5m:
		return "5m"
	case Window60m:
		return "60m"
	case WindowAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// Valid reports whether the window is one of the known kinds.
func (w WindowKind) Valid() bool {
	return w >= 0 && w < windowKindCount
}

// Windows returns all baseline windows in a fixed order.
func Windows() []WindowKind {
	return []WindowKind{Window1m, Window5m, Window60m, WindowAdaptive}
}

// ParseWindowKind parses the string form produced by WindowKind.String.
func ParseWindowKind(s string) (WindowKind, error) {
	for _, w := range Windows() {
		if w.String() == s {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown baseline window %q", s)
}

// BaselineStats is a snapshot of the learned "normal" for one
// (metric, window) pair. Query methods return copies; mutating a snapshot
// has no effect on the engine.
type BaselineStats struct {
	Metric       Metric     `json:"metric"`
	Window       WindowKind `json:"window"`
	Mean         float64    `json:"mean"`
	Variance     float64    `json:"variance"`
	SampleCount  uint64     `json:"sample_count"`
	LastUpdateMs int64      `json:"last_update_ms"`
	// Stale is set after a data discontinuity and cleared once enough fresh
	// readings have been observed.
	Stale bool `json:"stale"`
}

// StdDev returns the standard deviation, recomputed from the variance.
func (s BaselineStats) StdDev() float64 {
	if s.Variance <= 0 {
		return 0
	}
	return math.Sqrt(s.Variance)
}

// ZScore returns the z-score of value against this baseline. It is defined
// as 0 while fewer than two samples have been observed or the variance is
// degenerate, never NaN or infinity.
func (s BaselineStats) ZScore(value float64) float64 {
	if s.SampleCount < 2 {
		return 0
	}
	sd := s.StdDev()
	if sd < zScoreEpsilon {
		return 0
	}
	return (value - s.Mean) / sd
}

// zScoreEpsilon floors standard deviations to avoid division blow-up.
const zScoreEpsilon = 1e-6

// BaselineConfig configures the baseline estimators.
type BaselineConfig struct {
	// HalfLives maps each window to its EWMA half-life.
	HalfLives map[WindowKind]time.Duration

	// AdaptiveMinHalfLife is the shortened half-life used by the adaptive
	// window during a detected regime change.
	AdaptiveMinHalfLife time.Duration

	// AdaptiveTriggerSigma is the residual magnitude, in standard
	// deviations, that counts toward shortening the adaptive half-life.
	AdaptiveTriggerSigma float64

	// AdaptiveTriggerTicks is the number of consecutive large residuals
	// required before the adaptive half-life shortens.
	AdaptiveTriggerTicks int

	// AdaptiveRelaxTicks is the number of consecutive ordinary residuals
	// after which the adaptive half-life relaxes back to its base value.
	AdaptiveRelaxTicks int
}

// DefaultBaselineConfig returns default baseline configuration.
func DefaultBaselineConfig() BaselineConfig {
	return BaselineConfig{
		HalfLives: map[WindowKind]time.Duration{
			Window1m:       time.Minute,
			Window5m:       5 * time.Minute,
			Window60m:      time.Hour,
			WindowAdaptive: 2 * time.Minute,
		},
		AdaptiveMinHalfLife:  15 * time.Second,
		AdaptiveTriggerSigma: 3.0,
		AdaptiveTriggerTicks: 5,
		AdaptiveRelaxTicks:   30,
	}
}

func (c BaselineConfig) withDefaults() BaselineConfig {
	def := DefaultBaselineConfig()
	if len(c.HalfLives) == 0 {
		c.HalfLives = def.HalfLives
	} else {
		merged := make(map[WindowKind]time.Duration, len(def.HalfLives))
		for w, hl := range def.HalfLives {
			merged[w] = hl
		}
		for w, hl := range c.HalfLives {
			if hl > 0 {
				merged[w] = hl
			}
		}
		c.HalfLives = merged
	}
	if c.AdaptiveMinHalfLife <= 0 {
		c.AdaptiveMinHalfLife = def.AdaptiveMinHalfLife
	}
	if c.AdaptiveTriggerSigma <= 0 {
		c.AdaptiveTriggerSigma = def.AdaptiveTriggerSigma
	}
	if c.AdaptiveTriggerTicks <= 0 {
		c.AdaptiveTriggerTicks = def.AdaptiveTriggerTicks
	}
	if c.AdaptiveRelaxTicks <= 0 {
		c.AdaptiveRelaxTicks = def.AdaptiveRelaxTicks
	}
	return c
}

// baselineKey identifies one (metric, window) estimator.
type baselineKey struct {
	metric Metric
	window WindowKind
}

// baselineState is the mutable estimator behind one BaselineStats snapshot.
type baselineState struct {
	stats BaselineStats

	halfLife     time.Duration
	baseHalfLife time.Duration

	// Adaptive half-life bookkeeping. Only used for WindowAdaptive.
	hotStreak  int
	calmStreak int
	shortened  bool

	// staleCountdown counts fresh readings still needed to clear Stale.
	staleCountdown int
}

// BaselineManager maintains EWMA mean/variance estimates per metric and
// window. It is not safe for concurrent use; the engine serializes access.
type BaselineManager struct {
	config BaselineConfig
	logger *zap.Logger
	states map[baselineKey]*baselineState
}

// NewBaselineManager creates a baseline manager. Estimators are created
// lazily on first update.
func NewBaselineManager(config BaselineConfig, logger *zap.Logger) *BaselineManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BaselineManager{
		config: config.withDefaults(),
		logger: logger,
		states: make(map[baselineKey]*baselineState),
	}
}

// setConfig swaps the configuration for subsequent updates. Existing
// estimator state is retained; base half-lives are re-derived.
func (m *BaselineManager) setConfig(config BaselineConfig) {
	m.config = config.withDefaults()
	for key, st := range m.states {
		st.baseHalfLife = m.config.HalfLives[key.window]
		if !st.shortened {
			st.halfLife = st.baseHalfLife
		}
	}
}

// Update folds a reading into the (metric, window) estimator and returns
// the new snapshot.
func (m *BaselineManager) Update(metric Metric, window WindowKind, value float64, timestampMs int64) BaselineStats {
	key := baselineKey{metric: metric, window: window}
	st, ok := m.states[key]
	if !ok {
		st = &baselineState{
			stats: BaselineStats{
				Metric:      metric,
				Window:      window,
				Mean:        value,
				Variance:    0,
				SampleCount: 1,
			},
			halfLife:     m.config.HalfLives[window],
			baseHalfLife: m.config.HalfLives[window],
		}
		st.stats.LastUpdateMs = timestampMs
		m.states[key] = st
		return st.stats
	}

	dt := time.Duration(timestampMs-st.stats.LastUpdateMs) * time.Millisecond
	if dt <= 0 {
		dt = time.Millisecond
	}
	alpha := alphaFromHalfLife(dt, st.halfLife)

	diff := value - st.stats.Mean
	if window == WindowAdaptive {
		m.adaptHalfLife(st, diff)
	}

	st.stats.Mean += alpha * diff
	st.stats.Variance = (1 - alpha) * (st.stats.Variance + alpha*diff*diff)
	if st.stats.Variance < 0 {
		st.stats.Variance = 0
	}
	st.stats.SampleCount++
	st.stats.LastUpdateMs = timestampMs

	if st.stats.Stale {
		st.staleCountdown--
		if st.staleCountdown <= 0 {
			st.stats.Stale = false
		}
	}
	return st.stats
}

// adaptHalfLife shortens the adaptive half-life after a run of large
// residuals and relaxes it back after a run of ordinary ones.
func (m *BaselineManager) adaptHalfLife(st *baselineState, diff float64) {
	sd := st.stats.StdDev()
	large := sd > 0 && math.Abs(diff) > m.config.AdaptiveTriggerSigma*sd
	if large {
		st.hotStreak++
		st.calmStreak = 0
	} else {
		st.calmStreak++
		st.hotStreak = 0
	}

	if !st.shortened && st.hotStreak >= m.config.AdaptiveTriggerTicks {
		st.shortened = true
		st.halfLife = m.config.AdaptiveMinHalfLife
		m.logger.Debug("adaptive baseline half-life shortened",
			zap.String("metric", st.stats.Metric.String()),
			zap.Duration("half_life", st.halfLife))
	}
	if st.shortened && st.calmStreak >= m.config.AdaptiveRelaxTicks {
		st.shortened = false
		st.halfLife = st.baseHalfLife
		m.logger.Debug("adaptive baseline half-life relaxed",
			zap.String("metric", st.stats.Metric.String()),
			zap.Duration("half_life", st.halfLife))
	}
}

// Snapshot returns a read-only copy of the current estimate. A zero-count
// snapshot is returned when no reading has been observed yet.
func (m *BaselineManager) Snapshot(metric Metric, window WindowKind) BaselineStats {
	if st, ok := m.states[baselineKey{metric: metric, window: window}]; ok {
		return st.stats
	}
	return BaselineStats{Metric: metric, Window: window}
}

// Reset reinitializes the (metric, window) estimator. The next reading
// seeds a fresh mean/variance; the estimator itself is not destroyed.
func (m *BaselineManager) Reset(metric Metric, window WindowKind) {
	key := baselineKey{metric: metric, window: window}
	if _, ok := m.states[key]; ok {
		delete(m.states, key)
		m.logger.Info("baseline reset",
			zap.String("metric", metric.String()),
			zap.String("window", window.String()))
	}
}

// MarkStale flags every estimator of the metric as stale until
// recoveryReadings fresh readings have been folded in.
func (m *BaselineManager) MarkStale(metric Metric, recoveryReadings int) {
	for _, window := range Windows() {
		if st, ok := m.states[baselineKey{metric: metric, window: window}]; ok {
			st.stats.Stale = true
			st.staleCountdown = recoveryReadings
		}
	}
}

// alphaFromHalfLife converts a half-life into the EWMA blend factor for an
// elapsed interval: after exactly one half-life the old estimate retains
// half its weight.
func alphaFromHalfLife(elapsed, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 1
	}
	return 1 - math.Exp2(-float64(elapsed)/float64(halfLife))
}
