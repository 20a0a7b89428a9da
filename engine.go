package radwatch

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine is the single ingestion and query surface of the statistical
// intelligence core. Each reading fans out, in a fixed order, to the
// baseline manager, the forecaster, and the detector bank, and the
// resulting signals are combined into one graded verdict.
//
// Ingestion (AddReading) is serialized; query methods may be called
// concurrently from other goroutines and return snapshots, never live
// references. Engines are independently constructible: one per device,
// no process-wide state.
type Engine struct {
	mu     sync.RWMutex
	config Config
	logger *zap.Logger
	instr  *Instrumentation
	closed bool

	baselines *BaselineManager
	forecasts *ForecastEngine
	ensemble  *EnsembleAggregator

	// One detector bank per metric, created on first ingest. Detector state
	// belongs to a single metric's stream; sharing a bank would let one
	// metric's readings bleed into the other's accumulators.
	banks map[Metric]*detectorBank

	lastTimestamp map[Metric]int64
	lastSignals   map[Metric][]DetectorSignal
}

// detectorBank holds one metric's detectors in fixed evaluation order,
// plus typed handles for the detectors that need config swaps or gap
// resets.
type detectorBank struct {
	detectors []Detector
	cusum     *CusumDetector
	bayesian  *BayesianChangepointDetector
}

func newDetectorBank(config Config) *detectorBank {
	cusum := NewCusumDetector(config.Cusum)
	bayesian := NewBayesianChangepointDetector(config.Bayesian)
	return &detectorBank{
		detectors: []Detector{
			NewZScoreDetector(config.ZScore),
			NewRateOfChangeDetector(config.RateOfChange),
			cusum,
			bayesian,
			NewMovingAverageCrossoverDetector(config.Crossover),
			NewAutocorrelationDetector(config.Autocorrelation),
		},
		cusum:    cusum,
		bayesian: bayesian,
	}
}

// bank returns the metric's detector bank, creating it on first use.
// Callers hold e.mu.
func (e *Engine) bank(metric Metric) *detectorBank {
	b, ok := e.banks[metric]
	if !ok {
		b = newDetectorBank(e.config)
		e.banks[metric] = b
	}
	return b
}

// New creates an engine. Zero-valued config fields are replaced with
// defaults; cross-field constraints are validated.
func New(config Config) (*Engine, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:        config,
		logger:        config.Logger,
		instr:         config.Instrumentation,
		baselines:     NewBaselineManager(config.Baseline, config.Logger),
		forecasts:     NewForecastEngine(config.Forecast),
		ensemble:      NewEnsembleAggregator(config.Ensemble),
		banks:         make(map[Metric]*detectorBank),
		lastTimestamp: make(map[Metric]int64),
		lastSignals:   make(map[Metric][]DetectorSignal),
	}
	return e, nil
}

// AddReading ingests one reading. Rejected readings leave all state
// exactly as it was before the call.
func (e *Engine) AddReading(metric Metric, value float64, timestampMs int64) error {
	start := time.Now()
	r := Reading{Metric: metric, Value: value, TimestampMs: timestampMs}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return newIngestError(IngestErrorTypeClosed, "engine closed", r, ErrEngineClosed)
	}
	if err := r.Validate(); err != nil {
		e.instr.observeRejected(metric, "invalid")
		e.logger.Warn("reading rejected", zap.String("metric", metric.String()), zap.Error(err))
		return err
	}

	last, seen := e.lastTimestamp[metric]
	if seen && timestampMs <= last {
		e.instr.observeRejected(metric, "non_monotonic")
		e.logger.Warn("reading rejected: timestamp not after last accepted",
			zap.String("metric", metric.String()),
			zap.Int64("timestamp_ms", timestampMs),
			zap.Int64("last_ms", last))
		return newIngestError(IngestErrorTypeNonMonotonic,
			"timestamp not after last accepted reading", r, ErrNonMonotonicTimestamp)
	}

	if seen {
		gapLimit := time.Duration(e.config.GapFactor * float64(e.config.ExpectedInterval))
		if time.Duration(timestampMs-last)*time.Millisecond > gapLimit {
			e.handleGap(metric, timestampMs-last)
		}
	}

	// Fixed fan-out order: baselines, forecast, detectors, vote.
	for _, window := range Windows() {
		e.baselines.Update(metric, window, value, timestampMs)
	}
	e.forecasts.Observe(metric, value, timestampMs)

	adaptive := e.baselines.Snapshot(metric, WindowAdaptive)
	bank := e.bank(metric)
	signals := make([]DetectorSignal, 0, len(bank.detectors))
	for _, d := range bank.detectors {
		signals = append(signals, d.Evaluate(r, adaptive))
	}

	verdict := e.ensemble.Vote(metric, timestampMs, signals)
	e.lastSignals[metric] = signals
	e.lastTimestamp[metric] = timestampMs

	e.instr.observeAccepted(metric, time.Since(start))
	e.instr.observeVerdict(verdict)
	if verdict.Level > LevelWatching {
		e.logger.Info("verdict",
			zap.String("metric", metric.String()),
			zap.String("level", verdict.Level.String()),
			zap.Int("agreeing", len(verdict.AgreeingDetectors)),
			zap.Float64("confidence", verdict.CombinedConfidence))
	}
	return nil
}

// handleGap treats an oversized gap between readings as a sensor
// discontinuity: accumulated change state cannot be attributed across an
// outage and is dropped, while the slow-moving baseline and forecast
// models survive but are flagged stale. Only the gapped metric's state is
// touched; the other metric's stream is unaffected.
func (e *Engine) handleGap(metric Metric, gapMs int64) {
	bank := e.bank(metric)
	bank.cusum.Reset()
	bank.bayesian.Reset()
	e.baselines.MarkStale(metric, e.config.StaleRecoveryReadings)
	e.forecasts.MarkStale(metric, e.config.StaleRecoveryReadings)
	e.instr.observeGapReset()
	e.logger.Info("data gap: change-detection state reset",
		zap.String("metric", metric.String()),
		zap.Duration("gap", time.Duration(gapMs)*time.Millisecond))
}

// Snapshot returns the baseline estimate for a (metric, window) pair.
func (e *Engine) Snapshot(metric Metric, window WindowKind) BaselineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.baselines.Snapshot(metric, window)
}

// Forecast extrapolates the metric's model horizonSeconds ahead.
func (e *Engine) Forecast(metric Metric, horizonSeconds float64) (ForecastResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !metric.Valid() {
		return ForecastResult{}, ErrUnknownMetric
	}
	return e.forecasts.Forecast(metric, horizonSeconds)
}

// PredictedThresholdCrossing returns the number of seconds until the
// fitted trend line reaches threshold, or false if it never does.
func (e *Engine) PredictedThresholdCrossing(metric Metric, threshold float64) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.forecasts.ThresholdCrossing(metric, threshold)
}

// LastVerdict returns the most recent ensemble verdict for the metric.
func (e *Engine) LastVerdict(metric Metric) (EnsembleVerdict, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ensemble.Last(metric)
}

// VerdictHistory returns the bounded verdict ring for the metric, oldest
// first.
func (e *Engine) VerdictHistory(metric Metric) []EnsembleVerdict {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ensemble.History(metric)
}

// LastSignals returns the detector signals from the most recent accepted
// reading for the metric.
func (e *Engine) LastSignals(metric Metric) []DetectorSignal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sigs := e.lastSignals[metric]
	out := make([]DetectorSignal, len(sigs))
	copy(out, sigs)
	return out
}

// Configure applies recognized options atomically. Invalid options are
// rejected in full and the previous configuration is retained; valid
// options take effect on the next AddReading and never rewrite past
// snapshots.
func (e *Engine) Configure(opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if err := opts.validate(e.config); err != nil {
		e.logger.Warn("configuration rejected", zap.Error(err))
		return err
	}

	e.config = opts.apply(e.config)
	e.baselines.setConfig(e.config.Baseline)
	e.forecasts.setConfig(e.config.Forecast)
	e.ensemble.setConfig(e.config.Ensemble)
	for _, bank := range e.banks {
		bank.cusum.setConfig(e.config.Cusum)
		if opts.AutocorrelationCadence != nil || opts.AutocorrelationBufferLen != nil {
			// Buffer geometry changed; rebuild the periodicity detector.
			for i, d := range bank.detectors {
				if d.Kind() == DetectorAutocorrelation {
					bank.detectors[i] = NewAutocorrelationDetector(e.config.Autocorrelation)
				}
			}
		}
	}
	e.logger.Info("engine reconfigured")
	return nil
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// ResetBaseline reinitializes the (metric, window) baseline estimator on
// explicit external request. The next reading seeds it afresh.
func (e *Engine) ResetBaseline(metric Metric, window WindowKind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if !metric.Valid() {
		return ErrUnknownMetric
	}
	if !window.Valid() {
		return newConfigError("window", "unknown baseline window")
	}
	e.baselines.Reset(metric, window)
	return nil
}

// Close marks the engine closed. There is nothing asynchronous to stop;
// all state is owned by the instance and bounded, so closing simply makes
// further ingestion fail fast.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
