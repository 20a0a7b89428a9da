// Package radwatch provides an embeddable statistical intelligence engine
// for streaming radiological measurements.
//
// Radwatch turns a raw feed of dose-rate and count-rate readings (roughly
// one per second) into adaptive baselines, a bank of anomaly detectors,
// short-horizon forecasts, and a single graded verdict per reading.
//
// # Basic Usage
//
// Create an engine with default configuration:
//
//	engine, err := radwatch.New(radwatch.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
// Feed readings as they arrive:
//
//	err := engine.AddReading(radwatch.MetricDoseRate, 0.12, time.Now().UnixMilli())
//
// Query state from any goroutine:
//
//	stats := engine.Snapshot(radwatch.MetricDoseRate, radwatch.Window5m)
//	forecast, err := engine.Forecast(radwatch.MetricDoseRate, 60)
//	verdict, ok := engine.LastVerdict(radwatch.MetricDoseRate)
//
// # Features
//
// Statistical Core:
//   - EWMA baselines over 1m, 5m, 60m, and adaptive windows
//   - Adaptive half-life that tightens during regime shifts
//   - Z-score, rate-of-change, CUSUM, Bayesian changepoint,
//     moving-average crossover, and autocorrelation detectors
//   - Holt double-exponential forecasting with threshold-crossing
//     prediction
//   - Agreement-count ensemble voting (watching, attention, alert)
//   - Strict timestamp monotonicity and data-gap handling
//
// Integrations:
//   - WebSocket verdict streaming for real-time subscribers
//   - Snappy-compressed session recording with deterministic replay
//   - S3 segment archival for off-device review
//   - SQLite-backed persistence of tuned engine options
//   - Prometheus instrumentation of ingestion and verdicts
//
// # Configuration
//
// Use [Config] to customize behavior:
//
//	cfg := radwatch.DefaultConfig()
//	cfg.Cusum.K = 0.75
//	cfg.Ensemble.AlertCount = 4
//
// Running engines are retuned at runtime with [Engine.Configure] and
// [Options]; invalid options are rejected in full and the previous
// configuration is retained.
package radwatch
