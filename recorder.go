package radwatch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"go.uber.org/zap"
)

// RecorderConfig configures session recording.
type RecorderConfig struct {
	// Dir is the directory segment files are written to.
	Dir string

	// MaxSegmentReadings rotates the segment file after this many readings.
	MaxSegmentReadings int

	// Logger for rotation events. Defaults to zap.NewNop().
	Logger *zap.Logger
}

// DefaultRecorderConfig returns default recorder configuration.
func DefaultRecorderConfig(dir string) RecorderConfig {
	return RecorderConfig{
		Dir:                dir,
		MaxSegmentReadings: 100000,
	}
}

// recordedReading is the reading payload of a segment line.
type recordedReading struct {
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// segmentLine is the on-disk format: one JSON object per line, in arrival
// order, inside a snappy-framed stream. Exactly one field is set. Verdict
// lines are informational for offline review; replay regenerates verdicts
// from the readings alone.
type segmentLine struct {
	Reading *recordedReading `json:"reading,omitempty"`
	Verdict *EnsembleVerdict `json:"verdict,omitempty"`
}

// SessionRecorder appends every reading it is given to snappy-compressed
// segment files. Because the engine is deterministic, a recorded session
// replayed through a fresh engine reproduces every verdict and snapshot,
// which makes segments useful both for incident review and for regression
// capture.
type SessionRecorder struct {
	config RecorderConfig
	logger *zap.Logger

	mu       sync.Mutex
	file     *os.File
	snap     *snappy.Writer
	buf      *bufio.Writer
	count    int
	segments []string
	closed   bool
}

// NewSessionRecorder creates a recorder and opens its first segment.
func NewSessionRecorder(config RecorderConfig) (*SessionRecorder, error) {
	if config.Dir == "" {
		return nil, newConfigError("dir", "recorder directory required")
	}
	if config.MaxSegmentReadings <= 0 {
		config.MaxSegmentReadings = 100000
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recorder dir: %w", err)
	}

	r := &SessionRecorder{config: config, logger: config.Logger}
	if err := r.openSegment(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SessionRecorder) openSegment() error {
	name := filepath.Join(r.config.Dir,
		fmt.Sprintf("session-%d.jsonl.snappy", time.Now().UnixNano()))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("open segment: %w", err)
	}
	r.file = f
	r.buf = bufio.NewWriter(f)
	r.snap = snappy.NewBufferedWriter(r.buf)
	r.count = 0
	r.segments = append(r.segments, name)
	return nil
}

func (r *SessionRecorder) closeSegment() error {
	if r.snap == nil {
		return nil
	}
	if err := r.snap.Close(); err != nil {
		return err
	}
	if err := r.buf.Flush(); err != nil {
		return err
	}
	err := r.file.Close()
	r.snap = nil
	r.buf = nil
	r.file = nil
	return err
}

// Record appends one reading to the current segment, rotating if full.
func (r *SessionRecorder) Record(metric Metric, value float64, timestampMs int64) error {
	return r.append(segmentLine{Reading: &recordedReading{
		Metric:      metric.String(),
		Value:       value,
		TimestampMs: timestampMs,
	}})
}

// RecordVerdict appends a verdict line for offline review. Verdict lines do
// not count toward segment rotation.
func (r *SessionRecorder) RecordVerdict(v EnsembleVerdict) error {
	return r.append(segmentLine{Verdict: &v})
}

func (r *SessionRecorder) append(line segmentLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrEngineClosed
	}

	data, err := json.Marshal(line)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := r.snap.Write(data); err != nil {
		return fmt.Errorf("write segment: %w", err)
	}

	if line.Reading != nil {
		r.count++
	}
	if r.count >= r.config.MaxSegmentReadings {
		if err := r.closeSegment(); err != nil {
			return err
		}
		if err := r.openSegment(); err != nil {
			return err
		}
		r.logger.Info("recorder segment rotated",
			zap.String("segment", r.segments[len(r.segments)-1]))
	}
	return nil
}

// Segments returns the paths of all segments written so far, oldest first.
// The last entry is the active segment until Close.
func (r *SessionRecorder) Segments() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.segments))
	copy(out, r.segments)
	return out
}

// Close flushes and closes the active segment.
func (r *SessionRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.closeSegment()
}

// ReplaySession feeds a recorded segment through an engine in arrival
// order. Readings the engine rejects (for example a duplicate timestamp
// recorded across a restart) are skipped and counted rather than aborting
// the replay; any other error stops it.
func ReplaySession(path string, engine *Engine) (replayed, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open segment: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(snappy.NewReader(bufio.NewReader(f)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line segmentLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return replayed, skipped, fmt.Errorf("decode segment line: %w", err)
		}
		if line.Reading == nil {
			// Verdict lines replay as a side effect of the readings.
			continue
		}
		rec := line.Reading
		metric, ok := parseMetric(rec.Metric)
		if !ok {
			skipped++
			continue
		}
		if err := engine.AddReading(metric, rec.Value, rec.TimestampMs); err != nil {
			var ingestErr *IngestError
			if errors.As(err, &ingestErr) {
				skipped++
				continue
			}
			return replayed, skipped, err
		}
		replayed++
	}
	if err := scanner.Err(); err != nil {
		return replayed, skipped, fmt.Errorf("read segment: %w", err)
	}
	return replayed, skipped, nil
}
