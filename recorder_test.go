package radwatch

import (
	"math"
	"testing"
)

func TestSessionRecorder_RecordAndReplay(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewSessionRecorder(DefaultRecorderConfig(dir))
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}

	live, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	defer live.Close()

	ts := int64(1_000_000)
	for i := 0; i < 200; i++ {
		value := 1.0 + 0.2*math.Sin(float64(i)/5)
		if err := live.AddReading(MetricDoseRate, value, ts); err != nil {
			t.Fatalf("live ingest: %v", err)
		}
		if err := rec.Record(MetricDoseRate, value, ts); err != nil {
			t.Fatalf("record: %v", err)
		}
		ts += 1000
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close recorder: %v", err)
	}

	segments := rec.Segments()
	if len(segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(segments))
	}

	// The replayed engine must land in the identical state.
	replayEngine, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("create replay engine: %v", err)
	}
	defer replayEngine.Close()

	replayed, skipped, err := ReplaySession(segments[0], replayEngine)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != 200 || skipped != 0 {
		t.Fatalf("replayed %d skipped %d, want 200/0", replayed, skipped)
	}

	for _, window := range Windows() {
		got := replayEngine.Snapshot(MetricDoseRate, window)
		want := live.Snapshot(MetricDoseRate, window)
		if got != want {
			t.Errorf("window %s: replayed snapshot %+v != live %+v", window, got, want)
		}
	}
	if len(replayEngine.VerdictHistory(MetricDoseRate)) != len(live.VerdictHistory(MetricDoseRate)) {
		t.Error("replayed verdict history length differs from live")
	}
}

func TestSessionRecorder_RotatesSegments(t *testing.T) {
	cfg := DefaultRecorderConfig(t.TempDir())
	cfg.MaxSegmentReadings = 5
	rec, err := NewSessionRecorder(cfg)
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}

	ts := int64(1000)
	for i := 0; i < 12; i++ {
		if err := rec.Record(MetricCountRate, float64(i), ts); err != nil {
			t.Fatalf("record: %v", err)
		}
		ts += 1000
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	segments := rec.Segments()
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3 (5+5+2 readings)", len(segments))
	}

	// All readings survive across the rotation.
	total := 0
	for _, seg := range segments {
		engine, err := New(DefaultConfig())
		if err != nil {
			t.Fatalf("create engine: %v", err)
		}
		replayed, skipped, err := ReplaySession(seg, engine)
		if err != nil {
			t.Fatalf("replay %s: %v", seg, err)
		}
		total += replayed + skipped
		engine.Close()
	}
	if total != 12 {
		t.Errorf("total readings across segments = %d, want 12", total)
	}
}

func TestReplaySession_SkipsRejectedReadings(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewSessionRecorder(DefaultRecorderConfig(dir))
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := rec.Record(MetricDoseRate, 1.0, int64(1000+i*1000)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	seg := rec.Segments()[0]

	engine, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	defer engine.Close()

	if _, _, err := ReplaySession(seg, engine); err != nil {
		t.Fatalf("first replay: %v", err)
	}

	// A second pass duplicates every timestamp; all are skipped, none abort.
	replayed, skipped, err := ReplaySession(seg, engine)
	if err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if replayed != 0 || skipped != 10 {
		t.Errorf("second replay = %d replayed %d skipped, want 0/10", replayed, skipped)
	}
}

func TestSessionRecorder_VerdictLinesAreAnnotationsOnly(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewSessionRecorder(DefaultRecorderConfig(dir))
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}

	for i := 0; i < 5; i++ {
		ts := int64(1000 + i*1000)
		if err := rec.Record(MetricDoseRate, 1.0, ts); err != nil {
			t.Fatalf("record: %v", err)
		}
		if err := rec.RecordVerdict(EnsembleVerdict{Metric: MetricDoseRate, TimestampMs: ts}); err != nil {
			t.Fatalf("record verdict: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	engine, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	defer engine.Close()

	// Verdicts regenerate during replay; only reading lines are fed back.
	replayed, skipped, err := ReplaySession(rec.Segments()[0], engine)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed != 5 || skipped != 0 {
		t.Errorf("replayed %d skipped %d, want 5/0", replayed, skipped)
	}
}

func TestSessionRecorder_ClosedRejectsWrites(t *testing.T) {
	rec, err := NewSessionRecorder(DefaultRecorderConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("create recorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rec.Record(MetricDoseRate, 1.0, 1000); err == nil {
		t.Fatal("record after close should fail")
	}
}
