package orchestrator

import (
	"testing"
	"time"

	"github.com/AaronLay10/ARTutor/internal/scene"
	"github.com/AaronLay10/ARTutor/internal/storage/postgres"
)

func row(t0 time.Time, sec int, sid, event string, fields map[string]interface{}) postgres.EventRow {
	r := postgres.EventRow{Timestamp: t0.Add(time.Duration(sec) * time.Second), Event: event, Fields: fields}
	if sid != "" {
		r.SessionID = &sid
	}
	return r
}

func TestLoadHistoryNilClient(t *testing.T) {
	recs, count, err := LoadHistory(nil, 100)
	if err != nil {
		t.Errorf("expected no error with nil client, got %v", err)
	}
	if recs != nil || count != 0 {
		t.Errorf("expected no history with nil client, got %d records, count %d", len(recs), count)
	}
}

func TestReplaySessions(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := []postgres.EventRow{
		row(t0, 0, "", "system.startup", nil),
		row(t0, 1, "s1", "session.started", map[string]interface{}{"model": "DNA Helix", "subject": "Biology"}),
		row(t0, 3, "s1", "mode.ar", nil),
		row(t0, 4, "s1", "marker.found", map[string]interface{}{"marker_id": "marker-hiro"}),
		row(t0, 5, "s1", "marker.lost", map[string]interface{}{"marker_id": "marker-hiro"}),
		row(t0, 6, "s1", "marker.found", map[string]interface{}{"marker_id": "marker-barcode"}),
		row(t0, 7, "s1", "session.reset", nil),
		row(t0, 8, "s2", "session.started", map[string]interface{}{"model": "Atom"}),
		row(t0, 16, "s2", "scene.timeout", nil),
		row(t0, 16, "s2", "mode.fallback", nil),
		row(t0, 20, "s3", "session.started", map[string]interface{}{"model": "Atom"}),
		row(t0, 21, "s3", "engine.failed", nil),
		row(t0, 21, "s3", "state.changed", map[string]interface{}{"from": "loading_engine", "to": "error"}),
	}

	recs := ReplaySessions(rows)
	if len(recs) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(recs))
	}
	if recs[0].SessionID != "s3" || recs[2].SessionID != "s1" {
		t.Errorf("expected newest first, got %s..%s", recs[0].SessionID, recs[2].SessionID)
	}

	s1 := recs[2]
	if s1.ModelKey != "DNA Helix" || s1.Subject != "Biology" {
		t.Errorf("s1 identity = %q/%q", s1.ModelKey, s1.Subject)
	}
	if s1.Mode != scene.ModeAR {
		t.Errorf("s1 mode = %q, want ar", s1.Mode)
	}
	if s1.MarkersFound != 2 {
		t.Errorf("s1 markers found = %d, want 2", s1.MarkersFound)
	}
	if s1.EndedAt == nil || !s1.EndedAt.Equal(t0.Add(7*time.Second)) {
		t.Errorf("s1 ended at %v", s1.EndedAt)
	}

	s2 := recs[1]
	if s2.Mode != scene.ModeFallback || s2.FallbackCause != "scene.timeout" {
		t.Errorf("s2 = %+v, want fallback after timeout", s2)
	}
	if s2.EndedAt != nil {
		t.Error("s2 has not ended")
	}

	if !recs[0].Failed {
		t.Error("s3 should be marked failed")
	}
}

func TestReplaySessionsSkipsOrphanEvents(t *testing.T) {
	t0 := time.Now()
	rows := []postgres.EventRow{
		row(t0, 0, "old", "mode.ar", nil),
		row(t0, 1, "old", "session.reset", nil),
	}
	if recs := ReplaySessions(rows); len(recs) != 0 {
		t.Errorf("sessions started outside the window should be skipped, got %+v", recs)
	}
}
