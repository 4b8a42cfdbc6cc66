package orchestrator

import (
	"time"

	"github.com/AaronLay10/ARTutor/internal/scene"
	"github.com/AaronLay10/ARTutor/internal/storage/postgres"
)

// DefaultHistoryLimit is the default number of events replayed for history.
const DefaultHistoryLimit = 1000

// SessionRecord is one session reconstructed from persisted events.
type SessionRecord struct {
	SessionID     string     `json:"session_id"`
	ModelKey      string     `json:"model"`
	Subject       string     `json:"subject,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Mode          scene.Mode `json:"mode,omitempty"`
	FallbackCause string     `json:"fallback_cause,omitempty"`
	Failed        bool       `json:"failed"`
	MarkersFound  int        `json:"markers_found"`
}

// LoadHistory loads events from Postgres and replays them into session
// records, newest first. Returns nil if client is nil.
func LoadHistory(client *postgres.Client, limit int) ([]SessionRecord, int, error) {
	if client == nil {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := client.Query(limit)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	// Query returns DESC
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return ReplaySessions(rows), len(rows), nil
}

// ReplaySessions folds chronologically ordered events into one record per
// session, newest first. Events for sessions whose start fell outside the
// window are ignored.
func ReplaySessions(rows []postgres.EventRow) []SessionRecord {
	byID := make(map[string]*SessionRecord)
	var order []string

	for _, row := range rows {
		if row.SessionID == nil || *row.SessionID == "" {
			continue
		}
		sid := *row.SessionID

		if row.Event == "session.started" {
			rec := &SessionRecord{SessionID: sid, StartedAt: row.Timestamp}
			rec.ModelKey, _ = row.Fields["model"].(string)
			rec.Subject, _ = row.Fields["subject"].(string)
			if _, seen := byID[sid]; !seen {
				order = append(order, sid)
			}
			byID[sid] = rec
			continue
		}

		rec, ok := byID[sid]
		if !ok {
			continue
		}
		switch row.Event {
		case "mode.ar":
			rec.Mode = scene.ModeAR
		case "mode.fallback":
			rec.Mode = scene.ModeFallback
		case "scene.timeout", "scene.init_failed":
			rec.FallbackCause = row.Event
		case "engine.failed":
			rec.Failed = true
		case "state.changed":
			if to, _ := row.Fields["to"].(string); to == string(StateError) {
				rec.Failed = true
			}
		case "marker.found":
			rec.MarkersFound++
		case "session.reset", "session.ended":
			if rec.EndedAt == nil {
				ts := row.Timestamp
				rec.EndedAt = &ts
			}
		}
	}

	out := make([]SessionRecord, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		out = append(out, *byID[order[i]])
	}
	return out
}
