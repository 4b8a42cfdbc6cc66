package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AaronLay10/ARTutor/internal/storage/postgres"
)

var buffer = NewRingBuffer(256)

var totalEmitted atomic.Int64

// Persister stores events durably. postgres.Client is the production one.
type Persister interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, sessionID string) error
}

var (
	pgClient      *postgres.Client
	persister     Persister
	pgMu          sync.RWMutex
	pgErrorLogged bool
)

const persistQueueSize = 1024

type persistJob struct {
	p  Persister
	ts time.Time
	e  Event
}

// Events are appended by a single writer so Emit never waits on storage.
var (
	persistQueue   = make(chan persistJob, persistQueueSize)
	persistOnce    sync.Once
	persistPending atomic.Int64
	persistDropped atomic.Int64
)

// SetPostgresClient sets the Postgres client for event persistence.
func SetPostgresClient(client *postgres.Client) {
	pgMu.Lock()
	pgClient = client
	persister = nil
	if client != nil {
		persister = client
	}
	pgErrorLogged = false
	pgMu.Unlock()
}

// SetPersister replaces the event store. nil disables persistence.
func SetPersister(p Persister) {
	pgMu.Lock()
	persister = p
	pgErrorLogged = false
	pgMu.Unlock()
}

// GetPostgresClient returns the current Postgres client (for API queries).
func GetPostgresClient() *postgres.Client {
	pgMu.RLock()
	defer pgMu.RUnlock()
	return pgClient
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// SessionID returns the session_id field, if any.
func (e Event) SessionID() string {
	if s, ok := e.Fields["session_id"].(string); ok {
		return s
	}
	return ""
}

// Emit validates, buffers, broadcasts and persists an event.
// It returns the JSON encoding of the event.
func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	totalEmitted.Add(1)
	broadcast(e)

	pgMu.RLock()
	p := persister
	pgMu.RUnlock()

	if p != nil {
		enqueuePersist(persistJob{p: p, ts: ts, e: e})
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

func enqueuePersist(job persistJob) {
	persistOnce.Do(func() { go persistLoop() })

	persistPending.Add(1)
	select {
	case persistQueue <- job:
	default:
		persistPending.Add(-1)
		persistDropped.Add(1)
	}
}

func persistLoop() {
	for job := range persistQueue {
		e := job.e
		if err := job.p.Append(job.ts, e.Level, e.Name, e.Message, e.Fields, e.SessionID()); err != nil {
			reportPersistError(err)
		}
		persistPending.Add(-1)
	}
}

// FlushPersisted waits up to timeout for queued events to reach the store.
// It reports whether the queue drained.
func FlushPersisted(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for persistPending.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}

// PersistDroppedCount returns how many events were not stored because the
// persist queue was full.
func PersistDroppedCount() int64 {
	return persistDropped.Load()
}

// reportPersistError records the first Postgres failure directly in the ring
// buffer. It must not call Emit, which would append to Postgres again.
func reportPersistError(err error) {
	pgMu.Lock()
	if pgErrorLogged {
		pgMu.Unlock()
		return
	}
	pgErrorLogged = true
	pgMu.Unlock()

	buffer.Add(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "postgres append failed",
		Fields: map[string]interface{}{
			"error": err.Error(),
		},
	})
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// RecentEvents returns the last n buffered events, oldest first.
// n <= 0 returns all of them.
func RecentEvents(n int) []Event {
	return buffer.Last(n)
}

// SessionEvents returns the buffered events of one session.
func SessionEvents(id string) []Event {
	return buffer.Session(id)
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return totalEmitted.Load()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
