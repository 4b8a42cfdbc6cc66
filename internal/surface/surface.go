// Package surface defines the rendering surface the orchestrator drives.
package surface

import (
	"errors"
	"sync"
	"time"

	"github.com/AaronLay10/ARTutor/internal/scene"
)

var (
	// ErrSceneNotFound means the injected scene element cannot be queried.
	ErrSceneNotFound = errors.New("scene element not found")
	// ErrSceneLoading means the scene exists but its markers are not queryable yet.
	ErrSceneLoading = errors.New("scene markers not ready")
	// ErrNoScene is returned when nothing has been injected.
	ErrNoScene = errors.New("no scene injected")
)

// MarkerEventType is a marker lifecycle transition.
type MarkerEventType string

const (
	MarkerFound MarkerEventType = "found"
	MarkerLost  MarkerEventType = "lost"
)

// MarkerEvent is a transient marker lifecycle notification.
type MarkerEvent struct {
	MarkerID  string          `json:"marker_id"`
	Type      MarkerEventType `json:"event"`
	Timestamp time.Time       `json:"ts"`
}

// Marker is a live marker element of an injected AR scene.
type Marker interface {
	ID() string
	// On registers fn for events of type t and returns a detach func.
	On(t MarkerEventType, fn func(MarkerEvent)) (off func())
}

// Surface is the exclusive rendering resource. Only the orchestrator writes to it.
type Surface interface {
	// Inject replaces the surface content with desc.
	Inject(desc scene.Description) error
	// Markers returns the live marker elements of the injected scene.
	// It returns ErrSceneNotFound or ErrSceneLoading when not queryable.
	Markers() ([]Marker, error)
	// Ready records the scene-ready signal. When no element report has
	// arrived yet, the anchors of the injected AR scene become queryable.
	Ready()
	// Clear removes all content.
	Clear()
}

// MarkerSet tracks marker listeners and dispatches reported events.
// Surface implementations embed it to share listener bookkeeping.
type MarkerSet struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[MarkerEventType]map[int]func(MarkerEvent)
}

// NewMarkerSet creates an empty set.
func NewMarkerSet() *MarkerSet {
	return &MarkerSet{
		listeners: make(map[string]map[MarkerEventType]map[int]func(MarkerEvent)),
	}
}

// Marker returns a handle for id bound to this set.
func (s *MarkerSet) Marker(id string) Marker {
	return &marker{id: id, set: s}
}

// Dispatch delivers e to the listeners registered for its marker and type.
// Listeners run outside the set's lock.
func (s *MarkerSet) Dispatch(e MarkerEvent) int {
	s.mu.Lock()
	fns := make([]func(MarkerEvent), 0, len(s.listeners[e.MarkerID][e.Type]))
	for _, fn := range s.listeners[e.MarkerID][e.Type] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
	return len(fns)
}

// ListenerCount returns the number of listeners attached to id.
func (s *MarkerSet) ListenerCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, byID := range s.listeners[id] {
		n += len(byID)
	}
	return n
}

// Reset drops every listener.
func (s *MarkerSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = make(map[string]map[MarkerEventType]map[int]func(MarkerEvent))
}

func (s *MarkerSet) add(id string, t MarkerEventType, fn func(MarkerEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	byType, ok := s.listeners[id]
	if !ok {
		byType = make(map[MarkerEventType]map[int]func(MarkerEvent))
		s.listeners[id] = byType
	}
	fns, ok := byType[t]
	if !ok {
		fns = make(map[int]func(MarkerEvent))
		byType[t] = fns
	}
	s.nextID++
	key := s.nextID
	fns[key] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if byType, ok := s.listeners[id]; ok {
			delete(byType[t], key)
		}
	}
}

type marker struct {
	id  string
	set *MarkerSet
}

func (m *marker) ID() string { return m.id }

func (m *marker) On(t MarkerEventType, fn func(MarkerEvent)) func() {
	return m.set.add(m.id, t, fn)
}
