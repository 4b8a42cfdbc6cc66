package surface

import (
	"sync"
	"time"

	"github.com/AaronLay10/ARTutor/internal/scene"
)

// Memory is a Surface held in process. A remote client pulls the injected
// scene and reports back which elements became queryable.
type Memory struct {
	*MarkerSet

	mu        sync.RWMutex
	desc      scene.Description
	version   int
	sceneSeen bool
	markerIDs []string
	reported  bool
	injectErr error
}

// NewMemory returns an empty surface.
func NewMemory() *Memory {
	return &Memory{MarkerSet: NewMarkerSet()}
}

// Inject replaces the content. Element reports from the previous scene are discarded.
func (m *Memory) Inject(desc scene.Description) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.injectErr != nil {
		return m.injectErr
	}
	m.desc = desc
	m.version++
	m.sceneSeen = false
	m.markerIDs = nil
	m.reported = false
	return nil
}

// Markers returns handles for the reported marker elements.
func (m *Memory) Markers() ([]Marker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.desc == nil {
		return nil, ErrNoScene
	}
	if !m.reported {
		return nil, ErrSceneLoading
	}
	if !m.sceneSeen {
		return nil, ErrSceneNotFound
	}
	out := make([]Marker, 0, len(m.markerIDs))
	for _, id := range m.markerIDs {
		out = append(out, m.MarkerSet.Marker(id))
	}
	return out, nil
}

// Clear removes the scene and all marker listeners.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.desc = nil
	m.version++
	m.sceneSeen = false
	m.markerIDs = nil
	m.reported = false
	m.mu.Unlock()
	m.MarkerSet.Reset()
}

// Scene returns the injected description and its version, or nil when empty.
func (m *Memory) Scene() (scene.Description, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.desc, m.version
}

// Empty reports whether the surface holds no content.
func (m *Memory) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.desc == nil
}

// Report records which elements the client found for the scene at version.
// sceneFound=false means the scene element itself is missing. Version 0
// matches any scene. It returns false when the report is stale.
func (m *Memory) Report(version int, sceneFound bool, markerIDs []string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.desc == nil || (version != 0 && version != m.version) {
		return false
	}
	m.reported = true
	m.sceneSeen = sceneFound
	m.markerIDs = append([]string(nil), markerIDs...)
	return true
}

// Ready takes the scene's own anchors as queryable unless the client
// already reported its elements.
func (m *Memory) Ready() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.desc == nil || m.reported {
		return
	}
	m.markLiveLocked()
}

// MarkLive reports every element of the injected scene as queryable.
func (m *Memory) MarkLive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.desc == nil {
		return
	}
	m.markLiveLocked()
}

func (m *Memory) markLiveLocked() {
	m.reported = true
	m.sceneSeen = true
	m.markerIDs = nil
	if ar, ok := m.desc.(*scene.ARScene); ok {
		m.markerIDs = ar.MarkerIDs()
	}
}

// Fire dispatches a marker event reported by the client.
func (m *Memory) Fire(markerID string, t MarkerEventType) int {
	return m.Dispatch(MarkerEvent{MarkerID: markerID, Type: t, Timestamp: time.Now().UTC()})
}

// FailInjects makes subsequent Inject calls return err (nil restores).
func (m *Memory) FailInjects(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.injectErr = err
}
