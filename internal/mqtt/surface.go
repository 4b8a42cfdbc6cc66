package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/AaronLay10/ARTutor/internal/events"
	"github.com/AaronLay10/ARTutor/internal/scene"
	"github.com/AaronLay10/ARTutor/internal/surface"
)

// Topics are the bridge topics under one prefix.
type Topics struct {
	Scene    string // retained scene envelope, empty payload when cleared
	Status   string // retained session status
	Notify   string // one-shot notifications
	Ready    string // client: scene-ready signal
	Elements string // client: element report
	Markers  string // client: marker found/lost
}

// TopicsFor builds the topic set for prefix.
func TopicsFor(prefix string) Topics {
	return Topics{
		Scene:    prefix + "/scene",
		Status:   prefix + "/status",
		Notify:   prefix + "/notify",
		Ready:    prefix + "/ready",
		Elements: prefix + "/elements",
		Markers:  prefix + "/markers",
	}
}

// SceneEnvelope is the retained payload on the scene topic.
type SceneEnvelope struct {
	Version int               `json:"version"`
	Scene   scene.Description `json:"scene"`
}

// ReadyReport is published by the client once the scene has rendered.
type ReadyReport struct {
	Version int `json:"version"`
}

// ElementReport lists the elements the client could locate.
type ElementReport struct {
	Version int      `json:"version"`
	Scene   bool     `json:"scene"`
	Markers []string `json:"markers"`
}

// MarkerReport is a marker found/lost event from the client.
type MarkerReport struct {
	MarkerID string                  `json:"marker_id"`
	Type     surface.MarkerEventType `json:"type"`
}

// Surface is a rendering surface whose content lives on a remote client
// reached through the broker. Version 0 in a report matches any scene.
type Surface struct {
	*surface.MarkerSet

	pub    Publisher
	topics Topics

	mu        sync.RWMutex
	desc      scene.Description
	version   int
	reported  bool
	sceneSeen bool
	markerIDs []string
	onReady   func() bool
}

// NewSurface returns an empty surface publishing through pub.
func NewSurface(pub Publisher, topics Topics) *Surface {
	return &Surface{
		MarkerSet: surface.NewMarkerSet(),
		pub:       pub,
		topics:    topics,
	}
}

// OnReady sets the handler for scene-ready reports, typically
// Orchestrator.SceneReady.
func (s *Surface) OnReady(fn func() bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReady = fn
}

// Inject publishes desc as the retained scene.
func (s *Surface) Inject(desc scene.Description) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(SceneEnvelope{Version: s.version + 1, Scene: desc})
	if err != nil {
		return fmt.Errorf("encode scene: %w", err)
	}
	if err := s.pub.Publish(s.topics.Scene, true, payload); err != nil {
		return fmt.Errorf("publish scene: %w", err)
	}
	s.version++
	s.desc = desc
	s.reported = false
	s.sceneSeen = false
	s.markerIDs = nil
	return nil
}

// Markers returns handles for the markers the client reported.
func (s *Surface) Markers() ([]surface.Marker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.desc == nil {
		return nil, surface.ErrNoScene
	}
	if !s.reported {
		return nil, surface.ErrSceneLoading
	}
	if !s.sceneSeen {
		return nil, surface.ErrSceneNotFound
	}
	out := make([]surface.Marker, 0, len(s.markerIDs))
	for _, id := range s.markerIDs {
		out = append(out, s.MarkerSet.Marker(id))
	}
	return out, nil
}

// Ready takes the scene's own anchors as queryable when the client signals
// readiness without an element report.
func (s *Surface) Ready() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.desc == nil || s.reported {
		return
	}
	s.reported = true
	s.sceneSeen = true
	s.markerIDs = nil
	if ar, ok := s.desc.(*scene.ARScene); ok {
		s.markerIDs = ar.MarkerIDs()
	}
}

// Clear retracts the retained scene and drops all marker listeners.
// A failed retract is logged; the local state is cleared regardless.
func (s *Surface) Clear() {
	s.mu.Lock()
	hadScene := s.desc != nil
	s.desc = nil
	s.version++
	s.reported = false
	s.sceneSeen = false
	s.markerIDs = nil
	s.mu.Unlock()

	s.MarkerSet.Reset()

	if !hadScene {
		return
	}
	if err := s.pub.Publish(s.topics.Scene, true, nil); err != nil {
		events.Emit("error", "transport.error", "failed to clear retained scene", map[string]interface{}{
			"topic": s.topics.Scene,
			"error": err.Error(),
		})
	}
}

// Version returns the version of the current scene.
func (s *Surface) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers the report handlers.
func (s *Surface) Subscribe(sub Subscriber) error {
	handlers := map[string]paho.MessageHandler{
		s.topics.Ready:    s.handleReady,
		s.topics.Elements: s.handleElements,
		s.topics.Markers:  s.handleMarker,
	}
	for _, topic := range []string{s.topics.Ready, s.topics.Elements, s.topics.Markers} {
		if err := sub.Subscribe(topic, handlers[topic]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Surface) handleReady(_ paho.Client, msg paho.Message) {
	var r ReadyReport
	if len(msg.Payload()) > 0 {
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			s.reportBadPayload(msg, err)
			return
		}
	}

	s.mu.RLock()
	stale := !s.matches(r.Version)
	fn := s.onReady
	s.mu.RUnlock()

	if stale || fn == nil {
		return
	}
	fn()
}

func (s *Surface) handleElements(_ paho.Client, msg paho.Message) {
	var r ElementReport
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		s.reportBadPayload(msg, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.matches(r.Version) {
		return
	}
	s.reported = true
	s.sceneSeen = r.Scene
	s.markerIDs = append([]string(nil), r.Markers...)
}

func (s *Surface) handleMarker(_ paho.Client, msg paho.Message) {
	var r MarkerReport
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		s.reportBadPayload(msg, err)
		return
	}
	if r.MarkerID == "" || (r.Type != surface.MarkerFound && r.Type != surface.MarkerLost) {
		s.reportBadPayload(msg, fmt.Errorf("invalid marker report %q/%q", r.MarkerID, r.Type))
		return
	}
	s.Dispatch(surface.MarkerEvent{MarkerID: r.MarkerID, Type: r.Type, Timestamp: time.Now().UTC()})
}

// matches reports whether a report for version v applies to the current
// scene. Caller holds s.mu.
func (s *Surface) matches(v int) bool {
	return s.desc != nil && (v == 0 || v == s.version)
}

func (s *Surface) reportBadPayload(msg paho.Message, err error) {
	events.Emit("warn", "transport.error", "invalid client report", map[string]interface{}{
		"topic": msg.Topic(),
		"error": err.Error(),
	})
}
