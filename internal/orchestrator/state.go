package orchestrator

import (
	"github.com/AaronLay10/ARTutor/internal/capability"
	"github.com/AaronLay10/ARTutor/internal/scene"
)

// State is the bootstrap lifecycle state of a session.
type State string

const (
	StateIdle               State = "idle"
	StateLoadingEngine      State = "loading_engine"
	StateProbingCapability  State = "probing_capability"
	StateBuildingScene      State = "building_scene"
	StateAwaitingSceneReady State = "awaiting_scene_ready"
	StateActive             State = "active"
	StateError              State = "error"
)

// Terminal returns true for states that hold until external teardown.
func (s State) Terminal() bool {
	return s == StateActive || s == StateError
}

// InFlight returns true while the bootstrap sequence is still running.
func (s State) InFlight() bool {
	switch s {
	case StateLoadingEngine, StateProbingCapability, StateBuildingScene, StateAwaitingSceneReady:
		return true
	}
	return false
}

// Step is one entry of the transition history.
type Step struct {
	State State
	Mode  scene.Mode
}

func (s Step) String() string {
	if s.State == StateActive && s.Mode != "" {
		return string(s.State) + "(" + string(s.Mode) + ")"
	}
	return string(s.State)
}

// Status is the externally visible session state.
type Status struct {
	State     State               `json:"state"`
	Mode      scene.Mode          `json:"mode,omitempty"`
	Message   string              `json:"message,omitempty"`
	ModelKey  string              `json:"model"`
	Subject   string              `json:"subject,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
	Verdict   *capability.Verdict `json:"verdict,omitempty"`
}

// Notification kinds.
const (
	NotifyMarkerFound = "marker_found"
	NotifyFallback    = "fallback"
)

// Notification is a one-shot user-facing message.
type Notification struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SessionID   string `json:"session_id"`
}

// Observer receives state changes and notifications. Methods are called
// with the orchestrator lock held and must not call back into it.
type Observer interface {
	StateChanged(Status)
	Notify(Notification)
}
