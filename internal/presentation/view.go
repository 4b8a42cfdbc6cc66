// Package presentation maps session status to what the learner sees.
package presentation

import (
	"github.com/AaronLay10/ARTutor/internal/orchestrator"
	"github.com/AaronLay10/ARTutor/internal/scene"
)

// Phase selects which overlay the client shows.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseError   Phase = "error"
	PhaseLive    Phase = "live"
)

// Mode indicator labels.
const (
	IndicatorAR       = "AR active"
	IndicatorFallback = "3D viewer"
)

// Action IDs. Both end the session on the host.
const (
	ActionGoBack     = "go_back"
	ActionEndSession = "end_session"
)

// Action is a user control offered by a view.
type Action struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// View is the rendered state of the presentation surface.
type View struct {
	Phase        Phase    `json:"phase"`
	Title        string   `json:"title"`
	Message      string   `json:"message,omitempty"`
	Indicator    string   `json:"indicator,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
	Actions      []Action `json:"actions,omitempty"`
	ShowSurface  bool     `json:"show_surface"`
}

var (
	arInstructions = []string{
		"Point your camera at a printed marker.",
		"Hiro, pattern and barcode markers all show the model.",
		"Hold the marker flat and well lit.",
	}
	fallbackInstructions = []string{
		"Drag to rotate the model.",
		"Scroll or pinch to zoom.",
	}
)

// Render maps a status to its view. It is pure.
func Render(st orchestrator.Status) View {
	title := st.ModelKey
	if st.Subject != "" {
		title = st.Subject + ": " + st.ModelKey
	}

	switch {
	case st.State == orchestrator.StateError:
		msg := st.Message
		if msg == "" {
			msg = "Something went wrong while starting the session."
		}
		return View{
			Phase:   PhaseError,
			Title:   title,
			Message: msg,
			Actions: []Action{{ID: ActionGoBack, Label: "Go back"}},
		}

	case st.State.InFlight():
		msg := st.Message
		if msg == "" {
			msg = "Loading..."
		}
		return View{Phase: PhaseLoading, Title: title, Message: msg}

	case st.State == orchestrator.StateActive:
		v := View{
			Phase:       PhaseLive,
			Title:       title,
			Message:     st.Message,
			ShowSurface: true,
			Actions:     []Action{{ID: ActionEndSession, Label: "End session"}},
		}
		if st.Mode == scene.ModeAR {
			v.Indicator = IndicatorAR
			v.Instructions = append([]string(nil), arInstructions...)
		} else {
			v.Indicator = IndicatorFallback
			v.Instructions = append([]string(nil), fallbackInstructions...)
		}
		return v
	}

	return View{Phase: PhaseIdle, Title: title}
}
