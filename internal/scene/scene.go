// Package scene builds the scene description injected into the rendering surface.
package scene

import (
	"encoding/json"

	"github.com/AaronLay10/ARTutor/internal/catalog"
)

// Mode is the kind of scene a session presents.
type Mode string

const (
	ModeAR       Mode = "ar"
	ModeFallback Mode = "fallback"
)

// MarkerKind identifies how a marker anchor is detected.
type MarkerKind string

const (
	MarkerHiro    MarkerKind = "hiro"
	MarkerPattern MarkerKind = "pattern"
	MarkerBarcode MarkerKind = "barcode"
)

// Transform places an entity in the scene.
type Transform struct {
	Position catalog.Vec3 `json:"position"`
	Rotation catalog.Vec3 `json:"rotation"`
	Scale    catalog.Vec3 `json:"scale"`
}

// Description is either *ARScene or *FallbackScene.
type Description interface {
	Mode() Mode
	Model() catalog.ModelSpec
}

// MarkerAnchor anchors one copy of the model to a marker.
type MarkerAnchor struct {
	ID           string            `json:"id"`
	Kind         MarkerKind        `json:"kind"`
	Preset       string            `json:"preset,omitempty"`
	PatternURL   string            `json:"pattern_url,omitempty"`
	BarcodeValue int               `json:"barcode_value,omitempty"`
	Anchor       Transform         `json:"anchor"`
	Model        catalog.ModelSpec `json:"model"`
}

// ARScene tracks several marker variants, each revealing the model.
type ARScene struct {
	Markers []MarkerAnchor `json:"markers"`
}

func (s *ARScene) Mode() Mode { return ModeAR }

func (s *ARScene) Model() catalog.ModelSpec {
	if len(s.Markers) == 0 {
		return catalog.ModelSpec{}
	}
	return s.Markers[0].Model
}

// MarkerIDs returns the anchor IDs in scene order.
func (s *ARScene) MarkerIDs() []string {
	ids := make([]string, len(s.Markers))
	for i, m := range s.Markers {
		ids[i] = m.ID
	}
	return ids
}

func (s *ARScene) MarshalJSON() ([]byte, error) {
	type plain ARScene
	return json.Marshal(struct {
		Mode Mode `json:"mode"`
		*plain
	}{ModeAR, (*plain)(s)})
}

// LightKind names a light type.
type LightKind string

const (
	LightAmbient     LightKind = "ambient"
	LightDirectional LightKind = "directional"
)

type Light struct {
	Kind      LightKind    `json:"kind"`
	Color     string       `json:"color"`
	Intensity float64      `json:"intensity"`
	Position  catalog.Vec3 `json:"position"`
}

// FallbackScene is a free-look 3D viewer without tracking.
type FallbackScene struct {
	Camera     Transform         `json:"camera"`
	Lights     []Light           `json:"lights"`
	ModelSpec  catalog.ModelSpec `json:"model"`
	Background string            `json:"background"`
}

func (s *FallbackScene) Mode() Mode { return ModeFallback }

func (s *FallbackScene) Model() catalog.ModelSpec { return s.ModelSpec }

func (s *FallbackScene) MarshalJSON() ([]byte, error) {
	type plain FallbackScene
	return json.Marshal(struct {
		Mode Mode `json:"mode"`
		*plain
	}{ModeFallback, (*plain)(s)})
}
