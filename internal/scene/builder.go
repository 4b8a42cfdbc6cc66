package scene

import (
	"github.com/AaronLay10/ARTutor/internal/capability"
	"github.com/AaronLay10/ARTutor/internal/catalog"
)

// Marker element IDs, stable across sessions.
const (
	MarkerIDHiro    = "marker-hiro"
	MarkerIDPattern = "marker-pattern"
	MarkerIDBarcode = "marker-barcode"
)

// Options configures marker sources and the viewer background.
type Options struct {
	PatternURL   string
	BarcodeValue int
	Background   string
}

// DefaultOptions returns the stock marker configuration.
func DefaultOptions() Options {
	return Options{
		PatternURL:   "/markers/pattern-tutor.patt",
		BarcodeValue: 5,
		Background:   "#ECECEC",
	}
}

// Builder turns a capability verdict and a model into a scene description.
// Build is deterministic for a given builder and inputs.
type Builder struct {
	opts Options
}

func NewBuilder(opts Options) *Builder {
	def := DefaultOptions()
	if opts.PatternURL == "" {
		opts.PatternURL = def.PatternURL
	}
	if opts.BarcodeValue == 0 {
		opts.BarcodeValue = def.BarcodeValue
	}
	if opts.Background == "" {
		opts.Background = def.Background
	}
	return &Builder{opts: opts}
}

// Build returns a FallbackScene when no camera is available, otherwise an
// ARScene anchoring an independent copy of the model to each marker variant.
func (b *Builder) Build(v capability.Verdict, spec catalog.ModelSpec) Description {
	if !v.CanTrack() {
		return b.BuildFallback(spec)
	}

	anchor := Transform{
		Rotation: catalog.Vec3{X: -90},
		Scale:    catalog.Vec3{X: 1, Y: 1, Z: 1},
	}
	return &ARScene{
		Markers: []MarkerAnchor{
			{ID: MarkerIDHiro, Kind: MarkerHiro, Preset: "hiro", Anchor: anchor, Model: spec.Clone()},
			{ID: MarkerIDPattern, Kind: MarkerPattern, PatternURL: b.opts.PatternURL, Anchor: anchor, Model: spec.Clone()},
			{ID: MarkerIDBarcode, Kind: MarkerBarcode, BarcodeValue: b.opts.BarcodeValue, Anchor: anchor, Model: spec.Clone()},
		},
	}
}

// BuildFallback returns the free-look viewer scene for spec.
func (b *Builder) BuildFallback(spec catalog.ModelSpec) *FallbackScene {
	return &FallbackScene{
		Camera: Transform{
			Position: catalog.Vec3{Y: 1.6, Z: 3},
			Scale:    catalog.Vec3{X: 1, Y: 1, Z: 1},
		},
		Lights: []Light{
			{Kind: LightAmbient, Color: "#FFFFFF", Intensity: 0.5},
			{Kind: LightDirectional, Color: "#FFFFFF", Intensity: 0.8, Position: catalog.Vec3{X: -1, Y: 2, Z: 1}},
		},
		ModelSpec:  spec.Clone(),
		Background: b.opts.Background,
	}
}
