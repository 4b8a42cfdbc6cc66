package scene

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/AaronLay10/ARTutor/internal/capability"
	"github.com/AaronLay10/ARTutor/internal/catalog"
)

func TestBuildWithoutCameraAlwaysFallback(t *testing.T) {
	b := NewBuilder(Options{})
	c := catalog.New()

	keys := append(c.Keys(), "unknown-model")
	verdicts := []capability.Verdict{{}, {XRAvailable: true}}
	for _, key := range keys {
		for _, v := range verdicts {
			desc := b.Build(v, c.Lookup(key))
			if _, ok := desc.(*FallbackScene); !ok {
				t.Errorf("key %q verdict %+v: expected *FallbackScene, got %T", key, v, desc)
			}
			if desc.Mode() != ModeFallback {
				t.Errorf("key %q: expected fallback mode, got %s", key, desc.Mode())
			}
		}
	}
}

func TestBuildWithCameraAnchorsThreeMarkers(t *testing.T) {
	b := NewBuilder(Options{PatternURL: "/p.patt", BarcodeValue: 7})
	spec := catalog.New().Lookup("DNA Helix")

	desc := b.Build(capability.Verdict{CameraAvailable: true}, spec)
	ar, ok := desc.(*ARScene)
	if !ok {
		t.Fatalf("expected *ARScene, got %T", desc)
	}

	wantIDs := []string{MarkerIDHiro, MarkerIDPattern, MarkerIDBarcode}
	if diff := cmp.Diff(wantIDs, ar.MarkerIDs()); diff != "" {
		t.Errorf("marker order mismatch (-want +got):\n%s", diff)
	}

	if ar.Markers[0].Kind != MarkerHiro || ar.Markers[0].Preset != "hiro" {
		t.Errorf("unexpected hiro anchor: %+v", ar.Markers[0])
	}
	if ar.Markers[1].Kind != MarkerPattern || ar.Markers[1].PatternURL != "/p.patt" {
		t.Errorf("unexpected pattern anchor: %+v", ar.Markers[1])
	}
	if ar.Markers[2].Kind != MarkerBarcode || ar.Markers[2].BarcodeValue != 7 {
		t.Errorf("unexpected barcode anchor: %+v", ar.Markers[2])
	}

	for _, m := range ar.Markers {
		if diff := cmp.Diff(spec, m.Model); diff != "" {
			t.Errorf("marker %s model mismatch (-want +got):\n%s", m.ID, diff)
		}
	}

	// Each anchor owns its own copy of the geometry
	ar.Markers[0].Model.Primitives[0].Color = "#000000"
	if ar.Markers[1].Model.Primitives[0].Color == "#000000" {
		t.Error("marker anchors share model geometry")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(DefaultOptions())
	spec := catalog.New().Lookup("Atom")
	v := capability.Verdict{CameraAvailable: true, XRAvailable: true}

	first := b.Build(v, spec)
	second := b.Build(v, spec)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Build not deterministic (-first +second):\n%s", diff)
	}
}

func TestBuildFallbackScene(t *testing.T) {
	b := NewBuilder(Options{Background: "#000011"})
	spec := catalog.New().Lookup("Atom")

	fb := b.BuildFallback(spec)
	if fb.Background != "#000011" {
		t.Errorf("expected background #000011, got %s", fb.Background)
	}
	if len(fb.Lights) == 0 {
		t.Error("expected lights in fallback scene")
	}
	if fb.Model().ID != "Atom" {
		t.Errorf("expected Atom model, got %s", fb.Model().ID)
	}
	if fb.Camera.Position.Z <= 0 {
		t.Errorf("expected camera in front of the model, got %+v", fb.Camera.Position)
	}
}

func TestDescriptionJSONCarriesMode(t *testing.T) {
	b := NewBuilder(DefaultOptions())
	spec := catalog.New().Lookup("Atom")

	for _, tc := range []struct {
		desc Description
		want string
	}{
		{b.Build(capability.Verdict{CameraAvailable: true}, spec), "ar"},
		{b.Build(capability.Verdict{}, spec), "fallback"},
	} {
		data, err := json.Marshal(tc.desc)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if raw["mode"] != tc.want {
			t.Errorf("expected mode %q, got %v", tc.want, raw["mode"])
		}
	}
}
