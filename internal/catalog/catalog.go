package catalog

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultKey is the model selected when the caller does not name one.
const DefaultKey = "Atom"

// DefaultID identifies the spec returned for unknown keys.
const DefaultID = "default"

// Catalog maps model keys to model specs.
// Lookups return deep copies and are safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	models   map[string]ModelSpec
	fallback ModelSpec
}

// New returns a catalog holding the built-in models.
func New() *Catalog {
	c := &Catalog{
		models:   make(map[string]ModelSpec),
		fallback: defaultModel(),
	}
	for _, m := range builtinModels() {
		c.models[m.ID] = m
	}
	return c
}

// Lookup returns the spec for key, or the default spec for unknown keys.
func (c *Catalog) Lookup(key string) ModelSpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.models[key]; ok {
		return m.Clone()
	}
	return c.fallback.Clone()
}

// Has reports whether key names a catalog entry (the default entry excluded).
func (c *Catalog) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.models[key]
	return ok
}

// Keys returns the known model keys in sorted order.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.models))
	for k := range c.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// File is the on-disk model overlay format.
type File struct {
	Version int         `yaml:"version"`
	Models  []ModelSpec `yaml:"models"`
}

// LoadFile merges model definitions from a YAML file over the current entries.
// A model with ID "default" replaces the unknown-key fallback.
func (c *Catalog) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	return c.Load(b)
}

// Load merges model definitions from YAML bytes.
func (c *Catalog) Load(b []byte) error {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if f.Version != 1 {
		return fmt.Errorf("unsupported catalog version: %d", f.Version)
	}
	for _, m := range f.Models {
		if m.ID == "" {
			return fmt.Errorf("catalog model missing id")
		}
		if len(m.Primitives) == 0 {
			return fmt.Errorf("catalog model %s has no primitives", m.ID)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range f.Models {
		if m.Label == "" {
			m.Label = m.ID
		}
		if m.ID == DefaultID {
			c.fallback = m.Clone()
			continue
		}
		c.models[m.ID] = m.Clone()
	}
	return nil
}

func spin(d time.Duration) *Animation {
	return &Animation{Property: "rotation", To: Vec3{Y: 360}, Duration: d, Loop: true}
}

func defaultModel() ModelSpec {
	return ModelSpec{
		ID:    DefaultID,
		Label: "Model",
		Primitives: []Primitive{
			{
				Geometry:  Box{Width: 1, Height: 1, Depth: 1},
				Position:  Vec3{Y: 0.5},
				Color:     "#4CC3D9",
				Animation: spin(10 * time.Second),
			},
		},
	}
}

func builtinModels() []ModelSpec {
	return []ModelSpec{
		{
			ID:    "Atom",
			Label: "Atom",
			Primitives: []Primitive{
				{Geometry: Sphere{Radius: 0.3}, Position: Vec3{Y: 0.5}, Color: "#EF2D5E"},
				{Geometry: Torus{Radius: 0.8, Tube: 0.02}, Position: Vec3{Y: 0.5}, Rotation: Vec3{X: 90}, Color: "#7BC8A4",
					Animation: spin(4 * time.Second)},
				{Geometry: Torus{Radius: 0.8, Tube: 0.02}, Position: Vec3{Y: 0.5}, Rotation: Vec3{X: 30}, Color: "#7BC8A4",
					Animation: spin(6 * time.Second)},
				{Geometry: Sphere{Radius: 0.08}, Position: Vec3{X: 0.8, Y: 0.5}, Color: "#4CC3D9",
					Animation: &Animation{Property: "position", To: Vec3{X: -0.8, Y: 0.5}, Duration: 2 * time.Second, Loop: true}},
				{Geometry: Sphere{Radius: 0.08}, Position: Vec3{Y: 0.5, Z: 0.8}, Color: "#4CC3D9",
					Animation: &Animation{Property: "position", To: Vec3{Y: 0.5, Z: -0.8}, Duration: 3 * time.Second, Loop: true}},
			},
		},
		{
			ID:    "DNA Helix",
			Label: "DNA Helix",
			Primitives: []Primitive{
				{Geometry: Cylinder{Radius: 0.05, Height: 2}, Position: Vec3{X: -0.3, Y: 1}, Color: "#4CC3D9",
					Animation: spin(8 * time.Second)},
				{Geometry: Cylinder{Radius: 0.05, Height: 2}, Position: Vec3{X: 0.3, Y: 1}, Color: "#EF2D5E",
					Animation: spin(8 * time.Second)},
				{Geometry: Box{Width: 0.6, Height: 0.04, Depth: 0.04}, Position: Vec3{Y: 0.4}, Color: "#FFC65D"},
				{Geometry: Box{Width: 0.6, Height: 0.04, Depth: 0.04}, Position: Vec3{Y: 0.8}, Rotation: Vec3{Y: 36}, Color: "#7BC8A4"},
				{Geometry: Box{Width: 0.6, Height: 0.04, Depth: 0.04}, Position: Vec3{Y: 1.2}, Rotation: Vec3{Y: 72}, Color: "#FFC65D"},
				{Geometry: Box{Width: 0.6, Height: 0.04, Depth: 0.04}, Position: Vec3{Y: 1.6}, Rotation: Vec3{Y: 108}, Color: "#7BC8A4"},
			},
		},
		{
			ID:    "Molecule",
			Label: "Water Molecule",
			Primitives: []Primitive{
				{Geometry: Sphere{Radius: 0.35}, Position: Vec3{Y: 0.6}, Color: "#EF2D5E",
					Animation: spin(12 * time.Second)},
				{Geometry: Sphere{Radius: 0.2}, Position: Vec3{X: -0.45, Y: 0.35}, Color: "#FFFFFF"},
				{Geometry: Sphere{Radius: 0.2}, Position: Vec3{X: 0.45, Y: 0.35}, Color: "#FFFFFF"},
				{Geometry: Cylinder{Radius: 0.04, Height: 0.5}, Position: Vec3{X: -0.22, Y: 0.48}, Rotation: Vec3{Z: 60}, Color: "#CCCCCC"},
				{Geometry: Cylinder{Radius: 0.04, Height: 0.5}, Position: Vec3{X: 0.22, Y: 0.48}, Rotation: Vec3{Z: -60}, Color: "#CCCCCC"},
			},
		},
		{
			ID:    "Solar System",
			Label: "Solar System",
			Primitives: []Primitive{
				{Geometry: Sphere{Radius: 0.4}, Position: Vec3{Y: 0.5}, Color: "#FFC65D"},
				{Geometry: Torus{Radius: 0.9, Tube: 0.01}, Position: Vec3{Y: 0.5}, Rotation: Vec3{X: 90}, Color: "#888888"},
				{Geometry: Sphere{Radius: 0.1}, Position: Vec3{X: 0.9, Y: 0.5}, Color: "#4CC3D9",
					Animation: spin(5 * time.Second)},
				{Geometry: Cone{RadiusBottom: 0.05, RadiusTop: 0, Height: 0.15}, Position: Vec3{X: -0.9, Y: 0.5}, Color: "#EF2D5E",
					Animation: spin(9 * time.Second)},
			},
		},
	}
}
