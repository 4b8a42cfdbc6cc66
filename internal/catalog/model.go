package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// ShapeKind names a primitive geometry variant.
type ShapeKind string

const (
	ShapeBox      ShapeKind = "box"
	ShapeSphere   ShapeKind = "sphere"
	ShapeCylinder ShapeKind = "cylinder"
	ShapeTorus    ShapeKind = "torus"
	ShapeCone     ShapeKind = "cone"
)

// Vec3 is a position, rotation (degrees) or scale triple.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Geometry is implemented by the typed shape variants.
type Geometry interface {
	Kind() ShapeKind
}

type Box struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Depth  float64 `json:"depth" yaml:"depth"`
}

type Sphere struct {
	Radius float64 `json:"radius" yaml:"radius"`
}

type Cylinder struct {
	Radius float64 `json:"radius" yaml:"radius"`
	Height float64 `json:"height" yaml:"height"`
}

// Torus is used for orbit rings. Tube is the ring thickness.
type Torus struct {
	Radius float64 `json:"radius" yaml:"radius"`
	Tube   float64 `json:"tube" yaml:"tube"`
}

type Cone struct {
	RadiusBottom float64 `json:"radius_bottom" yaml:"radius_bottom"`
	RadiusTop    float64 `json:"radius_top" yaml:"radius_top"`
	Height       float64 `json:"height" yaml:"height"`
}

func (Box) Kind() ShapeKind      { return ShapeBox }
func (Sphere) Kind() ShapeKind   { return ShapeSphere }
func (Cylinder) Kind() ShapeKind { return ShapeCylinder }
func (Torus) Kind() ShapeKind    { return ShapeTorus }
func (Cone) Kind() ShapeKind     { return ShapeCone }

// Animation describes a tween of one transform property.
type Animation struct {
	Property string        `json:"property" yaml:"property"`
	To       Vec3          `json:"to" yaml:"to"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Loop     bool          `json:"loop" yaml:"loop"`
}

// Primitive is one shape of a model.
type Primitive struct {
	Geometry  Geometry
	Position  Vec3
	Rotation  Vec3
	Color     string
	Animation *Animation
}

// ModelSpec is the declarative description of a tutoring model.
type ModelSpec struct {
	ID         string      `json:"id" yaml:"id"`
	Label      string      `json:"label" yaml:"label"`
	Primitives []Primitive `json:"primitives" yaml:"primitives"`
}

// Clone returns a deep copy so callers cannot mutate catalog entries.
func (m ModelSpec) Clone() ModelSpec {
	out := ModelSpec{ID: m.ID, Label: m.Label}
	if m.Primitives != nil {
		out.Primitives = make([]Primitive, len(m.Primitives))
		for i, p := range m.Primitives {
			if p.Animation != nil {
				a := *p.Animation
				p.Animation = &a
			}
			out.Primitives[i] = p
		}
	}
	return out
}

// primitiveDoc is the flat wire shape of a Primitive for JSON and YAML.
type primitiveDoc struct {
	Shape        ShapeKind  `json:"shape" yaml:"shape"`
	Width        float64    `json:"width,omitempty" yaml:"width"`
	Height       float64    `json:"height,omitempty" yaml:"height"`
	Depth        float64    `json:"depth,omitempty" yaml:"depth"`
	Radius       float64    `json:"radius,omitempty" yaml:"radius"`
	RadiusBottom float64    `json:"radius_bottom,omitempty" yaml:"radius_bottom"`
	RadiusTop    float64    `json:"radius_top,omitempty" yaml:"radius_top"`
	Tube         float64    `json:"tube,omitempty" yaml:"tube"`
	Position     Vec3       `json:"position" yaml:"position"`
	Rotation     Vec3       `json:"rotation" yaml:"rotation"`
	Color        string     `json:"color" yaml:"color"`
	Animation    *Animation `json:"animation,omitempty" yaml:"animation"`
}

func (p Primitive) doc() primitiveDoc {
	d := primitiveDoc{
		Position:  p.Position,
		Rotation:  p.Rotation,
		Color:     p.Color,
		Animation: p.Animation,
	}
	switch g := p.Geometry.(type) {
	case Box:
		d.Shape, d.Width, d.Height, d.Depth = ShapeBox, g.Width, g.Height, g.Depth
	case Sphere:
		d.Shape, d.Radius = ShapeSphere, g.Radius
	case Cylinder:
		d.Shape, d.Radius, d.Height = ShapeCylinder, g.Radius, g.Height
	case Torus:
		d.Shape, d.Radius, d.Tube = ShapeTorus, g.Radius, g.Tube
	case Cone:
		d.Shape, d.RadiusBottom, d.RadiusTop, d.Height = ShapeCone, g.RadiusBottom, g.RadiusTop, g.Height
	}
	return d
}

func (d primitiveDoc) primitive() (Primitive, error) {
	p := Primitive{
		Position:  d.Position,
		Rotation:  d.Rotation,
		Color:     d.Color,
		Animation: d.Animation,
	}
	switch d.Shape {
	case ShapeBox:
		p.Geometry = Box{Width: d.Width, Height: d.Height, Depth: d.Depth}
	case ShapeSphere:
		p.Geometry = Sphere{Radius: d.Radius}
	case ShapeCylinder:
		p.Geometry = Cylinder{Radius: d.Radius, Height: d.Height}
	case ShapeTorus:
		p.Geometry = Torus{Radius: d.Radius, Tube: d.Tube}
	case ShapeCone:
		p.Geometry = Cone{RadiusBottom: d.RadiusBottom, RadiusTop: d.RadiusTop, Height: d.Height}
	default:
		return Primitive{}, fmt.Errorf("unknown shape: %q", d.Shape)
	}
	return p, nil
}

// MarshalJSON flattens the geometry variant into a "shape" discriminator.
func (p Primitive) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.doc())
}

func (p *Primitive) UnmarshalJSON(b []byte) error {
	var d primitiveDoc
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	out, err := d.primitive()
	if err != nil {
		return err
	}
	*p = out
	return nil
}

func (p *Primitive) UnmarshalYAML(node *yaml.Node) error {
	var d primitiveDoc
	if err := node.Decode(&d); err != nil {
		return err
	}
	out, err := d.primitive()
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*p = out
	return nil
}
