// Package models holds the data types shared by the conversion pipeline.
package models

import (
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Job is a single conversion request. It is built once per invocation and never mutated.
type Job struct {
	InputPath    string // InputPath is the file to convert.
	TargetDir    string // TargetDir receives the artifacts and the descriptor.
	KeepOriginal bool   // KeepOriginal prevents the input from being removed after success.

	Remote Remote // Remote is only used by the assembly script modes.
}

// Remote describes the repository to fetch before loading an assembly script.
type Remote struct {
	CloneURL            string
	Branch              string
	Project             string
	PathFromProjectRoot string
}

// Visibility is the tri-state visibility of a container object.
type Visibility int

const (
	// VisibilityUnknown is used when no view provider references the object.
	VisibilityUnknown Visibility = iota
	// VisibilityVisible marks an object displayed in the document.
	VisibilityVisible
	// VisibilityHidden marks an object hidden in the document.
	VisibilityHidden
)

// String implements fmt.Stringer.
func (v Visibility) String() string {
	switch v {
	case VisibilityVisible:
		return "visible"
	case VisibilityHidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// Included reports whether an object with this visibility must be converted.
// Unknown resolves to excluded.
func (v Visibility) Included() bool {
	return v == VisibilityVisible
}

// MarshalYAML implements yaml.Marshaler.
func (v Visibility) MarshalYAML() (any, error) {
	return v.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Visibility) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "visible":
		*v = VisibilityVisible
	case "hidden":
		*v = VisibilityHidden
	case "unknown", "":
		*v = VisibilityUnknown
	default:
		return fmt.Errorf("invalid visibility %q", s)
	}
	return nil
}

// ContainerEntry is one object of a container manifest.
type ContainerEntry struct {
	Name       string     `yaml:"name"`
	File       string     `yaml:"file"`
	Visibility Visibility `yaml:"visibility"`
}

// BoundingBox is an axis aligned bounding box.
type BoundingBox struct {
	XMin, YMin, ZMin float64
	XMax, YMax, ZMax float64
}

// Union returns the smallest box containing both b and o.
func (b BoundingBox) Union(o BoundingBox) BoundingBox {
	return BoundingBox{
		XMin: math.Min(b.XMin, o.XMin),
		YMin: math.Min(b.YMin, o.YMin),
		ZMin: math.Min(b.ZMin, o.ZMin),
		XMax: math.Max(b.XMax, o.XMax),
		YMax: math.Max(b.YMax, o.YMax),
		ZMax: math.Max(b.ZMax, o.ZMax),
	}
}

// MaxDimension returns the largest span of the box along the three axes.
func (b BoundingBox) MaxDimension() float64 {
	return math.Max(b.XMax-b.XMin, math.Max(b.YMax-b.YMin, b.ZMax-b.ZMin))
}

// Transform is a rigid transform stored as a row-major 3x4 matrix:
// a rotation in the first three columns and a translation in the last one.
type Transform [12]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	}
}

// NewTransform builds a Transform from a flat list of 12 values.
func NewTransform(values []float64) (Transform, error) {
	var t Transform
	if len(values) != len(t) {
		return t, fmt.Errorf("a transform needs %d values, got %d", len(t), len(values))
	}
	copy(t[:], values)
	return t, nil
}

// Apply transforms a point.
func (t Transform) Apply(p [3]float64) [3]float64 {
	var out [3]float64
	for row := range 3 {
		out[row] = t[row*4]*p[0] + t[row*4+1]*p[1] + t[row*4+2]*p[2] + t[row*4+3]
	}
	return out
}
