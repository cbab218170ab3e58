// Package kernel defines the boundary between the conversion pipeline and the geometry kernel.
// The pipeline never manipulates geometry itself: it imports, classifies, discretizes and tessellates
// shapes through a Kernel.
package kernel

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cadracks/cad2web/internal/models"
)

// Format is a geometry file format understood by the kernel.
type Format string

const (
	// FormatSTEP is the ISO 10303 exchange format.
	FormatSTEP Format = "step"
	// FormatIGES is the IGES exchange format.
	FormatIGES Format = "iges"
	// FormatBREP is the OpenCASCADE boundary representation format.
	FormatBREP Format = "brep"
	// FormatSTL is the STL mesh format, ASCII or binary.
	FormatSTL Format = "stl"
)

// FormatFromPath guesses the geometry format of a file from its extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".step", ".stp":
		return FormatSTEP, nil
	case ".iges", ".igs":
		return FormatIGES, nil
	case ".brep", ".brp":
		return FormatBREP, nil
	case ".stl":
		return FormatSTL, nil
	default:
		return "", fmt.Errorf("%w: no geometry format for %q", models.ErrUnsupportedContent, filepath.Base(path))
	}
}

// ParseFormat returns the format named s, case insensitively. Extensions without the dot are accepted.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty geometry format", models.ErrUnsupportedContent)
	}
	return FormatFromPath("." + s)
}

// Kind is the topological classification of a shape.
type Kind int

const (
	// KindShape is any shape that is neither an edge nor a wire: faces, shells, solids, compounds.
	KindShape Kind = iota
	// KindEdge is a single curve.
	KindEdge
	// KindWire is a connected sequence of edges.
	KindWire
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindEdge:
		return "edge"
	case KindWire:
		return "wire"
	default:
		return "shape"
	}
}

// Shape is an opaque handle to a shape owned by the kernel.
type Shape interface {
	// ID identifies the shape within the kernel session.
	ID() string
}

// Point is a 3D point.
type Point [3]float64

// TessellateOptions drives the mesh export of general shapes.
type TessellateOptions struct {
	Quality     float64 // Quality is the kernel mesh quality factor, 1 being the default.
	ExportEdges bool    // ExportEdges asks the kernel to also compute the shape edges.
	ID          string  // ID is the identifier embedded in the exported mesh.
}

// Kernel is the set of geometry operations used by the pipeline.
//
// Implementations report null or degenerate shapes with an error matching models.ErrNullShape,
// and any other import problem with an error matching models.ErrGeometryImport.
type Kernel interface {
	// Name is the generator tag embedded in exported artifacts.
	Name() string
	// Import reads a geometry file into a shape.
	Import(ctx context.Context, path string, format Format) (Shape, error)
	// Classify returns the topological kind of a shape.
	Classify(ctx context.Context, s Shape) (Kind, error)
	// BoundingBox returns the axis aligned bounding box of a shape.
	BoundingBox(ctx context.Context, s Shape) (models.BoundingBox, error)
	// OrderedEdges returns the edges of a wire following its connectivity.
	OrderedEdges(ctx context.Context, wire Shape) ([]Shape, error)
	// Discretize samples an edge into points, within the given deflection.
	Discretize(ctx context.Context, edge Shape, deflection float64) ([]Point, error)
	// Tessellate meshes a shape and returns the kernel three.js JSON export.
	Tessellate(ctx context.Context, s Shape, opts TessellateOptions) ([]byte, error)
	// Transform returns a copy of a shape moved by a rigid transform.
	Transform(ctx context.Context, s Shape, t models.Transform) (Shape, error)
	// Release frees the kernel memory held for a shape.
	Release(ctx context.Context, s Shape) error
}
