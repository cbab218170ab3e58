// Package converter turns kernel shapes into three.js JSON artifacts.
//
// Edges and wires are discretized into a BufferGeometry polyline. Any other shape is tessellated
// by the kernel, whose three.js export is written as is.
package converter

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"sync"

	"github.com/cadracks/cad2web/internal/fileutils"
	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/google/uuid"
	"github.com/ubuntu/decorate"
)

// ResultKind is the outcome of a conversion.
type ResultKind int

const (
	// Skipped means nothing was written.
	Skipped ResultKind = iota
	// WroteEdgeArtifact means an edge polyline was written.
	WroteEdgeArtifact
	// WroteWireArtifact means a wire polyline was written.
	WroteWireArtifact
	// WroteMeshArtifact means a tessellated mesh was written.
	WroteMeshArtifact
)

// String implements fmt.Stringer.
func (k ResultKind) String() string {
	switch k {
	case WroteEdgeArtifact:
		return "edge"
	case WroteWireArtifact:
		return "wire"
	case WroteMeshArtifact:
		return "mesh"
	default:
		return "skipped"
	}
}

// Result describes what Convert did.
type Result struct {
	Kind   ResultKind
	Reason string // Reason is set when the conversion was skipped.
	ID     string // ID is the identifier of the written artifact.
}

// Converter converts shapes through a kernel.
type Converter struct {
	kernel kernel.Kernel
	style  Style
	log    *slog.Logger
	newID  func() string

	mu     sync.Mutex
	styles map[string]Record
}

type options struct {
	style Style
	log   *slog.Logger
	newID func() string
}

// Options represents an optional function to override Converter default values.
type Options func(*options)

// WithStyle overrides the default style.
func WithStyle(s Style) Options {
	return func(o *options) {
		o.style = s
	}
}

// WithLogger sets the logger used by the converter.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Converter using k.
func New(k kernel.Kernel, args ...Options) *Converter {
	opts := options{
		style: DefaultStyle(),
		log:   slog.Default(),
		newID: func() string {
			id := uuid.New()
			return fmt.Sprintf("%x", id[:])
		},
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Converter{
		kernel: k,
		style:  opts.style,
		log:    opts.log,
		newID:  opts.newID,
		styles: make(map[string]Record),
	}
}

// Convert writes the artifact of s to outputPath.
// An existing outputPath is reused: nothing is written and the kernel is not called.
func (c *Converter) Convert(ctx context.Context, s kernel.Shape, outputPath string) (res Result, err error) {
	defer decorate.OnError(&err, "could not convert shape to %s", filepath.Base(outputPath))

	exists, err := fileutils.FileExists(outputPath)
	if err != nil {
		return Result{}, err
	}
	if exists {
		c.log.Info("Using existing file", "file", outputPath)
		return Result{Kind: Skipped, Reason: "cached"}, nil
	}

	kind, err := c.kernel.Classify(ctx, s)
	if err != nil {
		return Result{}, err
	}
	c.log.Debug("Converting shape", "file", outputPath, "kind", kind)

	switch kind {
	case kernel.KindEdge:
		points, err := c.kernel.Discretize(ctx, s, c.style.Deflection)
		if err != nil {
			return Result{}, err
		}
		id := "edg" + c.newID()
		if err := c.writePolyline(outputPath, id, points); err != nil {
			return Result{}, err
		}
		c.register(c.style.record(id, kind))
		return Result{Kind: WroteEdgeArtifact, ID: id}, nil

	case kernel.KindWire:
		edges, err := c.kernel.OrderedEdges(ctx, s)
		if err != nil {
			return Result{}, err
		}
		var points []kernel.Point
		for _, e := range edges {
			p, err := c.kernel.Discretize(ctx, e, c.style.Deflection)
			if err != nil {
				return Result{}, err
			}
			points = append(points, p...)
		}
		id := "wir" + c.newID()
		if err := c.writePolyline(outputPath, id, points); err != nil {
			return Result{}, err
		}
		c.register(c.style.record(id, kind))
		return Result{Kind: WroteWireArtifact, ID: id}, nil

	default:
		raw := c.newID()
		data, err := c.kernel.Tessellate(ctx, s, kernel.TessellateOptions{
			Quality:     c.style.MeshQuality,
			ExportEdges: c.style.ExportEdges,
			ID:          raw,
		})
		if err != nil {
			return Result{}, err
		}
		if err := fileutils.AtomicWrite(outputPath, data); err != nil {
			return Result{}, err
		}
		id := "shp" + raw
		c.register(c.style.record(id, kind))
		return Result{Kind: WroteMeshArtifact, ID: id}, nil
	}
}

func (c *Converter) writePolyline(path, id string, points []kernel.Point) error {
	data, err := NewBufferGeometry(id, c.kernel.Name(), points).Marshal()
	if err != nil {
		return fmt.Errorf("could not encode geometry: %v", err)
	}
	return fileutils.AtomicWrite(path, data)
}

func (c *Converter) register(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.styles[r.ID] = r
}

// Styles returns a copy of the styling recorded for the shapes converted so far.
func (c *Converter) Styles() map[string]Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.styles)
}
