// Package kerneltest provides a fake geometry kernel for tests.
//
// The fake kernel imports small text files describing a single shape:
//
//	box XMIN YMIN ZMIN XMAX YMAX ZMAX
//	edge X Y Z X Y Z ...
//	wire X Y Z X Y Z ... | X Y Z ...
//	null
//
// Wires list their edges in connectivity order, separated by "|".
package kerneltest

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/cadracks/cad2web/internal/models"
)

type shape struct {
	id     string
	kind   kernel.Kind
	box    models.BoundingBox
	points []kernel.Point
	edges  []string
}

func (s *shape) ID() string { return s.id }

// Kernel is an in-memory kernel.Kernel.
type Kernel struct {
	mu     sync.Mutex
	shapes map[string]*shape
	next   int

	// Counters of the kernel calls, for asserting cache behavior.
	Imports       int
	Tessellations int
	Discretized   int
	Released      int

	// ImportErr, if set, is returned by every Import call.
	ImportErr error
	// TessellateErr, if set, is returned by every Tessellate call.
	TessellateErr error
	// TessellateDelay slows down every Tessellate call.
	TessellateDelay time.Duration
}

// NewKernel returns an empty fake kernel.
func NewKernel() *Kernel {
	return &Kernel{shapes: make(map[string]*shape)}
}

// Name implements kernel.Kernel.
func (k *Kernel) Name() string {
	return "fake-kernel"
}

func (k *Kernel) add(s *shape) *shape {
	k.next++
	s.id = fmt.Sprintf("shape-%d", k.next)
	k.shapes[s.id] = s
	return s
}

func (k *Kernel) get(s kernel.Shape) (*shape, error) {
	got, ok := k.shapes[s.ID()]
	if !ok {
		return nil, fmt.Errorf("unknown shape %q", s.ID())
	}
	return got, nil
}

// Import implements kernel.Kernel.
func (k *Kernel) Import(_ context.Context, path string, _ kernel.Format) (kernel.Shape, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.Imports++
	if k.ImportErr != nil {
		return nil, k.ImportErr
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGeometryImport, err)
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty file %s", models.ErrGeometryImport, path)
	}

	switch fields[0] {
	case "null":
		return nil, fmt.Errorf("%w: %s", models.ErrNullShape, path)
	case "box":
		v, err := floats(fields[1:])
		if err != nil || len(v) != 6 {
			return nil, fmt.Errorf("%w: invalid box in %s", models.ErrGeometryImport, path)
		}
		return k.add(&shape{kind: kernel.KindShape, box: models.BoundingBox{
			XMin: v[0], YMin: v[1], ZMin: v[2], XMax: v[3], YMax: v[4], ZMax: v[5]}}), nil
	case "edge":
		e, err := k.edge(fields[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v in %s", models.ErrGeometryImport, err, path)
		}
		return e, nil
	case "wire":
		w := &shape{kind: kernel.KindWire}
		var all []kernel.Point
		for _, part := range strings.Split(strings.Join(fields[1:], " "), "|") {
			e, err := k.edge(strings.Fields(part))
			if err != nil {
				return nil, fmt.Errorf("%w: %v in %s", models.ErrGeometryImport, err, path)
			}
			w.edges = append(w.edges, e.id)
			all = append(all, e.points...)
		}
		w.box = boxOf(all)
		return k.add(w), nil
	default:
		return nil, fmt.Errorf("%w: unknown shape %q in %s", models.ErrGeometryImport, fields[0], path)
	}
}

func (k *Kernel) edge(fields []string) (*shape, error) {
	v, err := floats(fields)
	if err != nil {
		return nil, err
	}
	if len(v) < 6 || len(v)%3 != 0 {
		return nil, fmt.Errorf("an edge needs at least 2 points")
	}
	var points []kernel.Point
	for i := 0; i < len(v); i += 3 {
		points = append(points, kernel.Point{v[i], v[i+1], v[i+2]})
	}
	return k.add(&shape{kind: kernel.KindEdge, points: points, box: boxOf(points)}), nil
}

// Classify implements kernel.Kernel.
func (k *Kernel) Classify(_ context.Context, s kernel.Shape) (kernel.Kind, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	got, err := k.get(s)
	if err != nil {
		return kernel.KindShape, err
	}
	return got.kind, nil
}

// BoundingBox implements kernel.Kernel.
func (k *Kernel) BoundingBox(_ context.Context, s kernel.Shape) (models.BoundingBox, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	got, err := k.get(s)
	if err != nil {
		return models.BoundingBox{}, err
	}
	return got.box, nil
}

// OrderedEdges implements kernel.Kernel.
func (k *Kernel) OrderedEdges(_ context.Context, wire kernel.Shape) ([]kernel.Shape, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	got, err := k.get(wire)
	if err != nil {
		return nil, err
	}
	var edges []kernel.Shape
	for _, id := range got.edges {
		edges = append(edges, k.shapes[id])
	}
	return edges, nil
}

// Discretize implements kernel.Kernel.
func (k *Kernel) Discretize(_ context.Context, edge kernel.Shape, _ float64) ([]kernel.Point, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.Discretized++
	got, err := k.get(edge)
	if err != nil {
		return nil, err
	}
	return got.points, nil
}

// Tessellate implements kernel.Kernel.
func (k *Kernel) Tessellate(_ context.Context, s kernel.Shape, opts kernel.TessellateOptions) ([]byte, error) {
	time.Sleep(k.TessellateDelay)

	k.mu.Lock()
	defer k.mu.Unlock()

	k.Tessellations++
	if k.TessellateErr != nil {
		return nil, k.TessellateErr
	}
	if _, err := k.get(s); err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf(`{"uuid":%q,"generator":"fake-kernel"}`, opts.ID)), nil
}

// Transform implements kernel.Kernel. Only the translation part is applied to the bounding box.
func (k *Kernel) Transform(_ context.Context, s kernel.Shape, t models.Transform) (kernel.Shape, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	got, err := k.get(s)
	if err != nil {
		return nil, err
	}
	moved := *got
	moved.box = models.BoundingBox{
		XMin: got.box.XMin + t[3], YMin: got.box.YMin + t[7], ZMin: got.box.ZMin + t[11],
		XMax: got.box.XMax + t[3], YMax: got.box.YMax + t[7], ZMax: got.box.ZMax + t[11],
	}
	return k.add(&moved), nil
}

// Release implements kernel.Kernel.
func (k *Kernel) Release(_ context.Context, s kernel.Shape) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.Released++
	delete(k.shapes, s.ID())
	return nil
}

// Calls returns the import and tessellation counters under lock.
func (k *Kernel) Calls() (imports, tessellations int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Imports, k.Tessellations
}

func floats(fields []string) ([]float64, error) {
	v := make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		v = append(v, x)
	}
	return v, nil
}

func boxOf(points []kernel.Point) models.BoundingBox {
	if len(points) == 0 {
		return models.BoundingBox{}
	}
	b := models.BoundingBox{
		XMin: points[0][0], YMin: points[0][1], ZMin: points[0][2],
		XMax: points[0][0], YMax: points[0][1], ZMax: points[0][2],
	}
	for _, p := range points[1:] {
		b = b.Union(models.BoundingBox{XMin: p[0], YMin: p[1], ZMin: p[2], XMax: p[0], YMax: p[1], ZMax: p[2]})
	}
	return b
}
