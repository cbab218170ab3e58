// Package pipeline converts an ordered sequence of shape records into artifacts and their descriptor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/cadracks/cad2web/internal/cache"
	"github.com/cadracks/cad2web/internal/converter"
	"github.com/cadracks/cad2web/internal/descriptor"
	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/cadracks/cad2web/internal/metrics"
	"github.com/cadracks/cad2web/internal/models"
)

// Record is a shape to convert. It is consumed once by Run.
type Record struct {
	Name      string            // Name is the display name of the shape, if any.
	Source    string            // Source is the file whose bytes key the artifact in the cache.
	Ordinal   int               // Ordinal is the position of the shape in the output of Source.
	File      string            // File is the geometry file imported through the kernel.
	Format    kernel.Format     // Format is the format of File.
	Transform *models.Transform // Transform, if set, moves the imported shape.
}

// label identifies the record in logs.
func (r Record) label() string {
	if r.Name != "" {
		return r.Name
	}
	return filepath.Base(r.File)
}

// Result summarizes a run.
type Result struct {
	Boxes      []models.BoundingBox         // Boxes are the bounding boxes of the converted shapes.
	Artifacts  []string                     // Artifacts are the artifact file names, in conversion order.
	Counts     map[converter.ResultKind]int // Counts are the conversions per outcome.
	Failures   []string                     // Failures are the labels of the skipped records.
	Scale      float64                      // Scale is the scene scale written to the descriptor.
	Descriptor string                       // Descriptor is the path of the written descriptor.
}

// RunOptions drives a single run.
type RunOptions struct {
	// Isolate skips records failing with a geometry import error instead of aborting the run.
	Isolate bool
}

// Pipeline runs conversions sequentially.
type Pipeline struct {
	kernel    kernel.Kernel
	cache     *cache.Cache
	converter *converter.Converter
	bounds    *Bounds
	metrics   *metrics.Metrics
	log       *slog.Logger
}

type options struct {
	bounds  *Bounds
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Options represents an optional function to override Pipeline default values.
type Options func(*options)

// WithMetrics records the conversions into m.
func WithMetrics(m *metrics.Metrics) Options {
	return func(o *options) {
		o.metrics = m
	}
}

// WithBounds shares b with other pipelines, so that the artifacts they converted are reused without
// importing their shapes again.
func WithBounds(b *Bounds) Options {
	return func(o *options) {
		o.bounds = b
	}
}

// WithLogger sets the logger used by the pipeline.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Pipeline importing shapes through k, naming artifacts with c and converting them with conv.
func New(k kernel.Kernel, c *cache.Cache, conv *converter.Converter, args ...Options) *Pipeline {
	opts := options{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.bounds == nil {
		opts.bounds = NewBounds()
	}

	return &Pipeline{
		kernel:    k,
		cache:     c,
		converter: conv,
		bounds:    opts.bounds,
		metrics:   opts.metrics,
		log:       opts.log,
	}
}

// Run converts records in order, then writes the descriptor at descriptorPath.
//
// With opts.Isolate, a record failing with models.ErrGeometryImport is logged and skipped. Any other error,
// or any error without opts.Isolate, aborts the run before the descriptor is written. Artifacts already
// written are kept. A run where no record succeeds fails with models.ErrGeometryImport.
func (p *Pipeline) Run(ctx context.Context, records []Record, descriptorPath string, opts RunOptions) (Result, error) {
	res := Result{Counts: make(map[converter.ResultKind]int)}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		box, name, kind, err := p.process(ctx, rec)
		if err != nil {
			if opts.Isolate && errors.Is(err, models.ErrGeometryImport) {
				p.log.Error("Skipping shape that failed to import", "input", rec.Source, "entry", rec.label(), "err", err)
				p.metrics.EntryFailure()
				res.Failures = append(res.Failures, rec.label())
				continue
			}
			return res, fmt.Errorf("could not convert %s: %w", rec.label(), err)
		}

		res.Boxes = append(res.Boxes, box)
		res.Artifacts = append(res.Artifacts, name)
		res.Counts[kind]++
		if kind == converter.Skipped {
			p.metrics.CacheHit()
		} else {
			p.metrics.Artifact(kind.String())
		}
	}

	scale, err := descriptor.Build(descriptorPath, res.Boxes, res.Artifacts)
	if err != nil {
		return res, err
	}
	res.Scale = scale
	res.Descriptor = descriptorPath
	p.log.Info("Wrote descriptor", "file", descriptorPath, "scale", scale, "artifacts", len(res.Artifacts))

	return res, nil
}

// process converts a single record and returns its bounding box and artifact name.
//
// An existing artifact is never converted again. Its shape is still imported for the bounding box,
// unless the bounds of that artifact were recorded by an earlier run sharing the same Bounds.
func (p *Pipeline) process(ctx context.Context, rec Record) (box models.BoundingBox, name string, kind converter.ResultKind, err error) {
	art, err := p.cache.Resolve(rec.Source, rec.Ordinal)
	if err != nil {
		return box, "", kind, err
	}
	if art.Hit {
		if box, ok := p.bounds.lookup(art.Path, rec.Transform); ok {
			p.log.Debug("Reusing converted shape", "entry", rec.label(), "artifact", art.Base())
			return box, art.Base(), converter.Skipped, nil
		}
	}

	shape, err := p.kernel.Import(ctx, rec.File, rec.Format)
	if err != nil {
		return box, "", kind, err
	}
	defer func() { p.release(ctx, shape) }()

	if rec.Transform != nil {
		moved, err := p.kernel.Transform(ctx, shape, *rec.Transform)
		if err != nil {
			return box, "", kind, err
		}
		p.release(ctx, shape)
		shape = moved
	}

	box, err = p.kernel.BoundingBox(ctx, shape)
	if err != nil {
		return box, "", kind, err
	}

	if art.Hit {
		p.bounds.store(art.Path, rec.Transform, box)
		p.log.Info("Using existing file", "file", art.Path)
		return box, art.Base(), converter.Skipped, nil
	}

	r, err := p.converter.Convert(ctx, shape, art.Path)
	if err != nil {
		return box, "", kind, err
	}
	p.bounds.store(art.Path, rec.Transform, box)
	p.log.Debug("Converted shape", "entry", rec.label(), "artifact", art.Base(), "result", r.Kind, "id", r.ID)

	return box, art.Base(), r.Kind, nil
}

func (p *Pipeline) release(ctx context.Context, s kernel.Shape) {
	if err := p.kernel.Release(ctx, s); err != nil {
		p.log.Warn("Failed to release shape", "shape", s.ID(), "err", err)
	}
}
