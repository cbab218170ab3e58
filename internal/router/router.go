// Package router classifies conversion inputs and dispatches them to the matching reader.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cadracks/cad2web/internal/cache"
	"github.com/cadracks/cad2web/internal/container/freecad"
	"github.com/cadracks/cad2web/internal/container/stepzip"
	"github.com/cadracks/cad2web/internal/converter"
	"github.com/cadracks/cad2web/internal/descriptor"
	"github.com/cadracks/cad2web/internal/fileutils"
	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/cadracks/cad2web/internal/metrics"
	"github.com/cadracks/cad2web/internal/models"
	"github.com/cadracks/cad2web/internal/pipeline"
	"github.com/cadracks/cad2web/internal/script"
	"github.com/ubuntu/decorate"
)

// ErrNoPluginRunner is returned when a script is converted without a configured plugin runner.
var ErrNoPluginRunner = errors.New("no plugin runner configured")

// Router runs conversion jobs.
type Router struct {
	kernel    kernel.Kernel
	resolver  *script.Resolver
	style     converter.Style
	algorithm cache.Algorithm
	bounds    *pipeline.Bounds
	metrics   *metrics.Metrics
	log       *slog.Logger
}

type options struct {
	resolver  *script.Resolver
	style     converter.Style
	algorithm cache.Algorithm
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// Options represents an optional function to override Router default values.
type Options func(*options)

// WithResolver sets the resolver evaluating scripts. Without it, scripts are rejected.
func WithResolver(r *script.Resolver) Options {
	return func(o *options) {
		o.resolver = r
	}
}

// WithStyle sets the styling applied to the converted shapes.
func WithStyle(s converter.Style) Options {
	return func(o *options) {
		o.style = s
	}
}

// WithAlgorithm sets the hash naming artifacts.
func WithAlgorithm(a cache.Algorithm) Options {
	return func(o *options) {
		o.algorithm = a
	}
}

// WithMetrics records jobs and conversions into m.
func WithMetrics(m *metrics.Metrics) Options {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets the logger used by the router and the components it drives.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Router converting shapes through k.
func New(k kernel.Kernel, args ...Options) *Router {
	opts := options{
		style:     converter.DefaultStyle(),
		algorithm: cache.SHA1,
		log:       slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Router{
		kernel:    k,
		resolver:  opts.resolver,
		style:     opts.style,
		algorithm: opts.algorithm,
		bounds:    pipeline.NewBounds(),
		metrics:   opts.metrics,
		log:       opts.log,
	}
}

// Run converts the input of job into artifacts and a descriptor in the job target directory.
// The input is removed after a successful conversion unless job.KeepOriginal is set.
func (r Router) Run(ctx context.Context, job models.Job) (res pipeline.Result, err error) {
	defer decorate.OnError(&err, "could not convert %s", job.InputPath)

	start := time.Now()
	var format Format
	defer func() {
		label := string(format)
		if label == "" {
			label = "unknown"
		}
		r.metrics.JobDone(label, err, time.Since(start))
	}()

	format, err = Classify(job.InputPath)
	if err != nil {
		return res, err
	}
	r.log.Info("Converting file", "file", job.InputPath, "format", format, "target", job.TargetDir)

	c, err := cache.New(job.TargetDir, cache.WithAlgorithm(r.algorithm), cache.WithLogger(r.log))
	if err != nil {
		return res, err
	}
	conv := converter.New(r.kernel, converter.WithStyle(r.style), converter.WithLogger(r.log))
	p := pipeline.New(r.kernel, c, conv,
		pipeline.WithBounds(r.bounds), pipeline.WithMetrics(r.metrics), pipeline.WithLogger(r.log))
	descriptorPath := descriptor.Path(job.TargetDir, filepath.Base(job.InputPath))

	var records []pipeline.Record
	var runOpts pipeline.RunOptions

	switch format {
	case FormatFreeCAD:
		scratch, err := scratchDir(job)
		if err != nil {
			return res, err
		}
		defer r.removeScratch(scratch)
		if records, err = r.freecadRecords(ctx, job.InputPath, scratch); err != nil {
			return res, err
		}
		runOpts.Isolate = true
	case FormatStepzip:
		scratch, err := scratchDir(job)
		if err != nil {
			return res, err
		}
		defer r.removeScratch(scratch)
		contents, err := stepzip.Read(ctx, job.InputPath, scratch, stepzip.WithLogger(r.log))
		if err != nil {
			return res, err
		}
		records = []pipeline.Record{{Source: job.InputPath, File: contents.Step, Format: kernel.FormatSTEP}}
	case FormatScript:
		resolution, err := r.resolveScript(ctx, job)
		if err != nil {
			return res, err
		}
		defer resolution.Cleanup()
		records = resolution.Records
	default:
		kf, ok := format.Neutral()
		if !ok {
			return res, fmt.Errorf("%w: no handler for %s", models.ErrUnsupportedContent, format)
		}
		records = []pipeline.Record{{Source: job.InputPath, File: job.InputPath, Format: kf}}
	}

	res, err = p.Run(ctx, records, descriptorPath, runOpts)
	if err != nil {
		return res, err
	}
	r.log.Debug("Conversion summary", "file", job.InputPath, "artifacts", len(res.Artifacts),
		"cached", res.Counts[converter.Skipped], "failures", len(res.Failures))

	fileutils.RemoveOriginal(r.log, job.InputPath, job.KeepOriginal)
	return res, nil
}

// freecadRecords returns a record per visible object of the archive, keyed on the extracted geometry file
// with the object position in the manifest as ordinal.
func (r Router) freecadRecords(ctx context.Context, archivePath, scratch string) ([]pipeline.Record, error) {
	entries, err := freecad.Read(ctx, archivePath, scratch, freecad.WithLogger(r.log))
	if err != nil {
		return nil, err
	}

	var records []pipeline.Record
	for i, e := range entries {
		if !e.Visibility.Included() {
			r.log.Debug("Skipping object", "entry", e.Name, "visibility", e.Visibility)
			continue
		}
		f, err := kernel.FormatFromPath(e.File)
		if err != nil {
			f = kernel.FormatBREP
		}
		file := filepath.Join(scratch, e.File)
		records = append(records, pipeline.Record{
			Name:    e.Name,
			Source:  file,
			Ordinal: i,
			File:    file,
			Format:  f,
		})
	}
	return records, nil
}

// resolveScript scans the script of job for its mode and evaluates it.
func (r Router) resolveScript(ctx context.Context, job models.Job) (script.Resolution, error) {
	if r.resolver == nil {
		return script.Resolution{}, fmt.Errorf("%w: %w", models.ErrUnsupportedContent, ErrNoPluginRunner)
	}

	f, err := os.Open(job.InputPath)
	if err != nil {
		return script.Resolution{}, fmt.Errorf("could not open script: %v", err)
	}
	mode, err := ScanMarkers(f)
	f.Close()
	if err != nil {
		return script.Resolution{}, err
	}
	r.log.Debug("Detected script mode", "file", job.InputPath, "mode", mode)

	return r.resolver.Resolve(ctx, job, mode)
}

func (r Router) removeScratch(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.log.Warn("Failed to remove scratch directory", "dir", dir, "err", err)
	}
}

// scratchDir creates a directory owned by job to extract its archive into.
// It lives in the target directory so that extraction stays on the same filesystem.
func scratchDir(job models.Job) (string, error) {
	dir, err := os.MkdirTemp(job.TargetDir, ".extract-*")
	if err != nil {
		return "", fmt.Errorf("could not create extraction directory: %v", err)
	}
	return dir, nil
}
