// Package script resolves CAD scripts into the shapes they define.
//
// Scripts are never interpreted in process: a plugin runner evaluates them and exports the bound
// shapes as geometry files. Assembly scripts are loaded from a project fetched with git.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cadracks/cad2web/internal/git"
	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/cadracks/cad2web/internal/models"
	"github.com/cadracks/cad2web/internal/pipeline"
)

// Resolution is the outcome of resolving a script.
type Resolution struct {
	Records []pipeline.Record // Records are the shapes to convert, in output order.

	cleanup []string
	log     *slog.Logger
}

// Cleanup removes the work and clone directories created while resolving.
func (r Resolution) Cleanup() {
	for _, dir := range r.cleanup {
		if err := os.RemoveAll(dir); err != nil {
			r.log.Warn("Failed to remove directory", "dir", dir, "err", err)
		}
	}
}

// Resolver turns scripts into shape records.
type Resolver struct {
	runner *Runner
	log    *slog.Logger
}

// NewResolver returns a Resolver evaluating scripts with runner.
func NewResolver(runner *Runner, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{runner: runner, log: log}
}

// Resolve evaluates the script of job for mode.
//
// In assembly modes, the remote project of job is cloned into the target directory and the script is
// loaded from the clone. Records are keyed on the bytes of the job input in every mode, with ordinals
// sequential across assemblies. The caller must call Cleanup once the records are converted, even on error.
func (r *Resolver) Resolve(ctx context.Context, job models.Job, mode Mode) (res Resolution, err error) {
	res.log = r.log
	defer func() {
		if err != nil {
			res.Cleanup()
			res.cleanup = nil
		}
	}()

	scriptPath := job.InputPath
	if mode.Remote() {
		repo, err := git.Clone(ctx, job.TargetDir, job.Remote, r.log)
		if err != nil {
			return res, err
		}
		res.cleanup = append(res.cleanup, repo.Dir())

		if !filepath.IsLocal(job.Remote.PathFromProjectRoot) {
			return res, fmt.Errorf("%w: invalid path from project root %q", models.ErrUnsupportedContent, job.Remote.PathFromProjectRoot)
		}
		scriptPath = filepath.Join(repo.Dir(), job.Remote.PathFromProjectRoot)
	}
	if _, err := os.Stat(scriptPath); errors.Is(err, os.ErrNotExist) {
		return res, fmt.Errorf("%w: %s", models.ErrInputNotFound, scriptPath)
	}

	if err := os.MkdirAll(job.TargetDir, 0750); err != nil {
		return res, fmt.Errorf("could not create target directory: %v", err)
	}
	workDir, err := os.MkdirTemp(job.TargetDir, ".script-*")
	if err != nil {
		return res, fmt.Errorf("could not create work directory: %v", err)
	}
	res.cleanup = append(res.cleanup, workDir)

	d, err := r.runner.Evaluate(ctx, scriptPath, mode, workDir)
	if err != nil {
		return res, err
	}

	var parts []Part
	parts = append(parts, d.Shapes...)
	for _, a := range d.Assemblies {
		r.log.Debug("Resolved assembly", "script", scriptPath, "assembly", a.Name, "parts", len(a.Parts))
		parts = append(parts, a.Parts...)
	}

	for i, p := range parts {
		rec, err := record(p, filepath.Dir(scriptPath))
		if err != nil {
			return res, fmt.Errorf("%w: %s: part %d: %v", models.ErrUnsupportedContent, scriptPath, i, err)
		}
		rec.Source = job.InputPath
		rec.Ordinal = i
		res.Records = append(res.Records, rec)
	}

	r.log.Info("Resolved script", "script", scriptPath, "mode", mode, "shapes", len(res.Records))
	return res, nil
}

func record(p Part, scriptDir string) (pipeline.Record, error) {
	if p.File == "" {
		return pipeline.Record{}, errors.New("no geometry file")
	}
	file := p.File
	if !filepath.IsAbs(file) {
		file = filepath.Join(scriptDir, file)
	}

	var format kernel.Format
	var err error
	if p.Format == "" {
		format, err = kernel.FormatFromPath(file)
	} else {
		format, err = kernel.ParseFormat(p.Format)
	}
	if err != nil {
		return pipeline.Record{}, err
	}

	rec := pipeline.Record{Name: p.Name, File: file, Format: format}
	if p.Transform != nil {
		t, err := models.NewTransform(p.Transform)
		if err != nil {
			return pipeline.Record{}, err
		}
		rec.Transform = &t
	}
	return rec, nil
}
