// Package stepzip reads Stepzip archives: a STEP geometry file zipped with an optional anchors definition.
package stepzip

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cadracks/cad2web/internal/archive"
	"github.com/cadracks/cad2web/internal/models"
	"gopkg.in/yaml.v3"
)

// Contents are the files found in an extracted Stepzip archive.
type Contents struct {
	Step    string   // Step is the path of the STEP geometry file.
	Anchors []string // Anchors are the names of the anchors defined alongside the geometry, sorted.
}

type options struct {
	log *slog.Logger
}

// Options represents an optional function to override Read default values.
type Options func(*options)

// WithLogger sets the logger used while reading the archive.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// Read extracts the archive into scratchDir and locates its STEP file.
// The archive must hold exactly one STEP file. The anchors file is optional.
func Read(ctx context.Context, archivePath, scratchDir string, args ...Options) (Contents, error) {
	opts := options{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	files, err := archive.Extract(ctx, archivePath, scratchDir, archive.WithLogger(opts.log))
	if err != nil {
		return Contents{}, err
	}

	var steps, anchors []string
	for _, f := range files {
		base := strings.ToLower(filepath.Base(f))
		switch {
		case strings.HasSuffix(base, ".stp"), strings.HasSuffix(base, ".step"):
			steps = append(steps, filepath.Join(scratchDir, f))
		case base == "anchors.json", strings.HasSuffix(base, ".anchors"):
			anchors = append(anchors, filepath.Join(scratchDir, f))
		}
	}

	switch len(steps) {
	case 0:
		return Contents{}, fmt.Errorf("%w: no STEP file in %s", models.ErrUnsupportedContent, filepath.Base(archivePath))
	case 1:
	default:
		return Contents{}, fmt.Errorf("%w: %d STEP files in %s", models.ErrUnsupportedContent, len(steps), filepath.Base(archivePath))
	}

	c := Contents{Step: steps[0]}
	for _, a := range anchors {
		names, err := anchorNames(a)
		if err != nil {
			// Anchors are informative only.
			opts.log.Warn("Ignoring invalid anchors file", "file", a, "err", err)
			continue
		}
		c.Anchors = append(c.Anchors, names...)
	}
	slices.Sort(c.Anchors)
	opts.log.Debug("Read Stepzip archive", "archive", archivePath, "step", c.Step, "anchors", c.Anchors)

	return c, nil
}

// anchorNames decodes an anchors file. It is JSON, which is read as YAML.
func anchorNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Anchors map[string]any `yaml:"anchors"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(doc.Anchors))
	for name := range doc.Anchors {
		names = append(names, name)
	}
	return names, nil
}
