// Package archive extracts the zip containers holding CAD documents.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cadracks/cad2web/internal/models"
	"github.com/klauspost/compress/zip"
)

// ErrUnsafePath is returned when an entry would be written outside of the extraction directory.
var ErrUnsafePath = errors.New("archive entry escapes extraction directory")

type options struct {
	log *slog.Logger
}

// Options represents an optional function to override Extract default values.
type Options func(*options)

// WithLogger sets the logger used while extracting.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// Extract unpacks the zip archive at path into dir and returns the extracted files, relative to dir,
// in archive order. Only regular files and directories are extracted.
func Extract(ctx context.Context, path, dir string, args ...Options) (files []string, err error) {
	opts := options{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	r, err := zip.OpenReader(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", models.ErrInputNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not a valid zip archive: %v", models.ErrUnsupportedContent, path, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("could not create extraction directory: %v", err)
	}

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name := filepath.FromSlash(f.Name)
		if !filepath.IsLocal(name) {
			return nil, fmt.Errorf("%w: %q", ErrUnsafePath, f.Name)
		}
		target := filepath.Join(dir, name)

		switch {
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(target, 0750); err != nil {
				return nil, fmt.Errorf("could not create directory %q: %v", f.Name, err)
			}
		case f.Mode().IsRegular():
			if err := extractFile(f, target); err != nil {
				return nil, err
			}
			files = append(files, name)
		default:
			opts.log.Debug("Skipping non regular archive entry", "archive", path, "entry", f.Name)
		}
	}

	return files, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0750); err != nil {
		return fmt.Errorf("could not create directory for %q: %v", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("could not open archive entry %q: %v", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("could not create %q: %v", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return fmt.Errorf("could not extract %q: %v", f.Name, err)
	}
	return out.Close()
}
