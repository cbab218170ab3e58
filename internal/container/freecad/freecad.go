// Package freecad reads the object graph of FreeCAD .FCStd archives.
//
// An archive is a zip holding a Document.xml object list, a GuiDocument.xml view provider list and one
// BREP file per object shape.
package freecad

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cadracks/cad2web/internal/archive"
	"github.com/cadracks/cad2web/internal/models"
)

const (
	documentFile    = "Document.xml"
	guiDocumentFile = "GuiDocument.xml"

	shapeProperty      = "Shape"
	visibilityProperty = "Visibility"
)

// Pair is an object of the object list and the geometry file holding its shape.
type Pair struct {
	Name string
	File string
}

type property struct {
	Name  string `xml:"name,attr"`
	Parts []struct {
		File string `xml:"file,attr"`
	} `xml:"Part"`
	Bools []struct {
		Value string `xml:"value,attr"`
	} `xml:"Bool"`
}

type object struct {
	Name       string     `xml:"name,attr"`
	Properties []property `xml:"Properties>Property"`
}

type document struct {
	Objects    []object `xml:"Objects>Object"`
	ObjectData []object `xml:"ObjectData>Object"`
}

type guiDocument struct {
	ViewProviders []object `xml:"ViewProviderData>ViewProvider"`
}

// ParseDocument returns the (name, file) pairs of the objects with a shape property, in object list order.
// An object referencing several geometry files yields one pair per file.
func ParseDocument(r io.Reader) ([]Pair, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", models.ErrUnsupportedContent, documentFile, err)
	}

	data := make(map[string][]object)
	for _, o := range doc.ObjectData {
		data[o.Name] = append(data[o.Name], o)
	}

	var pairs []Pair
	for _, o := range doc.Objects {
		for _, d := range data[o.Name] {
			for _, p := range d.Properties {
				if p.Name != shapeProperty {
					continue
				}
				for _, part := range p.Parts {
					pairs = append(pairs, Pair{Name: o.Name, File: part.File})
				}
			}
		}
	}
	return pairs, nil
}

// ParseGuiDocument returns the visibility of each view provider.
// The first visibility value of an object wins.
func ParseGuiDocument(r io.Reader) (map[string]models.Visibility, error) {
	var doc guiDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: invalid %s: %v", models.ErrUnsupportedContent, guiDocumentFile, err)
	}

	vis := make(map[string]models.Visibility)
	for _, vp := range doc.ViewProviders {
		if _, ok := vis[vp.Name]; ok {
			continue
		}
		for _, p := range vp.Properties {
			if p.Name != visibilityProperty || len(p.Bools) == 0 {
				continue
			}
			if p.Bools[0].Value == "true" {
				vis[vp.Name] = models.VisibilityVisible
			} else {
				vis[vp.Name] = models.VisibilityHidden
			}
			break
		}
	}
	return vis, nil
}

// Join attaches a visibility to every pair, keeping the object list order.
// Objects without a view provider get an unknown visibility.
func Join(pairs []Pair, vis map[string]models.Visibility) []models.ContainerEntry {
	entries := make([]models.ContainerEntry, 0, len(pairs))
	for _, p := range pairs {
		entries = append(entries, models.ContainerEntry{
			Name:       p.Name,
			File:       p.File,
			Visibility: vis[p.Name],
		})
	}
	return entries
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

// Read extracts the archive into scratchDir and returns its manifest.
// Geometry files of the entries are relative to scratchDir and may not point outside of it.
func Read(ctx context.Context, archivePath, scratchDir string, args ...Options) ([]models.ContainerEntry, error) {
	opts := options{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	if _, err := archive.Extract(ctx, archivePath, scratchDir, archive.WithLogger(opts.log)); err != nil {
		return nil, err
	}

	var pairs []Pair
	if err := parseFile(filepath.Join(scratchDir, documentFile), func(r io.Reader) (err error) {
		pairs, err = ParseDocument(r)
		return err
	}); err != nil {
		return nil, err
	}

	var vis map[string]models.Visibility
	if err := parseFile(filepath.Join(scratchDir, guiDocumentFile), func(r io.Reader) (err error) {
		vis, err = ParseGuiDocument(r)
		return err
	}); err != nil {
		return nil, err
	}

	entries := Join(pairs, vis)
	for _, e := range entries {
		if e.File != "" && !filepath.IsLocal(filepath.FromSlash(e.File)) {
			return nil, fmt.Errorf("%w: %w: object %s references %q", models.ErrUnsupportedContent, archive.ErrUnsafePath, e.Name, e.File)
		}
	}
	opts.log.Debug("Read FreeCAD manifest", "archive", archivePath, "entries", len(entries))
	return entries, nil
}

func parseFile(path string, parse func(io.Reader) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: archive has no %s", models.ErrUnsupportedContent, filepath.Base(path))
	}
	if err != nil {
		return fmt.Errorf("could not open %s: %v", filepath.Base(path), err)
	}
	defer f.Close()

	return parse(f)
}
