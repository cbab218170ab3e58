package router

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/cadracks/cad2web/internal/models"
	"github.com/cadracks/cad2web/internal/script"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Format is the format of a conversion input.
type Format string

const (
	// FormatSTEP is a STEP file.
	FormatSTEP Format = "step"
	// FormatIGES is an IGES file.
	FormatIGES Format = "iges"
	// FormatBREP is a BREP file.
	FormatBREP Format = "brep"
	// FormatSTL is an STL file.
	FormatSTL Format = "stl"
	// FormatFreeCAD is a FreeCAD .FCStd archive.
	FormatFreeCAD Format = "freecad"
	// FormatStepzip is a Stepzip archive.
	FormatStepzip Format = "stepzip"
	// FormatScript is a CAD script.
	FormatScript Format = "script"
)

// Neutral returns the kernel format of neutral exchange formats.
func (f Format) Neutral() (kernel.Format, bool) {
	switch f {
	case FormatSTEP:
		return kernel.FormatSTEP, true
	case FormatIGES:
		return kernel.FormatIGES, true
	case FormatBREP:
		return kernel.FormatBREP, true
	case FormatSTL:
		return kernel.FormatSTL, true
	default:
		return "", false
	}
}

var extensions = map[string]Format{
	".step":    FormatSTEP,
	".stp":     FormatSTEP,
	".iges":    FormatIGES,
	".igs":     FormatIGES,
	".brep":    FormatBREP,
	".brp":     FormatBREP,
	".stl":     FormatSTL,
	".fcstd":   FormatFreeCAD,
	".stepzip": FormatStepzip,
	".py":      FormatScript,
}

// Classify returns the format of the file at path, from its extension.
func Classify(path string) (Format, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", models.ErrInputNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("could not stat input: %v", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", models.ErrUnsupportedContent, path)
	}

	f, ok := extensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("%w: unknown extension for %s", models.ErrUnsupportedContent, filepath.Base(path))
	}
	return f, nil
}

// ScanMarkers returns the mode of a script from the bindings it mentions.
// When several bindings are mentioned, assemblies win over assembly, which wins over shapes, then shape.
// The script is decoded as UTF-8 unless it starts with a UTF-16 byte order mark.
func ScanMarkers(r io.Reader) (script.Mode, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	found := make(map[script.Mode]bool)
	s := bufio.NewScanner(decoded)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Text()
		for _, m := range script.Modes {
			if strings.Contains(line, m.Binding()) {
				found[m] = true
			}
		}
	}
	if err := s.Err(); err != nil {
		return 0, fmt.Errorf("could not read script: %v", err)
	}

	for i := len(script.Modes) - 1; i >= 0; i-- {
		if found[script.Modes[i]] {
			return script.Modes[i], nil
		}
	}
	return 0, fmt.Errorf("%w: script defines none of the recognized bindings", models.ErrUnsupportedContent)
}
