// Package descriptor writes the scene descriptor read by the viewer.
//
// A descriptor is a text file named after the converted input. Its first line is the scene scale, the
// largest span of the bounding box of all converted shapes. Each following line is an artifact file name,
// in conversion order. There is no trailing newline.
package descriptor

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cadracks/cad2web/internal/fileutils"
	"github.com/cadracks/cad2web/internal/models"
)

// Extension is appended to the input file name to name its descriptor.
const Extension = ".dat"

// ErrNoBounds is returned when no shape was converted.
var ErrNoBounds = errors.New("no bounds to reduce")

// Reduce returns the smallest box containing all boxes.
func Reduce(boxes []models.BoundingBox) (models.BoundingBox, error) {
	if len(boxes) == 0 {
		return models.BoundingBox{}, ErrNoBounds
	}
	b := boxes[0]
	for _, o := range boxes[1:] {
		b = b.Union(o)
	}
	return b, nil
}

// Scale returns the scene scale of a box.
func Scale(b models.BoundingBox) float64 {
	return b.MaxDimension()
}

// FormatScale formats a scale as a decimal number that always shows a fractional part or an exponent.
// Numbers in [1e-4, 1e16) use positional notation.
func FormatScale(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	var s string
	if abs := math.Abs(v); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		s = strconv.FormatFloat(v, 'e', -1, 64)
	} else {
		s = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Format returns the descriptor content.
func Format(scale float64, names []string) []byte {
	lines := append([]string{FormatScale(scale)}, names...)
	return []byte(strings.Join(lines, "\n"))
}

// Write writes the descriptor at path, replacing any previous one.
func Write(path string, scale float64, names []string) error {
	if err := fileutils.AtomicWrite(path, Format(scale, names)); err != nil {
		return fmt.Errorf("could not write descriptor: %v", err)
	}
	return nil
}

// Path returns the descriptor path for the input file named inputBase.
func Path(targetDir, inputBase string) string {
	return filepath.Join(targetDir, filepath.Base(inputBase)+Extension)
}

// Build reduces boxes and writes the descriptor listing names at path. It returns the scene scale.
func Build(path string, boxes []models.BoundingBox, names []string) (float64, error) {
	b, err := Reduce(boxes)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrGeometryImport, err)
	}
	scale := Scale(b)
	if err := Write(path, scale, names); err != nil {
		return 0, err
	}
	return scale, nil
}
