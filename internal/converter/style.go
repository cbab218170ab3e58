package converter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cadracks/cad2web/internal/kernel"
)

// Color is an RGB color with components in [0, 1].
type Color [3]float64

// Style holds the rendering attributes applied to converted shapes.
type Style struct {
	Color        Color   `toml:"color"`
	Specular     Color   `toml:"specular"`
	Shininess    float64 `toml:"shininess"`
	Transparency float64 `toml:"transparency"`
	LineColor    Color   `toml:"line_color"`
	LineWidth    float64 `toml:"line_width"`
	MeshQuality  float64 `toml:"mesh_quality"`
	ExportEdges  bool    `toml:"export_edges"`
	Deflection   float64 `toml:"deflection"`
}

// DefaultStyle returns the style used when no style file is configured.
func DefaultStyle() Style {
	return Style{
		Color:        Color{0.65, 0.65, 0.65},
		Specular:     Color{1, 1, 1},
		Shininess:    0.9,
		Transparency: 0,
		LineColor:    Color{0, 0, 0},
		LineWidth:    2,
		MeshQuality:  1,
		ExportEdges:  false,
		Deflection:   0.1,
	}
}

// LoadStyle reads a TOML style file. Keys missing from the file keep their default value.
func LoadStyle(path string) (s Style, err error) {
	s = DefaultStyle()
	md, err := toml.DecodeFile(path, &s)
	if err != nil {
		return Style{}, fmt.Errorf("could not load style file %s: %v", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Style{}, fmt.Errorf("unknown keys in style file %s: %s", path, strings.Join(keys, ", "))
	}
	if err := s.validate(); err != nil {
		return Style{}, fmt.Errorf("invalid style file %s: %v", path, err)
	}
	return s, nil
}

func (s Style) validate() error {
	var errs []error
	for name, c := range map[string]Color{"color": s.Color, "specular": s.Specular, "line_color": s.LineColor} {
		if _, err := ColorToHex(c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %v", name, err))
		}
	}
	if s.Transparency < 0 || s.Transparency > 1 {
		errs = append(errs, fmt.Errorf("transparency must be in [0, 1], got %v", s.Transparency))
	}
	if s.LineWidth <= 0 {
		errs = append(errs, fmt.Errorf("line_width must be positive, got %v", s.LineWidth))
	}
	if s.MeshQuality <= 0 {
		errs = append(errs, fmt.Errorf("mesh_quality must be positive, got %v", s.MeshQuality))
	}
	if s.Deflection <= 0 {
		errs = append(errs, fmt.Errorf("deflection must be positive, got %v", s.Deflection))
	}
	return errors.Join(errs...)
}

// ColorToHex formats a color as "0xRRGGBB".
func ColorToHex(c Color) (string, error) {
	var b [3]int
	for i, v := range c {
		if v < 0 || v > 1 {
			return "", fmt.Errorf("color component %d out of range [0, 1]: %v", i, v)
		}
		b[i] = int(v * 255)
	}
	return fmt.Sprintf("0x%02x%02x%02x", b[0], b[1], b[2]), nil
}

// Record is the styling registered for a converted shape.
type Record struct {
	ID        string
	Kind      kernel.Kind
	Color     string
	LineWidth float64

	// Only set for general shapes.
	Specular     string
	Shininess    float64
	Transparency float64
	LineColor    string
}

func (s Style) record(id string, kind kernel.Kind) Record {
	// Colors are validated on load.
	color, _ := ColorToHex(s.Color)
	r := Record{ID: id, Kind: kind, Color: color, LineWidth: s.LineWidth}
	if kind == kernel.KindShape {
		r.Specular, _ = ColorToHex(s.Specular)
		r.LineColor, _ = ColorToHex(s.LineColor)
		r.Shininess = s.Shininess
		r.Transparency = s.Transparency
	}
	return r
}
