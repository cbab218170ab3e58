package converter

import (
	"encoding/json"

	"github.com/cadracks/cad2web/internal/kernel"
)

// geometryVersion is the three.js JSON object format version.
const geometryVersion = 4.4

// BufferGeometry is the three.js JSON document of a polyline.
type BufferGeometry struct {
	Metadata GeometryMetadata `json:"metadata"`
	UUID     string           `json:"uuid"`
	Type     string           `json:"type"`
	Data     GeometryData     `json:"data"`
}

// GeometryMetadata describes the document.
type GeometryMetadata struct {
	Version   float64 `json:"version"`
	Type      string  `json:"type"`
	Generator string  `json:"generator"`
}

// GeometryData holds the geometry attributes.
type GeometryData struct {
	Attributes struct {
		Position PositionAttribute `json:"position"`
	} `json:"attributes"`
}

// PositionAttribute is the flat list of point coordinates.
type PositionAttribute struct {
	ItemSize int       `json:"itemSize"`
	Type     string    `json:"type"`
	Array    []float32 `json:"array"`
}

// NewBufferGeometry returns the document for a sequence of points.
func NewBufferGeometry(id, generator string, points []kernel.Point) BufferGeometry {
	g := BufferGeometry{
		Metadata: GeometryMetadata{Version: geometryVersion, Type: "BufferGeometry", Generator: generator},
		UUID:     id,
		Type:     "BufferGeometry",
	}
	g.Data.Attributes.Position = PositionAttribute{
		ItemSize: 3,
		Type:     "Float32Array",
		Array:    make([]float32, 0, 3*len(points)),
	}
	for _, p := range points {
		g.Data.Attributes.Position.Array = append(g.Data.Attributes.Position.Array,
			float32(p[0]), float32(p[1]), float32(p[2]))
	}
	return g
}

// Marshal encodes the document.
func (g BufferGeometry) Marshal() ([]byte, error) {
	return json.Marshal(g)
}
