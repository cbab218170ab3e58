package models_test

import (
	"errors"
	"testing"

	"github.com/cadracks/cad2web/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestVisibility(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		v models.Visibility

		wantString   string
		wantIncluded bool
	}{
		"Visible is included":   {v: models.VisibilityVisible, wantString: "visible", wantIncluded: true},
		"Hidden is excluded":    {v: models.VisibilityHidden, wantString: "hidden"},
		"Unknown is excluded":   {v: models.VisibilityUnknown, wantString: "unknown"},
		"Zero value is unknown": {wantString: "unknown"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.wantString, tc.v.String())
			assert.Equal(t, tc.wantIncluded, tc.v.Included())

			data, err := yaml.Marshal(tc.v)
			require.NoError(t, err)
			var got models.Visibility
			require.NoError(t, yaml.Unmarshal(data, &got))
			assert.Equal(t, tc.v, got)
		})
	}
}

func TestVisibilityUnmarshalInvalid(t *testing.T) {
	t.Parallel()

	var v models.Visibility
	require.Error(t, yaml.Unmarshal([]byte("maybe"), &v))
}

func TestBoundingBox(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		a, b models.BoundingBox

		wantUnion models.BoundingBox
		wantMax   float64
	}{
		"Disjoint boxes": {
			a:         models.BoundingBox{XMax: 1, YMax: 1, ZMax: 1},
			b:         models.BoundingBox{XMin: 2, YMin: 2, ZMin: 2, XMax: 5, YMax: 5, ZMax: 5},
			wantUnion: models.BoundingBox{XMax: 5, YMax: 5, ZMax: 5},
			wantMax:   5,
		},
		"Nested boxes": {
			a:         models.BoundingBox{XMin: -1, YMin: -2, ZMin: -3, XMax: 1, YMax: 2, ZMax: 3},
			b:         models.BoundingBox{XMax: 1, YMax: 1, ZMax: 1},
			wantUnion: models.BoundingBox{XMin: -1, YMin: -2, ZMin: -3, XMax: 1, YMax: 2, ZMax: 3},
			wantMax:   6,
		},
		"Flat box": {
			a:         models.BoundingBox{XMax: 10, YMax: 4},
			b:         models.BoundingBox{XMax: 10, YMax: 4},
			wantUnion: models.BoundingBox{XMax: 10, YMax: 4},
			wantMax:   10,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := tc.a.Union(tc.b)
			assert.Equal(t, tc.wantUnion, got)
			assert.Equal(t, got, tc.b.Union(tc.a), "Union should be commutative")
			assert.InDelta(t, tc.wantMax, got.MaxDimension(), 1e-12)
		})
	}
}

func TestTransform(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		values []float64
		point  [3]float64

		want    [3]float64
		wantErr bool
	}{
		"Identity": {values: func() []float64 { i := models.Identity(); return i[:] }(), point: [3]float64{1, 2, 3}, want: [3]float64{1, 2, 3}},
		"Translation": {
			values: []float64{1, 0, 0, 10, 0, 1, 0, 20, 0, 0, 1, 30},
			point:  [3]float64{1, 2, 3},
			want:   [3]float64{11, 22, 33},
		},
		"Rotation around z": {
			values: []float64{0, -1, 0, 0, 1, 0, 0, 0, 0, 0, 1, 0},
			point:  [3]float64{1, 0, 5},
			want:   [3]float64{0, 1, 5},
		},

		"Error on too few values":  {values: []float64{1, 0, 0}, wantErr: true},
		"Error on too many values": {values: make([]float64, 16), wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tr, err := models.NewTransform(tc.values)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, tr.Apply(tc.point))
		})
	}
}

func TestErrNullShapeIsGeometryImport(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, models.ErrNullShape, models.ErrGeometryImport)
	require.False(t, errors.Is(models.ErrGeometryImport, models.ErrNullShape), "Generic import errors are not null shapes")
}
