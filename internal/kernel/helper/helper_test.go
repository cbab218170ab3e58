package helper_test

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/cadracks/cad2web/internal/kernel/helper"
	"github.com/cadracks/cad2web/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "CAD2WEB_WANT_KERNEL_HELPER"

func startHelper(t *testing.T) *helper.Client {
	t.Helper()

	c, err := helper.Start(t.Context(),
		[]string{os.Args[0], "-test.run=TestHelperProcess", "--"},
		helper.WithEnv(helperEnv+"=1"))
	require.NoError(t, err, "Setup: could not start fake kernel helper")
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestStart(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		command []string

		wantErr bool
	}{
		"Handshake succeeds": {command: []string{os.Args[0], "-test.run=TestHelperProcess", "--"}},

		"Error on empty command":       {command: nil, wantErr: true},
		"Error on missing executable":  {command: []string{"/does/not/exist/kernel-helper"}, wantErr: true},
		"Error when helper never talks": {command: []string{"true"}, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c, err := helper.Start(t.Context(), tc.command, helper.WithEnv(helperEnv+"=1"))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "fake-occ", c.Name(), "Kernel name should come from the handshake")
			require.NoError(t, c.Close(), "Helper should exit cleanly once stdin is closed")
		})
	}
}

func TestImport(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		path string

		wantErr error
	}{
		"Imports a shape": {path: "box.brep"},

		"Null shape matches both null and import errors": {path: "null.brep", wantErr: models.ErrNullShape},
		"Broken file is an import error":                 {path: "broken.brep", wantErr: models.ErrGeometryImport},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := startHelper(t)
			s, err := c.Import(t.Context(), tc.path, kernel.FormatBREP)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				require.ErrorIs(t, err, models.ErrGeometryImport)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "shape-1", s.ID())
		})
	}
}

func TestShapeOperations(t *testing.T) {
	t.Parallel()

	c := startHelper(t)
	ctx := t.Context()

	s, err := c.Import(ctx, "wire.brep", kernel.FormatBREP)
	require.NoError(t, err)

	kind, err := c.Classify(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, kernel.KindWire, kind)

	box, err := c.BoundingBox(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, models.BoundingBox{XMax: 1, YMax: 2, ZMax: 3}, box)

	edges, err := c.OrderedEdges(ctx, s)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "edge-1", edges[0].ID())
	assert.Equal(t, "edge-2", edges[1].ID())

	points, err := c.Discretize(ctx, edges[0], 0.1)
	require.NoError(t, err)
	assert.Equal(t, []kernel.Point{{0, 0, 0}, {1, 0, 0}}, points)

	mesh, err := c.Tessellate(ctx, s, kernel.TessellateOptions{Quality: 1, ID: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"uuid":"abc"}`, string(mesh))

	moved, err := c.Transform(ctx, s, models.Identity())
	require.NoError(t, err)
	assert.Equal(t, "shape-1-moved", moved.ID())

	require.NoError(t, c.Release(ctx, moved))
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	c := startHelper(t)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := c.Import(ctx, "box.brep", kernel.FormatBREP)
	require.ErrorIs(t, err, context.Canceled)
}

// TestHelperProcess is not a real test: it is the fake kernel helper started by the tests above.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	defer os.Exit(0)

	dec := json.NewDecoder(os.Stdin)
	enc := json.NewEncoder(os.Stdout)
	for {
		var req struct {
			ID   int            `json:"id"`
			Op   string         `json:"op"`
			Args map[string]any `json:"args"`
		}
		if err := dec.Decode(&req); err != nil {
			return
		}

		resp := map[string]any{"id": req.ID}
		fail := func(code, msg string) {
			resp["error"] = map[string]string{"code": code, "message": msg}
		}

		switch req.Op {
		case "hello":
			resp["result"] = map[string]any{"name": "fake-occ"}
		case "import":
			path, _ := req.Args["path"].(string)
			switch {
			case strings.HasPrefix(path, "null"):
				fail("null_shape", "shape is null")
			case strings.HasPrefix(path, "broken"):
				fail("import", "cannot read file")
			default:
				resp["result"] = map[string]any{"shape": "shape-1"}
			}
		case "classify":
			resp["result"] = map[string]any{"kind": "wire"}
		case "bbox":
			resp["result"] = map[string]any{"bounds": []float64{0, 0, 0, 1, 2, 3}}
		case "edges":
			resp["result"] = map[string]any{"edges": []string{"edge-1", "edge-2"}}
		case "discretize":
			resp["result"] = map[string]any{"points": [][]float64{{0, 0, 0}, {1, 0, 0}}}
		case "tessellate":
			resp["result"] = map[string]any{"json": `{"uuid":"` + req.Args["uuid"].(string) + `"}`}
		case "transform":
			resp["result"] = map[string]any{"shape": req.Args["shape"].(string) + "-moved"}
		case "release":
			resp["result"] = map[string]any{}
		default:
			fail("unknown_op", req.Op)
		}

		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}
