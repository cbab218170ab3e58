package kerneltest

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/cadracks/cad2web/internal/models"
)

type ref string

func (r ref) ID() string { return string(r) }

type serveRequest struct {
	ID   int    `json:"id"`
	Op   string `json:"op"`
	Args struct {
		Shape       string           `json:"shape"`
		Path        string           `json:"path"`
		Format      kernel.Format    `json:"format"`
		Deflection  float64          `json:"deflection"`
		Quality     float64          `json:"quality"`
		ExportEdges bool             `json:"export_edges"`
		UUID        string           `json:"uuid"`
		Matrix      models.Transform `json:"matrix"`
	} `json:"args"`
}

// Serve answers kernel helper requests read from r with k, until r is exhausted.
// It lets tests start a kernel helper process backed by the fake kernel.
func Serve(ctx context.Context, r io.Reader, w io.Writer, k *Kernel) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		var req serveRequest
		if err := dec.Decode(&req); errors.Is(err, io.EOF) {
			return nil
		} else if err != nil {
			return err
		}

		result, err := serveOne(ctx, k, req)
		resp := map[string]any{"id": req.ID}
		if err != nil {
			code := "internal"
			switch {
			case errors.Is(err, models.ErrNullShape):
				code = "null_shape"
			case errors.Is(err, models.ErrGeometryImport):
				code = "import"
			}
			resp["error"] = map[string]string{"code": code, "message": err.Error()}
		} else {
			resp["result"] = result
		}

		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
}

func serveOne(ctx context.Context, k *Kernel, req serveRequest) (any, error) {
	s := ref(req.Args.Shape)

	switch req.Op {
	case "hello":
		return map[string]any{"name": k.Name()}, nil
	case "import":
		got, err := k.Import(ctx, req.Args.Path, req.Args.Format)
		if err != nil {
			return nil, err
		}
		return map[string]any{"shape": got.ID()}, nil
	case "classify":
		kind, err := k.Classify(ctx, s)
		return map[string]any{"kind": kind.String()}, err
	case "bbox":
		b, err := k.BoundingBox(ctx, s)
		return map[string]any{"bounds": []float64{b.XMin, b.YMin, b.ZMin, b.XMax, b.YMax, b.ZMax}}, err
	case "edges":
		edges, err := k.OrderedEdges(ctx, s)
		ids := make([]string, 0, len(edges))
		for _, e := range edges {
			ids = append(ids, e.ID())
		}
		return map[string]any{"edges": ids}, err
	case "discretize":
		points, err := k.Discretize(ctx, s, req.Args.Deflection)
		return map[string]any{"points": points}, err
	case "tessellate":
		data, err := k.Tessellate(ctx, s, kernel.TessellateOptions{
			Quality:     req.Args.Quality,
			ExportEdges: req.Args.ExportEdges,
			ID:          req.Args.UUID,
		})
		return map[string]any{"json": string(data)}, err
	case "transform":
		moved, err := k.Transform(ctx, s, req.Args.Matrix)
		if err != nil {
			return nil, err
		}
		return map[string]any{"shape": moved.ID()}, nil
	case "release":
		return map[string]any{}, k.Release(ctx, s)
	default:
		return nil, errors.New("unknown operation " + req.Op)
	}
}
