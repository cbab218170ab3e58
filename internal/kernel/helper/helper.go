// Package helper implements kernel.Kernel on top of an external kernel helper process.
//
// The helper is started once per job and exchanges one JSON object per line on its
// standard input and output. Every request carries an id which the response echoes.
package helper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/cadracks/cad2web/internal/kernel"
	"github.com/cadracks/cad2web/internal/models"
)

// Error codes returned by the helper.
const (
	codeNullShape = "null_shape"
	codeImport    = "import"
)

type request struct {
	ID   int    `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type response struct {
	ID     int             `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *responseError  `json:"error,omitempty"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e responseError) err() error {
	switch e.Code {
	case codeNullShape:
		return fmt.Errorf("%w: %s", models.ErrNullShape, e.Message)
	case codeImport:
		return fmt.Errorf("%w: %s", models.ErrGeometryImport, e.Message)
	default:
		return fmt.Errorf("kernel error %q: %s", e.Code, e.Message)
	}
}

type handle string

func (h handle) ID() string { return string(h) }

// Client is a running kernel helper process.
type Client struct {
	name string
	log  *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	dec    *json.Decoder
	stderr bytes.Buffer

	mu     sync.Mutex
	nextID int
}

type options struct {
	log *slog.Logger
	env []string
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithLogger sets the logger used by the client.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// WithEnv appends environment variables to the helper process environment.
func WithEnv(env ...string) Options {
	return func(o *options) {
		o.env = append(o.env, env...)
	}
}

// Start launches the helper command and performs the initial handshake.
// The process is killed when ctx is done.
func Start(ctx context.Context, command []string, args ...Options) (c *Client, err error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("no kernel helper command configured")
	}

	opts := options{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	c = &Client{log: opts.log}
	c.cmd = exec.CommandContext(ctx, command[0], command[1:]...)
	c.cmd.Env = append(os.Environ(), opts.env...)
	c.cmd.Stderr = &c.stderr

	if c.stdin, err = c.cmd.StdinPipe(); err != nil {
		return nil, fmt.Errorf("could not open kernel helper stdin: %v", err)
	}
	stdout, err := c.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("could not open kernel helper stdout: %v", err)
	}
	c.enc = json.NewEncoder(c.stdin)
	c.dec = json.NewDecoder(bufio.NewReader(stdout))

	c.log.Debug("Starting kernel helper", "command", strings.Join(command, " "))
	if err := c.cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start kernel helper: %v", err)
	}

	var hello struct {
		Name string `json:"name"`
	}
	if err := c.call("hello", nil, &hello); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("kernel helper handshake failed: %w", err)
	}
	c.name = hello.Name
	c.log.Info("Kernel helper ready", "kernel", c.name)

	return c, nil
}

// Close stops the helper process.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.stdin.Close(); err != nil {
		c.log.Debug("Could not close kernel helper stdin", "err", err)
	}
	if err := c.cmd.Wait(); err != nil {
		return fmt.Errorf("kernel helper exited with error: %v (stderr: %s)", err, strings.TrimSpace(c.stderr.String()))
	}
	return nil
}

func (c *Client) call(op string, args, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if err := c.enc.Encode(request{ID: id, Op: op, Args: args}); err != nil {
		return fmt.Errorf("could not send %s request: %v", op, err)
	}

	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		return fmt.Errorf("could not read %s response: %v (stderr: %s)", op, err, strings.TrimSpace(c.stderr.String()))
	}
	if resp.ID != id {
		return fmt.Errorf("kernel helper answered request %d while %d was expected", resp.ID, id)
	}
	if resp.Error != nil {
		return resp.Error.err()
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return fmt.Errorf("invalid %s response: %v", op, err)
	}
	return nil
}

// callCtx runs call unless ctx is already done. Once started, a call is interrupted by the process
// being killed through the context given to Start.
func (c *Client) callCtx(ctx context.Context, op string, args, result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.call(op, args, result)
}

type shapeResult struct {
	Shape string `json:"shape"`
}

// Name implements kernel.Kernel.
func (c *Client) Name() string {
	return c.name
}

// Import implements kernel.Kernel.
func (c *Client) Import(ctx context.Context, path string, format kernel.Format) (kernel.Shape, error) {
	var res shapeResult
	args := map[string]any{"path": path, "format": format}
	if err := c.callCtx(ctx, "import", args, &res); err != nil {
		return nil, err
	}
	if res.Shape == "" {
		return nil, fmt.Errorf("%w: %s", models.ErrNullShape, path)
	}
	return handle(res.Shape), nil
}

// Classify implements kernel.Kernel.
func (c *Client) Classify(ctx context.Context, s kernel.Shape) (kernel.Kind, error) {
	var res struct {
		Kind string `json:"kind"`
	}
	if err := c.callCtx(ctx, "classify", map[string]any{"shape": s.ID()}, &res); err != nil {
		return kernel.KindShape, err
	}
	switch res.Kind {
	case "edge":
		return kernel.KindEdge, nil
	case "wire":
		return kernel.KindWire, nil
	default:
		return kernel.KindShape, nil
	}
}

// BoundingBox implements kernel.Kernel.
func (c *Client) BoundingBox(ctx context.Context, s kernel.Shape) (models.BoundingBox, error) {
	var res struct {
		Bounds [6]float64 `json:"bounds"`
	}
	if err := c.callCtx(ctx, "bbox", map[string]any{"shape": s.ID()}, &res); err != nil {
		return models.BoundingBox{}, err
	}
	b := res.Bounds
	return models.BoundingBox{XMin: b[0], YMin: b[1], ZMin: b[2], XMax: b[3], YMax: b[4], ZMax: b[5]}, nil
}

// OrderedEdges implements kernel.Kernel.
func (c *Client) OrderedEdges(ctx context.Context, wire kernel.Shape) ([]kernel.Shape, error) {
	var res struct {
		Edges []string `json:"edges"`
	}
	if err := c.callCtx(ctx, "edges", map[string]any{"shape": wire.ID(), "ordered": true}, &res); err != nil {
		return nil, err
	}
	edges := make([]kernel.Shape, 0, len(res.Edges))
	for _, e := range res.Edges {
		edges = append(edges, handle(e))
	}
	return edges, nil
}

// Discretize implements kernel.Kernel.
func (c *Client) Discretize(ctx context.Context, edge kernel.Shape, deflection float64) ([]kernel.Point, error) {
	var res struct {
		Points []kernel.Point `json:"points"`
	}
	args := map[string]any{"shape": edge.ID(), "deflection": deflection}
	if err := c.callCtx(ctx, "discretize", args, &res); err != nil {
		return nil, err
	}
	return res.Points, nil
}

// Tessellate implements kernel.Kernel.
func (c *Client) Tessellate(ctx context.Context, s kernel.Shape, opts kernel.TessellateOptions) ([]byte, error) {
	var res struct {
		JSON string `json:"json"`
	}
	args := map[string]any{
		"shape":        s.ID(),
		"quality":      opts.Quality,
		"export_edges": opts.ExportEdges,
		"uuid":         opts.ID,
	}
	if err := c.callCtx(ctx, "tessellate", args, &res); err != nil {
		return nil, err
	}
	return []byte(res.JSON), nil
}

// Transform implements kernel.Kernel.
func (c *Client) Transform(ctx context.Context, s kernel.Shape, t models.Transform) (kernel.Shape, error) {
	var res shapeResult
	if err := c.callCtx(ctx, "transform", map[string]any{"shape": s.ID(), "matrix": t}, &res); err != nil {
		return nil, err
	}
	return handle(res.Shape), nil
}

// Release implements kernel.Kernel.
func (c *Client) Release(ctx context.Context, s kernel.Shape) error {
	return c.callCtx(ctx, "release", map[string]any{"shape": s.ID()}, nil)
}
