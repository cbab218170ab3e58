package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cadracks/cad2web/internal/cmdutils"
	"github.com/cadracks/cad2web/internal/models"
	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"
)

// Part is a shape exported by the plugin runner.
type Part struct {
	Name      string    `yaml:"name"`
	File      string    `yaml:"file"`
	Format    string    `yaml:"format"`
	Transform []float64 `yaml:"transform"`
}

// Assembly is an ordered list of parts.
type Assembly struct {
	Name  string `yaml:"name"`
	Parts []Part `yaml:"parts"`
}

// Descriptor is the value bound by a script, as printed by the plugin runner.
type Descriptor struct {
	Kind       string     `yaml:"kind"`
	Shapes     []Part     `yaml:"shapes"`
	Assemblies []Assembly `yaml:"assemblies"`
}

// Runner evaluates scripts in a plugin runner subprocess.
//
// The runner is called as "<command...> <script> <binding> <work dir>". It exports the bound shapes as
// geometry files, preferably under the work dir, and prints a YAML or JSON Descriptor on stdout.
type Runner struct {
	command []string
	timeout time.Duration
	log     *slog.Logger
}

type runnerOptions struct {
	timeout time.Duration
	log     *slog.Logger
}

// RunnerOptions represents an optional function to override Runner default values.
type RunnerOptions func(*runnerOptions)

// WithTimeout bounds the duration of a script evaluation. Zero means no bound.
func WithTimeout(d time.Duration) RunnerOptions {
	return func(o *runnerOptions) {
		o.timeout = d
	}
}

// WithRunnerLogger sets the logger used by the runner.
func WithRunnerLogger(l *slog.Logger) RunnerOptions {
	return func(o *runnerOptions) {
		o.log = l
	}
}

// NewRunner returns a Runner executing command, which holds the executable and its leading arguments.
func NewRunner(command []string, args ...RunnerOptions) (*Runner, error) {
	opts := runnerOptions{log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("plugin runner command cannot be empty")
	}
	return &Runner{command: command, timeout: opts.timeout, log: opts.log}, nil
}

// Evaluate runs the script and returns the value bound for mode.
func (r Runner) Evaluate(ctx context.Context, script string, mode Mode, workDir string) (Descriptor, error) {
	args := append(append([]string{}, r.command[1:]...), script, mode.Binding(), workDir)
	r.log.Debug("Evaluating script", "script", script, "binding", mode.Binding(), "runner", r.command[0])

	stdout, stderr, err := cmdutils.RunWithTimeout(ctx, r.timeout, r.command[0], args...)
	if err != nil {
		return Descriptor{}, fmt.Errorf("plugin runner failed: %s: %v", cmdutils.Describe(r.command[0], args, stderr), err)
	}
	if stderr.Len() > 0 {
		r.log.Info("Plugin runner output to stderr", "script", script, "stderr", strings.TrimSpace(stderr.String()))
	}

	d, err := DecodeDescriptor(stdout.Bytes())
	if err != nil {
		return Descriptor{}, err
	}
	if err := d.check(mode); err != nil {
		return Descriptor{}, fmt.Errorf("%w: %s: %v", models.ErrUnsupportedContent, script, err)
	}
	return d, nil
}

// DecodeDescriptor decodes a YAML or JSON descriptor. Unknown keys are rejected.
func DecodeDescriptor(data []byte) (d Descriptor, err error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, fmt.Errorf("%w: invalid plugin runner output: %v", models.ErrUnsupportedContent, err)
	}
	if raw == nil {
		return Descriptor{}, fmt.Errorf("%w: empty plugin runner output", models.ErrUnsupportedContent)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:     "yaml",
		ErrorUnused: true,
		Result:      &d,
	})
	if err != nil {
		return Descriptor{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return Descriptor{}, fmt.Errorf("%w: invalid plugin runner output: %v", models.ErrUnsupportedContent, err)
	}
	return d, nil
}

func (d Descriptor) check(mode Mode) error {
	if d.Kind != mode.String() {
		return fmt.Errorf("script binds %q, expected %s", d.Kind, mode.Binding())
	}

	switch mode {
	case ModeShape:
		if len(d.Shapes) != 1 {
			return fmt.Errorf("%s must hold exactly one shape, got %d", mode.Binding(), len(d.Shapes))
		}
	case ModeShapes:
		if len(d.Shapes) == 0 {
			return fmt.Errorf("%s is empty", mode.Binding())
		}
	case ModeAssembly:
		if len(d.Assemblies) != 1 {
			return fmt.Errorf("%s must hold exactly one assembly, got %d", mode.Binding(), len(d.Assemblies))
		}
	case ModeAssemblies:
		if len(d.Assemblies) == 0 {
			return fmt.Errorf("%s is empty", mode.Binding())
		}
	}

	if (mode.Remote() && len(d.Shapes) > 0) || (!mode.Remote() && len(d.Assemblies) > 0) {
		return fmt.Errorf("%s cannot mix shapes and assemblies", mode.Binding())
	}
	return nil
}
