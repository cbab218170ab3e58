package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cadracks/cad2web/internal/cache"
	"github.com/cadracks/cad2web/internal/converter"
	"github.com/cadracks/cad2web/internal/kernel/helper"
	"github.com/cadracks/cad2web/internal/metrics"
	"github.com/cadracks/cad2web/internal/models"
	"github.com/cadracks/cad2web/internal/pipeline"
	"github.com/cadracks/cad2web/internal/router"
	"github.com/cadracks/cad2web/internal/script"
	"github.com/prometheus/client_golang/prometheus"
)

// jobRunner runs every job with a fresh kernel helper process.
type jobRunner struct {
	kernel      []string
	routerOpts  []router.Options
	registry    *prometheus.Registry
	metricsFile string
}

// newJobRunner validates the configuration shared by all the jobs.
func (a *App) newJobRunner() (*jobRunner, error) {
	kernelCmd := strings.Fields(a.config.Kernel)
	if len(kernelCmd) == 0 {
		return nil, fmt.Errorf("no kernel helper configured: set --kernel or the kernel configuration key")
	}

	style := converter.DefaultStyle()
	if a.config.StyleFile != "" {
		var err error
		if style, err = converter.LoadStyle(a.config.StyleFile); err != nil {
			return nil, err
		}
	}

	alg, err := cache.ParseAlgorithm(a.config.Hash)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return nil, err
	}

	opts := []router.Options{
		router.WithStyle(style),
		router.WithAlgorithm(alg),
		router.WithMetrics(m),
		router.WithLogger(slog.Default()),
	}
	if runnerCmd := strings.Fields(a.config.PluginRunner); len(runnerCmd) > 0 {
		runner, err := script.NewRunner(runnerCmd,
			script.WithTimeout(a.config.PluginTimeout),
			script.WithRunnerLogger(slog.Default()))
		if err != nil {
			return nil, err
		}
		opts = append(opts, router.WithResolver(script.NewResolver(runner, slog.Default())))
	}

	return &jobRunner{
		kernel:      kernelCmd,
		routerOpts:  opts,
		registry:    reg,
		metricsFile: a.config.MetricsFile,
	}, nil
}

// Run starts a kernel helper and converts job with it.
func (j jobRunner) Run(ctx context.Context, job models.Job) (pipeline.Result, error) {
	defer j.writeMetrics()

	k, err := helper.Start(ctx, j.kernel, helper.WithLogger(slog.Default()))
	if err != nil {
		return pipeline.Result{}, err
	}
	defer func() {
		if err := k.Close(); err != nil {
			slog.Warn("Kernel helper did not exit cleanly", "err", err)
		}
	}()

	return router.New(k, j.routerOpts...).Run(ctx, job)
}

// writeMetrics writes the metrics textfile, if configured.
func (j jobRunner) writeMetrics() {
	if j.metricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(j.metricsFile, j.registry); err != nil {
		slog.Warn("Failed to write metrics", "file", j.metricsFile, "err", err)
	}
}
