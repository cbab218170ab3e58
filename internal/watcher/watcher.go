// Package watcher converts the files dropped into an inbox directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cadracks/cad2web/internal/models"
	"github.com/cadracks/cad2web/internal/pipeline"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the time a file must stay unchanged before it is converted.
const DefaultDebounce = 2 * time.Second

// Runner runs a conversion job.
type Runner interface {
	Run(ctx context.Context, job models.Job) (pipeline.Result, error)
}

// Outcome is the result of a job started by the watcher.
type Outcome struct {
	Job    models.Job
	Result pipeline.Result
	Err    error
}

// Watcher runs a conversion job for every file written into its inbox, one job at a time.
type Watcher struct {
	inbox  string
	job    models.Job
	runner Runner

	debounce time.Duration
	observer func(Outcome)
	log      *slog.Logger
}

type options struct {
	debounce     time.Duration
	keepOriginal bool
	observer     func(Outcome)
	log          *slog.Logger
}

// Options represents an optional function to override Watcher default values.
type Options func(*options)

// WithDebounce sets the time a file must stay unchanged before it is converted.
func WithDebounce(d time.Duration) Options {
	return func(o *options) {
		o.debounce = d
	}
}

// WithKeepOriginal keeps the converted files in the inbox.
func WithKeepOriginal(keep bool) Options {
	return func(o *options) {
		o.keepOriginal = keep
	}
}

// WithObserver calls f after every job, from the watching goroutine.
func WithObserver(f func(Outcome)) Options {
	return func(o *options) {
		o.observer = f
	}
}

// WithLogger sets the logger used by the watcher.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Watcher converting the files of inbox into targetDir through r.
func New(inbox, targetDir string, r Runner, args ...Options) *Watcher {
	opts := options{
		debounce: DefaultDebounce,
		observer: func(Outcome) {},
		log:      slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}

	return &Watcher{
		inbox:    inbox,
		job:      models.Job{TargetDir: targetDir, KeepOriginal: opts.keepOriginal},
		runner:   r,
		debounce: opts.debounce,
		observer: opts.observer,
		log:      opts.log,
	}
}

// Run watches the inbox until ctx is canceled. Files already present are converted first.
// A failing job is logged and does not stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %v", err)
	}
	defer fw.Close()

	if err := fw.Add(w.inbox); err != nil {
		return fmt.Errorf("failed to add directory %s to watcher: %v", w.inbox, err)
	}
	w.log.Info("Watching inbox", "dir", w.inbox, "target", w.job.TargetDir)

	// pending maps the files to convert to the time of their last change.
	pending := make(map[string]time.Time)
	entries, err := os.ReadDir(w.inbox)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %v", err)
	}
	now := time.Now()
	for _, e := range entries {
		if e.Type().IsRegular() && !ignored(e.Name()) {
			pending[filepath.Join(w.inbox, e.Name())] = now
		}
	}

	timer := time.NewTimer(w.debounce)
	if len(pending) == 0 {
		timer.Stop()
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Inbox watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher events channel closed unexpectedly")
			}
			if ignored(filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, event.Name)
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.Debug("Inbox file changed", "file", event.Name, "op", event.Op)
			pending[event.Name] = time.Now()
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed unexpectedly")
			}
			w.log.Warn("Watcher error", "err", err)

		case <-timer.C:
			if next := w.flush(ctx, pending); next > 0 {
				timer.Reset(next)
			}
		}
	}
}

// flush converts the pending files that stayed unchanged for the debounce time, in name order.
// It returns the time until the next file settles, or 0 when nothing is left.
func (w *Watcher) flush(ctx context.Context, pending map[string]time.Time) time.Duration {
	var ready []string
	var next time.Duration
	now := time.Now()
	for path, changed := range pending {
		left := w.debounce - now.Sub(changed)
		if left <= 0 {
			ready = append(ready, path)
			continue
		}
		if next == 0 || left < next {
			next = left
		}
	}
	slices.Sort(ready)

	for _, path := range ready {
		delete(pending, path)
		if ctx.Err() != nil {
			return 0
		}
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		w.convert(ctx, path)
	}
	return next
}

func (w *Watcher) convert(ctx context.Context, path string) {
	job := w.job
	job.InputPath = path

	res, err := w.runner.Run(ctx, job)
	if err != nil {
		w.log.Error("Conversion failed", "input", path, "err", err)
	} else {
		w.log.Info("Converted file", "input", path, "artifacts", len(res.Artifacts), "descriptor", res.Descriptor)
	}
	w.observer(Outcome{Job: job, Result: res, Err: err})
}

// ignored reports whether a file name is a hidden or partial file.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".part") || strings.HasSuffix(name, "~")
}
