// Package git fetches remote projects with the git CLI.
//
// All commands target a specific directory via the -C flag, which is injected by every Repository method.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cadracks/cad2web/internal/cmdutils"
	"github.com/cadracks/cad2web/internal/models"
)

// Repository is a git working tree at a specific directory.
type Repository struct {
	dir string
	log *slog.Logger
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string, log *slog.Logger) *Repository {
	if log == nil {
		log = slog.Default()
	}
	return &Repository{dir: dir, log: log}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns stdout.
// Stderr is included in the error on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	stdout, stderr, err := cmdutils.Run(ctx, "git", fullArgs...)
	if err != nil {
		return "", fmt.Errorf("%s in %s: %w", cmdutils.Describe("git", args, stderr), r.dir, err)
	}
	return stdout.String(), nil
}

// Checkout switches the working tree to branch.
func (r *Repository) Checkout(ctx context.Context, branch string) error {
	if _, err := r.Run(ctx, "checkout", branch); err != nil {
		return fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}
	r.log.Info("Checked out branch", "dir", r.dir, "branch", branch)
	return nil
}

// ProjectName returns the directory name git gives to a clone of cloneURL: its last path segment
// without the ".git" suffix.
func ProjectName(cloneURL string) (string, error) {
	p := cloneURL
	if u, err := url.Parse(cloneURL); err == nil && u.Scheme != "" {
		p = u.Path
	} else if i := strings.LastIndex(p, ":"); i >= 0 {
		// scp-like syntax: user@host:path.
		p = p[i+1:]
	}

	name := strings.TrimSuffix(path.Base(strings.TrimRight(p, "/")), ".git")
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("%w: no project name in clone URL %q", models.ErrUnsupportedContent, cloneURL)
	}
	return name, nil
}

// Clone clones the remote project into parentDir and checks out its branch.
// The clone directory is the remote project name, or the name derived from the clone URL when unset.
// An empty branch keeps the remote default branch. The clone is removed when the checkout fails.
func Clone(ctx context.Context, parentDir string, remote models.Remote, log *slog.Logger) (*Repository, error) {
	if log == nil {
		log = slog.Default()
	}
	if remote.CloneURL == "" {
		return nil, fmt.Errorf("%w: no clone URL", models.ErrUnsupportedContent)
	}

	name := remote.Project
	if name == "" {
		var err error
		if name, err = ProjectName(remote.CloneURL); err != nil {
			return nil, err
		}
	}
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: invalid project name %q", models.ErrUnsupportedContent, name)
	}
	if err := os.MkdirAll(parentDir, 0750); err != nil {
		return nil, fmt.Errorf("could not create clone directory: %v", err)
	}
	dir := filepath.Join(parentDir, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: clone destination %s already exists", models.ErrNetwork, dir)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("could not check clone destination: %v", err)
	}

	log.Info("Cloning project", "url", remote.CloneURL, "dir", dir)
	parent := NewRepository(parentDir, log)
	if _, err := parent.Run(ctx, "clone", "--", remote.CloneURL, name); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrNetwork, err)
	}

	repo := NewRepository(dir, log)
	if remote.Branch == "" {
		return repo, nil
	}
	if err := repo.Checkout(ctx, remote.Branch); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			log.Warn("Failed to remove clone after checkout failure", "dir", dir, "err", rmErr)
		}
		return nil, err
	}
	return repo, nil
}
