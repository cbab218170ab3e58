// Package cache names conversion artifacts after the content of their source file.
//
// An artifact is named "{hash}_{ordinal}.json" inside the output directory. The same bytes and ordinal
// always resolve to the same path, and an existing path is reused without any further check.
// Entries are never evicted.
package cache

import (
	"crypto/sha1" //nolint:gosec // Content naming only, kept for compatibility with existing artifacts.
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cadracks/cad2web/internal/fileutils"
	"github.com/cadracks/cad2web/internal/models"
	"github.com/zeebo/blake3"
)

// blockSize is the size of the blocks streamed through the hash.
const blockSize = 1 << 16

// Algorithm is a content hash algorithm.
type Algorithm string

const (
	// SHA1 is the default algorithm, matching the names of previously converted artifacts.
	SHA1 Algorithm = "sha1"
	// BLAKE3 is a faster alternative for new deployments.
	BLAKE3 Algorithm = "blake3"
)

// ErrUnknownAlgorithm is returned when the configured hash algorithm is not supported.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// ParseAlgorithm returns the algorithm named s, case insensitively. An empty name is SHA1.
func ParseAlgorithm(s string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(s))
	if a == "" {
		return SHA1, nil
	}
	if _, err := a.new(); err != nil {
		return "", err
	}
	return a, nil
}

func (a Algorithm) new() (hash.Hash, error) {
	switch a {
	case SHA1, "":
		return sha1.New(), nil //nolint:gosec // See import.
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, string(a))
	}
}

// Artifact is a resolved artifact location.
type Artifact struct {
	Path string // Path is the full path of the artifact.
	Hit  bool   // Hit is true when the artifact already exists and must not be converted again.
}

// Base returns the artifact file name, as listed in the descriptor.
func (a Artifact) Base() string {
	return filepath.Base(a.Path)
}

// Cache resolves artifact paths in an output directory.
type Cache struct {
	dir       string
	algorithm Algorithm
	log       *slog.Logger
}

type options struct {
	algorithm Algorithm
	log       *slog.Logger
}

// Options represents an optional function to override Cache default values.
type Options func(*options)

// WithAlgorithm selects the content hash algorithm.
func WithAlgorithm(a Algorithm) Options {
	return func(o *options) {
		o.algorithm = a
	}
}

// WithLogger sets the logger used by the cache.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.log = l
	}
}

// New returns a Cache storing artifacts in dir, creating it if needed.
func New(dir string, args ...Options) (*Cache, error) {
	opts := options{algorithm: SHA1, log: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	if dir == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	if _, err := opts.algorithm.new(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %v", err)
	}

	return &Cache{dir: dir, algorithm: opts.algorithm, log: opts.log}, nil
}

// Dir returns the output directory of the cache.
func (c Cache) Dir() string {
	return c.dir
}

// Hash returns the hex encoded content hash of the file at path.
// The file is streamed in fixed-size blocks.
func (c Cache) Hash(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", models.ErrInputNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("could not open %s for hashing: %v", path, err)
	}
	defer f.Close()

	h, err := c.algorithm.new()
	if err != nil {
		return "", err
	}
	if _, err := io.CopyBuffer(h, f, make([]byte, blockSize)); err != nil {
		return "", fmt.Errorf("could not hash %s: %v", path, err)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	c.log.Debug("Computed content hash", "file", path, "algorithm", c.algorithm, "hash", sum)
	return sum, nil
}

// Resolve returns the artifact path for the ordinal-th shape converted from the file at input.
// The artifact is a hit if the path already exists.
func (c Cache) Resolve(input string, ordinal int) (Artifact, error) {
	sum, err := c.Hash(input)
	if err != nil {
		return Artifact{}, err
	}

	path := filepath.Join(c.dir, Name(sum, ordinal))
	hit, err := fileutils.FileExists(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("could not check artifact %s: %v", path, err)
	}
	if hit {
		c.log.Info("Using existing artifact", "file", path)
	}

	return Artifact{Path: path, Hit: hit}, nil
}

// Name returns the artifact file name for a content hash and an ordinal.
func Name(sum string, ordinal int) string {
	return fmt.Sprintf("%s_%d.json", sum, ordinal)
}
