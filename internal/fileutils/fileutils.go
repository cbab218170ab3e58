// Package fileutils provides utility functions for handling files.
package fileutils

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// AtomicWrite writes data to a file atomically.
// If the file already exists, then it will be overwritten.
// Not atomic on Windows.
// A temporary file that could not be cleaned up after a failure is reported in the returned error.
func AtomicWrite(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "tmp-*.tmp")
	if err != nil {
		return fmt.Errorf("could not create temporary file: %v", err)
	}
	defer func() {
		_ = tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			err = errors.Join(err, fmt.Errorf("could not remove temporary file %s: %v", tmp.Name(), rmErr))
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("could not write to temporary file: %v", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("could not close temporary file: %v", err)
	}

	// CreateTemp uses 0600, artifacts are served to the viewer.
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("could not set permissions on temporary file: %v", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("could not rename temporary file: %v", err)
	}
	return nil
}

// FileExists returns true if path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// RemoveOriginal deletes the converted input unless keep is set.
// Failures are only logged: the conversion itself already succeeded.
func RemoveOriginal(log *slog.Logger, path string, keep bool) {
	if keep {
		log.Debug("Keeping original file", "file", path)
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Failed to remove original file", "file", path, "err", err)
		return
	}
	log.Info("Removed original file", "file", path)
}
