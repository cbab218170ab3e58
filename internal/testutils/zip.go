package testutils

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

// ZipEntry is a file stored in a test archive.
type ZipEntry struct {
	Name    string
	Content string
	Mode    fs.FileMode // Mode, if set, is stored in the entry header.
}

// WriteZip creates a zip archive at path holding entries, in order, and returns path.
// Names ending with "/" are stored as directories.
func WriteZip(t *testing.T, path string, entries ...ZipEntry) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750), "Setup: could not create archive directory")
	f, err := os.Create(path)
	require.NoError(t, err, "Setup: could not create archive")
	defer f.Close()

	w := zip.NewWriter(f)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		if e.Mode != 0 {
			hdr.SetMode(e.Mode)
		}
		fw, err := w.CreateHeader(hdr)
		require.NoError(t, err, "Setup: could not add %q to archive", e.Name)
		if e.Content == "" {
			continue
		}
		_, err = fw.Write([]byte(e.Content))
		require.NoError(t, err, "Setup: could not write %q to archive", e.Name)
	}
	require.NoError(t, w.Close(), "Setup: could not finalize archive")

	return path
}
