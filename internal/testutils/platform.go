package testutils

import (
	"os"
	"runtime"
)

// IsUnixNonRoot reports whether permission bits are enforced for the current user,
// which is what tests relying on unwritable directories need.
func IsUnixNonRoot() bool {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd":
		return os.Getuid() != 0
	}
	return false
}
