// Package constants holds the names and defaults shared by the cad2web commands.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const (
	// CmdName is the name of the command line tool, also used as configuration file name and env prefix.
	CmdName = "cad2web"

	// DefaultAppFolder is the directory holding cad2web configuration under the user configuration directory.
	DefaultAppFolder = "cad2web"

	// DefaultLogLevel is the log level used without any -v flag.
	DefaultLogLevel = slog.LevelWarn

	// DefaultPluginTimeout bounds the evaluation of a single script by the plugin runner.
	DefaultPluginTimeout = 5 * time.Minute

	// DefaultHash names artifacts the way existing viewers expect.
	DefaultHash = "sha1"
)

// Version is the version of the executable, set at build time.
var Version = "Dev"

type options struct {
	userConfigDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath returns the cad2web directory under the user configuration directory.
// A relative DefaultAppFolder is returned when the user configuration directory is unknown.
func GetDefaultConfigPath(opts ...option) string {
	o := options{userConfigDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	base, err := o.userConfigDir()
	if err != nil {
		return DefaultAppFolder
	}
	return filepath.Join(base, DefaultAppFolder)
}
