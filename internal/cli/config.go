// Package cli provides utility functions for command line interface applications.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cadracks/cad2web/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InitViperConfig reads the configuration of cmd into vip.
//
// A file given with --config wins. Otherwise a file named after cmdName is looked up in ConfigDirs.
// Environment variables prefixed with the upper cased command name override file values,
// with the dashes of keys spelled as underscores (CAD2WEB_PLUGIN_RUNNER sets plugin-runner).
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if err := readConfigFile(cmdName, cmd, vip); err != nil {
		return err
	}
	return bindEnv(cmdName, vip)
}

// ConfigDirs lists the directories searched for the configuration file, by decreasing priority.
func ConfigDirs(cmdName string) []string {
	dirs := []string{
		".",
		constants.GetDefaultConfigPath(),
		filepath.Join("/etc", cmdName),
		filepath.Join("/usr/local/etc", cmdName),
	}

	bin, err := os.Executable()
	if err != nil {
		slog.Warn("Could not locate the executable, not searching its directory for configuration", "err", err)
		return dirs
	}
	return append(dirs, filepath.Dir(bin))
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}

func readConfigFile(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if path, err := cmd.Flags().GetString("config"); err == nil && path != "" {
		vip.SetConfigFile(path)
	} else {
		vip.SetConfigName(cmdName)
		for _, dir := range ConfigDirs(cmdName) {
			vip.AddConfigPath(dir)
		}
	}

	err := vip.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	switch {
	case errors.As(err, &notFound):
		slog.Info("No configuration file, using flags, environment and defaults only")
	case err != nil:
		return fmt.Errorf("invalid configuration file: %w", err)
	default:
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}
	return nil
}

func bindEnv(cmdName string, vip *viper.Viper) error {
	prefix := strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_"))
	vip.SetEnvPrefix(prefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	vip.AutomaticEnv()

	// AutomaticEnv only serves Get calls: Unmarshal needs every key bound explicitly.
	// See https://github.com/spf13/viper/pull/1429.
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		key, ok := strings.CutPrefix(name, prefix+"_")
		if !ok || key == "" {
			continue
		}
		if err := vip.BindEnv(strings.ToLower(strings.ReplaceAll(key, "_", "-")), name); err != nil {
			return fmt.Errorf("could not bind environment variable %s: %w", name, err)
		}
	}
	return nil
}
