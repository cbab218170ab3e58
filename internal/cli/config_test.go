package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cadracks/cad2web/internal/cli"
	"github.com/cadracks/cad2web/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitViperConfig(t *testing.T) {
	tests := map[string]struct {
		config string
		env    map[string]string
		noFile bool

		wantKernel string
		wantHash   string
		wantErr    bool
	}{
		"Reads configuration file": {
			config:     "kernel: occ-helper --quiet\nhash: blake3\n",
			wantKernel: "occ-helper --quiet",
			wantHash:   "blake3",
		},
		"Environment overrides the file": {
			config:     "kernel: occ-helper\nhash: sha1\n",
			env:        map[string]string{"CAD2WEB_HASH": "blake3"},
			wantKernel: "occ-helper",
			wantHash:   "blake3",
		},
		"Environment with dashed key": {
			noFile:     true,
			env:        map[string]string{"CAD2WEB_PLUGIN_RUNNER": "runner", "CAD2WEB_KERNEL": "helper"},
			wantKernel: "helper",
		},

		"Error on invalid configuration file": {config: "kernel: [unclosed\n", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cmd := &cobra.Command{Use: "cad2web"}
			cli.InstallConfigFlag(cmd)
			args := []string{}
			if !tc.noFile {
				p := filepath.Join(t.TempDir(), "cad2web.yaml")
				require.NoError(t, os.WriteFile(p, []byte(tc.config), 0600), "Setup: could not write config file")
				args = append(args, "--config", p)
			}
			require.NoError(t, cmd.ParseFlags(args), "Setup: could not parse flags")

			// Run from an empty directory so that no configuration file is discovered.
			t.Chdir(t.TempDir())

			vip := viper.New()
			err := cli.InitViperConfig("cad2web", cmd, vip)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tc.wantKernel, vip.GetString("kernel"))
			assert.Equal(t, tc.wantHash, vip.GetString("hash"))
			if _, ok := tc.env["CAD2WEB_PLUGIN_RUNNER"]; ok {
				assert.Equal(t, "runner", vip.GetString("plugin-runner"))
			}
		})
	}
}

func TestConfigDirs(t *testing.T) {
	t.Parallel()

	dirs := cli.ConfigDirs("cad2web")

	require.GreaterOrEqual(t, len(dirs), 4, "Should search at least the fixed directories")
	assert.Equal(t, ".", dirs[0], "Current directory should be searched first")
	assert.Equal(t, constants.GetDefaultConfigPath(), dirs[1], "User configuration directory should come second")
	assert.Contains(t, dirs, filepath.Join("/etc", "cad2web"))
	assert.Contains(t, dirs, filepath.Join("/usr/local/etc", "cad2web"))
}
