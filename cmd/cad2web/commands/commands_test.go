package commands_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cadracks/cad2web/cmd/cad2web/commands"
	"github.com/cadracks/cad2web/internal/constants"
	"github.com/cadracks/cad2web/internal/descriptor"
	"github.com/cadracks/cad2web/internal/kernel/kerneltest"
	"github.com/cadracks/cad2web/internal/testutils"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kernelHelperArg marks the test binary invocations acting as the kernel helper.
const kernelHelperArg = "fake-kernel-helper"

// kernelHelper is the command line starting the fake kernel helper.
var kernelHelper = os.Args[0] + " -test.run=^TestKernelHelperProcess$ -- " + kernelHelperArg

func TestConvert(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input     string
		content   string
		args      []string
		conf      commands.AppConfig
		noTarget  bool
		styleFile string
		metrics   bool

		wantArtifactLen int
		wantKept        bool
		wantErr         bool
		wantUsageErr    bool
	}{
		"Converts STEP file": {
			input: "part.step", content: "box 0 0 0 2 3 4",
			wantArtifactLen: 40 + len("_0.json"),
		},
		"Keeps original on request": {
			input: "part.stl", content: "box 0 0 0 1 1 1", args: []string{"--keep-original"},
			wantArtifactLen: 40 + len("_0.json"), wantKept: true,
		},
		"Names artifacts with BLAKE3": {
			input: "part.brep", content: "edge 0 0 0 1 0 0", conf: commands.AppConfig{Hash: "blake3"},
			wantArtifactLen: 64 + len("_0.json"),
		},
		"Applies style file": {
			input: "part.step", content: "box 0 0 0 1 1 1", styleFile: "color = [1.0, 0.0, 0.0]\nline_width = 3.0\n",
			wantArtifactLen: 40 + len("_0.json"),
		},
		"Writes metrics file": {
			input: "part.step", content: "box 0 0 0 1 1 1", metrics: true,
			wantArtifactLen: 40 + len("_0.json"),
		},

		// Usage errors
		"Error on missing target directory": {
			input: "part.step", content: "box 0 0 0 1 1 1", noTarget: true,
			wantErr: true, wantUsageErr: true, wantKept: true,
		},
		"Error on extra argument": {
			input: "part.step", content: "box 0 0 0 1 1 1", args: []string{"other.step"},
			wantErr: true, wantUsageErr: true, wantKept: true,
		},

		// Runtime errors
		"Error on missing input": {input: "part.step", wantErr: true},
		"Error on null shape": {
			input: "part.step", content: "null",
			wantErr: true, wantKept: true,
		},
		"Error on unsupported input": {
			input: "notes.txt", content: "box 0 0 0 1 1 1",
			wantErr: true, wantKept: true,
		},
		"Error on unknown hash": {
			input: "part.step", content: "box 0 0 0 1 1 1", conf: commands.AppConfig{Hash: "md5"},
			wantErr: true, wantKept: true,
		},
		"Error on invalid style file": {
			input: "part.step", content: "box 0 0 0 1 1 1", styleFile: "color = [2.0, 0.0, 0.0]\n",
			wantErr: true, wantKept: true,
		},
		"Error on kernel helper failing to start": {
			input: "part.step", content: "box 0 0 0 1 1 1", conf: commands.AppConfig{Kernel: "false"},
			wantErr: true, wantKept: true,
		},
		"Error on script without plugin runner": {
			input: "model.py", content: "__shape__ = box()\n",
			wantErr: true, wantKept: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			target := filepath.Join(dir, "web")
			input := filepath.Join(dir, tc.input)
			if tc.content != "" {
				require.NoError(t, os.WriteFile(input, []byte(tc.content), 0600), "Setup: could not write input")
			}

			conf := tc.conf
			if conf.Kernel == "" {
				conf.Kernel = kernelHelper
			}
			if tc.styleFile != "" {
				conf.StyleFile = filepath.Join(dir, "style.toml")
				require.NoError(t, os.WriteFile(conf.StyleFile, []byte(tc.styleFile), 0600), "Setup: could not write style file")
			}
			if tc.metrics {
				conf.MetricsFile = filepath.Join(dir, "metrics", "cad2web.prom")
			}

			args := []string{"convert", input}
			if !tc.noTarget {
				args = append(args, "--target-dir", target)
			}
			args = append(args, tc.args...)

			a := commands.NewForTests(t, &conf, args...)
			var out bytes.Buffer
			a.SetOutput(&out)

			err := a.Run()
			if tc.content != "" {
				if tc.wantKept {
					assert.FileExists(t, input, "Input should be kept")
				} else {
					assert.NoFileExists(t, input, "Input should be removed")
				}
			}
			if tc.wantErr {
				require.Error(t, err, "Run should return an error")
				assert.Equal(t, tc.wantUsageErr, a.UsageError(), "Unexpected usage error state")
				return
			}
			require.NoError(t, err, "Run should not return an error")

			descPath := descriptor.Path(target, tc.input)
			assert.Equal(t, descPath, strings.TrimSpace(out.String()), "Descriptor path should be printed")
			data, err := os.ReadFile(descPath)
			require.NoError(t, err, "Descriptor should be written")
			lines := strings.Split(string(data), "\n")
			require.Len(t, lines, 2, "Descriptor should list one artifact")
			assert.Len(t, lines[1], tc.wantArtifactLen, "Unexpected artifact name %q", lines[1])
			assert.FileExists(t, filepath.Join(target, lines[1]))

			if tc.metrics {
				m, err := os.ReadFile(conf.MetricsFile)
				require.NoError(t, err, "Metrics file should be written")
				assert.Contains(t, string(m), `cad2web_jobs_total{format="step",status="success"} 1`)
			}
		})
	}
}

func TestConvertUnwritableTarget(t *testing.T) {
	t.Parallel()

	if !testutils.IsUnixNonRoot() {
		t.Skip("Permissions are not enforced for this user")
	}

	dir := t.TempDir()
	input := filepath.Join(dir, "part.step")
	require.NoError(t, os.WriteFile(input, []byte("box 0 0 0 1 1 1"), 0600), "Setup: could not write input")
	target := filepath.Join(dir, "web")
	require.NoError(t, os.Mkdir(target, 0500), "Setup: could not create read only target")

	a := commands.NewForTests(t, &commands.AppConfig{Kernel: kernelHelper}, "convert", input, "--target-dir", target)
	err := a.Run()
	require.Error(t, err, "Run should fail when artifacts cannot be written")
	assert.False(t, a.UsageError(), "Write failures are not usage errors")
	assert.FileExists(t, input, "Input should be kept")
}

func TestWatch(t *testing.T) {
	t.Parallel()

	inbox := t.TempDir()
	target := filepath.Join(t.TempDir(), "web")
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "early.stl"), []byte("box 0 0 0 1 1 1"), 0600),
		"Setup: could not write input")

	a := commands.NewForTests(t, &commands.AppConfig{Kernel: kernelHelper},
		"watch", inbox, "--target-dir", target, "--debounce", "50ms")

	done := make(chan error, 1)
	go func() { done <- a.Run() }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(descriptor.Path(target, "early.stl"))
		return err == nil
	}, 10*time.Second, 20*time.Millisecond, "Existing file should be converted")

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "late.step"), []byte("box 0 0 0 2 2 2"), 0600),
		"Setup: could not write input")
	require.Eventually(t, func() bool {
		_, err := os.Stat(descriptor.Path(target, "late.step"))
		return err == nil
	}, 10*time.Second, 20*time.Millisecond, "New file should be converted")
	assert.NoFileExists(t, filepath.Join(inbox, "late.step"), "Converted file should be removed from the inbox")

	a.Quit()
	select {
	case err := <-done:
		require.NoError(t, err, "Watch should stop without error")
	case <-time.After(5 * time.Second):
		t.Fatal("Watch should stop once the app quits")
	}
}

func TestWatchInvalidInbox(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0600), "Setup: could not write file")

	tests := map[string]struct {
		inbox string
	}{
		"Error on missing inbox":   {inbox: filepath.Join(t.TempDir(), "missing")},
		"Error on inbox not a dir": {inbox: file},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := commands.NewForTests(t, &commands.AppConfig{Kernel: kernelHelper},
				"watch", tc.inbox, "--target-dir", t.TempDir())
			err := a.Run()
			require.Error(t, err, "Run should return an error")
			assert.True(t, a.UsageError(), "Invalid inbox is a usage error")
		})
	}
}

func TestFlags(t *testing.T) {
	t.Parallel()

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not return an error")
	root := a.RootCmd()

	find := func(name string) *cobra.Command {
		t.Helper()
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, "Setup: could not find %s command", name)
		return cmd
	}

	tests := []testutils.CmdTestCase{
		{Name: "verbose", Short: "v", PersistentFlag: true, BaseCmd: &root},
		{Name: "kernel", PersistentFlag: true, BaseCmd: &root},
		{Name: "plugin-runner", PersistentFlag: true, BaseCmd: &root},
		{Name: "hash", PersistentFlag: true, BaseCmd: &root},
		{Name: "style-file", FilenameExts: []string{"toml"}, PersistentFlag: true, BaseCmd: &root},
		{Name: "metrics-file", PersistentFlag: true, BaseCmd: &root},
		{Name: "target-dir", Short: "t", Required: true, Dirname: true, BaseCmd: find("convert")},
		{Name: "keep-original", Short: "k", BaseCmd: find("convert")},
		{Name: "clone-url", BaseCmd: find("convert")},
		{Name: "path-from-project-root", BaseCmd: find("convert")},
		{Name: "target-dir", Short: "t", Required: true, Dirname: true, BaseCmd: find("watch")},
		{Name: "debounce", BaseCmd: find("watch")},
	}
	for _, tc := range tests {
		t.Run(tc.BaseCmd.Name()+" "+tc.Name, func(t *testing.T) {
			testutils.FlagTestHelper(t, tc)
		})
	}
}

func TestVersion(t *testing.T) {
	t.Parallel()

	a := commands.NewForTests(t, nil, "version")
	var out bytes.Buffer
	a.SetOutput(&out)

	require.NoError(t, a.Run(), "Run should not return an error")
	assert.Equal(t, constants.CmdName+"\t"+constants.Version+"\n", out.String())
}

func TestConfigArg(t *testing.T) {
	t.Parallel()

	a := commands.NewForTests(t, &commands.AppConfig{Verbosity: 1, Hash: "blake3", Kernel: "occ-helper"}, "version")
	a.SetOutput(&bytes.Buffer{})

	require.NoError(t, a.Run(), "Run should not return an error")
	assert.Equal(t, 1, a.Config().Verbosity)
	assert.Equal(t, "blake3", a.Config().Hash)
	assert.Equal(t, "occ-helper", a.Config().Kernel)
	assert.Equal(t, constants.DefaultPluginTimeout, a.Config().PluginTimeout, "Unset keys keep their default")
}

func TestConfigEnv(t *testing.T) {
	t.Setenv("CAD2WEB_HASH", "blake3")
	t.Setenv("CAD2WEB_PLUGIN_TIMEOUT", "1m")

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not return an error")
	a.SetArgs("version")
	a.SetOutput(&bytes.Buffer{})

	require.NoError(t, a.Run(), "Run should not return an error")
	assert.Equal(t, "blake3", a.Config().Hash)
	assert.Equal(t, time.Minute, a.Config().PluginTimeout)
}

func TestBadConfigReturnsError(t *testing.T) {
	t.Parallel()

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not return an error")
	// Use version to still run preExec to load no config but without running a job
	a.SetArgs("version", "--config", "/does/not/exist.yaml")

	err = a.Run()
	require.Error(t, err, "Run should return an error on config file")
}

func TestNoUsageError(t *testing.T) {
	t.Parallel()

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not return an error")
	a.SetArgs("completion", "bash")
	a.SetOutput(&bytes.Buffer{})

	err = a.Run()
	require.NoError(t, err, "Run should not return an error")
	require.False(t, a.UsageError(), "No usage error is reported as such")
}

func TestUsageError(t *testing.T) {
	t.Parallel()

	a, err := commands.New()
	require.NoError(t, err, "Setup: New should not return an error")
	a.SetArgs("doesnotexist")
	a.SetOutput(&bytes.Buffer{})

	err = a.Run()
	require.Error(t, err, "Run should return an error")
	require.True(t, a.UsageError(), "Usage error is reported as such")

	// Test when SilenceUsage is true
	a.SetSilenceUsage(true)
	assert.False(t, a.UsageError())

	// Test when SilenceUsage is false
	a.SetSilenceUsage(false)
	assert.True(t, a.UsageError())
}

func TestRootCmd(t *testing.T) {
	t.Parallel()

	a, err := commands.New()
	require.NoError(t, err)

	cmd := a.RootCmd()
	assert.Equal(t, constants.CmdName, cmd.Name())
}

// TestKernelHelperProcess is not a real test: it is the kernel helper started by the tests above.
func TestKernelHelperProcess(t *testing.T) {
	if !slices.Contains(os.Args, kernelHelperArg) {
		return
	}
	defer os.Exit(0)

	if err := kerneltest.Serve(context.Background(), os.Stdin, os.Stdout, kerneltest.NewKernel()); err != nil {
		os.Exit(1)
	}
}
