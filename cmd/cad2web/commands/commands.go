// Package commands implements the cad2web command line.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/cadracks/cad2web/internal/cli"
	"github.com/cadracks/cad2web/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	ctx    context.Context
	cancel context.CancelFunc
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity     int           `mapstructure:"verbose"`
	Kernel        string        `mapstructure:"kernel"`
	PluginRunner  string        `mapstructure:"plugin-runner"`
	PluginTimeout time.Duration `mapstructure:"plugin-timeout"`
	StyleFile     string        `mapstructure:"style-file"`
	Hash          string        `mapstructure:"hash"`
	MetricsFile   string        `mapstructure:"metrics-file"`

	// Job settings, only set from the command line.
	TargetDir    string        `mapstructure:"-"`
	KeepOriginal bool          `mapstructure:"-"`
	Remote       remoteConfig  `mapstructure:"-"`
	Debounce     time.Duration `mapstructure:"-"`
}

// remoteConfig is the project fetched for assembly scripts.
type remoteConfig struct {
	CloneURL            string
	Branch              string
	Project             string
	PathFromProjectRoot string
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	a.cmd = &cobra.Command{
		Use:   constants.CmdName,
		Short: "Convert CAD files for web viewers",
		Long: `Convert CAD designs (STEP, IGES, BREP, STL, FreeCAD and Stepzip archives, CAD scripts)
into three.js geometry artifacts and a descriptor listing them with the scene scale.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Required flags are only checked by cobra after this hook.
			if err := cmd.ValidateRequiredFlags(); err != nil {
				return err
			}
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetVerbosity(a.config.Verbosity) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Debug("got app config", "config", a.config)

			cli.SetVerbosity(a.config.Verbosity) // Update logging after loading config if necessary
			return nil
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	a.installConvert()
	a.installWatch()
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().StringVar(&app.config.Kernel, "kernel", "", "command line starting the geometry kernel helper")
	cmd.PersistentFlags().StringVar(&app.config.PluginRunner, "plugin-runner", "", "command line evaluating CAD scripts")
	cmd.PersistentFlags().DurationVar(&app.config.PluginTimeout, "plugin-timeout", constants.DefaultPluginTimeout, "maximum duration of a script evaluation")
	cmd.PersistentFlags().StringVar(&app.config.StyleFile, "style-file", "", "TOML file overriding the default shape styling")
	cmd.PersistentFlags().StringVar(&app.config.Hash, "hash", constants.DefaultHash, "hash naming the artifacts: sha1 or blake3")
	cmd.PersistentFlags().StringVar(&app.config.MetricsFile, "metrics-file", "", "write job metrics to this file in the Prometheus text format")

	if err := cmd.MarkPersistentFlagFilename("style-file", "toml"); err != nil {
		panic(fmt.Sprintf("failed to mark style-file flag as filename: %v", err))
	}
}

// installJobFlags adds the flags describing the conversion jobs to cmd.
func (a *App) installJobFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&a.config.TargetDir, "target-dir", "t", "", "directory receiving the artifacts and the descriptor")
	cmd.Flags().BoolVarP(&a.config.KeepOriginal, "keep-original", "k", false, "do not remove the input after a successful conversion")

	if err := cmd.MarkFlagRequired("target-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark target-dir flag as required: %v", err))
	}
	if err := cmd.MarkFlagDirname("target-dir"); err != nil {
		panic(fmt.Sprintf("failed to mark target-dir flag as directory: %v", err))
	}
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// Hup prints all goroutine stack traces and return false to signal you shouldn't quit.
func (a App) Hup() (shouldQuit bool) {
	buf := make([]byte, 1<<16)
	runtime.Stack(buf, true)
	fmt.Printf("%s", buf)
	return false
}

// Quit cancels the running job, or stops watching.
func (a *App) Quit() {
	a.cancel()
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}
