package commands

import (
	"fmt"
	"log/slog"

	"github.com/cadracks/cad2web/internal/models"
	"github.com/spf13/cobra"
)

func (a *App) installConvert() {
	cmd := &cobra.Command{
		Use:   "convert INPUT",
		Short: "Convert a single CAD file",
		Long: `Convert a single CAD file into artifacts and a descriptor in the target directory.

The input is removed after a successful conversion, unless --keep-original is set.
Assembly scripts are loaded from the project described by the --clone-url flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.convert(args[0])
		},
	}

	a.installJobFlags(cmd)
	cmd.Flags().StringVar(&a.config.Remote.CloneURL, "clone-url", "", "git URL of the project holding an assembly script")
	cmd.Flags().StringVar(&a.config.Remote.Branch, "branch", "", "branch to check out after cloning")
	cmd.Flags().StringVar(&a.config.Remote.Project, "project", "", "directory name of the clone, derived from the URL when empty")
	cmd.Flags().StringVar(&a.config.Remote.PathFromProjectRoot, "path-from-project-root", "", "path of the assembly script inside the project")

	a.cmd.AddCommand(cmd)
}

func (a *App) convert(input string) error {
	r, err := a.newJobRunner()
	if err != nil {
		return err
	}

	job := models.Job{
		InputPath:    input,
		TargetDir:    a.config.TargetDir,
		KeepOriginal: a.config.KeepOriginal,
		Remote: models.Remote{
			CloneURL:            a.config.Remote.CloneURL,
			Branch:              a.config.Remote.Branch,
			Project:             a.config.Remote.Project,
			PathFromProjectRoot: a.config.Remote.PathFromProjectRoot,
		},
	}

	res, err := r.Run(a.ctx, job)
	if err != nil {
		return err
	}
	slog.Info("Conversion done", "input", input, "descriptor", res.Descriptor, "artifacts", len(res.Artifacts),
		"skipped", len(res.Failures))
	fmt.Fprintln(a.cmd.OutOrStdout(), res.Descriptor)

	return nil
}
