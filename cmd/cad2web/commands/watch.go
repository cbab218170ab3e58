package commands

import (
	"fmt"
	"os"

	"github.com/cadracks/cad2web/internal/watcher"
	"github.com/spf13/cobra"
)

func (a *App) installWatch() {
	cmd := &cobra.Command{
		Use:   "watch INBOX",
		Short: "Convert every file dropped into a directory",
		Long: `Watch the inbox directory and convert every file written into it, one at a time.
Files already present are converted first. Hidden files and files ending with .part or ~ are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Argument errors are usage errors.
			a.cmd.SilenceUsage = false
			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("invalid inbox: %v", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("inbox %s should be a directory", args[0])
			}
			a.cmd.SilenceUsage = true

			return a.watch(args[0])
		},
	}

	a.installJobFlags(cmd)
	cmd.Flags().DurationVar(&a.config.Debounce, "debounce", watcher.DefaultDebounce, "time a file must stay unchanged before being converted")

	a.cmd.AddCommand(cmd)
}

func (a *App) watch(inbox string) error {
	r, err := a.newJobRunner()
	if err != nil {
		return err
	}

	w := watcher.New(inbox, a.config.TargetDir, r,
		watcher.WithDebounce(a.config.Debounce),
		watcher.WithKeepOriginal(a.config.KeepOriginal))
	return w.Run(a.ctx)
}
