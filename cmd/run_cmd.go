package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/operations"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full log backup pipeline",
	Long: `run pulls the configured device log directories, mirrors them into
today's backup folder, writes the crash analysis summary, compresses the
folder, and removes backups older than the retention window.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Stop between stages on Ctrl-C / SIGTERM.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return operations.NewRunner(cfg).Run(ctx)
	},
}
