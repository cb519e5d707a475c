package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/operations"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete backups and archives older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return operations.Sweep(
			cfg.Backup.RootDir,
			cfg.Backup.KeepDays,
			time.Now(),
			logger.Global(),
		)
	},
}
