package cmd

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/operations"
)

var scanDir string

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Re-run the crash analysis over an existing backup directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		dir := scanDir
		if dir == "" {
			rc, err := operations.Plan(cfg, time.Now())
			if err != nil {
				return err
			}
			dir = rc.BackupDir
		}

		summary, err := operations.ScanCrashes(
			dir,
			filepath.Base(dir),
			operations.DefaultPatterns(),
			cfg.Scan.MaxMatches,
			logger.Global(),
		)
		if err != nil {
			return err
		}
		summaryPath := filepath.Join(dir, operations.SummaryFilename)
		if err := summary.Write(summaryPath); err != nil {
			return err
		}
		logger.Global().Info("crash analysis written",
			"summary", summaryPath,
			"matches", summary.TotalMatches(),
		)
		return nil
	},
}

func init() {
	scanCmd.Flags().
		StringVarP(&scanDir, "dir", "d", "", "backup directory to scan (defaults to today's)")
}
