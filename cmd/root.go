package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/config"
	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
)

// ConfigFile is the path to the YAML configuration.
var (
	ConfigFile string
	// rootCmd is the base command for the toolbox.
	rootCmd = &cobra.Command{
		Use:   "ivi-toolbox-pro",
		Short: "Pull, triage, and archive IVI head unit logs",
		Long: `ivi-toolbox-pro pulls the log directories of an attached head unit
over adb, mirrors them into a dated backup folder, scans the mirror for
crash signatures, archives it, and prunes backups past the retention
window.`,
	}
)

// Execute runs the root command.
func Execute() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		logger.Global().Error("command failed", "error", err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().
		StringVarP(&ConfigFile, "config", "c", "./configs/config.yaml", "path to YAML config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(sweepCmd)
}

// loadConfig reads the configuration and brings the logger up at the
// configured level. Shared by all subcommands.
func loadConfig() (config.Config, error) {
	var cfg config.Config
	if err := cfg.Load(ConfigFile); err != nil {
		return cfg, err
	}
	if _, err := logger.Init(cfg.Log.Level); err != nil {
		return cfg, err
	}
	return cfg, nil
}
