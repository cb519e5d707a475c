package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the YAML configuration.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded configuration is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

// Config represents the top-level YAML configuration file.
type Config struct {
	Include []string     `mapstructure:"include" yaml:"include,omitempty"`
	Backup  BackupConfig `mapstructure:"backup"  yaml:"backup"`
	Device  DeviceConfig `mapstructure:"device"  yaml:"device"`
	Scan    ScanConfig   `mapstructure:"scan"    yaml:"scan"`
	Log     LogConfig    `mapstructure:"log"     yaml:"log"`
}

// BackupConfig controls where backups land and how long they are kept.
type BackupConfig struct {
	RootDir   string `mapstructure:"root_dir"    yaml:"root_dir"`
	TempDir   string `mapstructure:"temp_dir"    yaml:"temp_dir"`
	KeepDays  int    `mapstructure:"keep_days"   yaml:"keep_days"`
	MinFreeMB uint64 `mapstructure:"min_free_mb" yaml:"min_free_mb,omitempty"`
}

// DeviceConfig describes the adb target and the remote log roots to pull.
type DeviceConfig struct {
	Serial   string        `mapstructure:"serial"    yaml:"serial,omitempty"`
	LogPaths []string      `mapstructure:"log_paths" yaml:"log_paths"`
	Timeout  time.Duration `mapstructure:"timeout"   yaml:"timeout,omitempty"`
}

// ScanConfig controls the crash signature scan.
type ScanConfig struct {
	MaxMatches int `mapstructure:"max_matches" yaml:"max_matches,omitempty"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level,omitempty"`
}

const (
	DefaultDeviceLogPath = "/mnt/sdcard/AdayoLog"
	DefaultTimeout       = 5 * time.Minute
	DefaultMaxMatches    = 20
)

// Load reads the configuration from the given YAML file using Viper,
// merges any included files, and unmarshals into the Config struct.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
	}

	// Merge include files (if any)
	for _, inc := range v.GetStringSlice("include") {
		data, err := os.ReadFile(inc)
		if err != nil {
			return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
		}
	}

	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if len(c.Device.LogPaths) == 0 {
		c.Device.LogPaths = []string{DefaultDeviceLogPath}
	}
	if c.Device.Timeout <= 0 {
		c.Device.Timeout = DefaultTimeout
	}
	if c.Scan.MaxMatches <= 0 {
		c.Scan.MaxMatches = DefaultMaxMatches
	}
}

// Validate checks the configuration and probes the local directories it
// names. It creates the backup root and temp dir when missing, verifies the
// root is writable, and optionally enforces a free-space floor.
func (c *Config) Validate() error {
	if c.Backup.RootDir == "" {
		return fmt.Errorf("%w: backup.root_dir is required", ErrValidateConfig)
	}
	if c.Backup.TempDir == "" {
		return fmt.Errorf("%w: backup.temp_dir is required", ErrValidateConfig)
	}
	if c.Backup.KeepDays < 0 {
		return fmt.Errorf("%w: backup.keep_days must be >= 0, got %d",
			ErrValidateConfig, c.Backup.KeepDays)
	}
	if len(c.Device.LogPaths) == 0 {
		return fmt.Errorf("%w: device.log_paths must name at least one remote path", ErrValidateConfig)
	}

	for _, dir := range []string{c.Backup.RootDir, c.Backup.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %q: %v", ErrValidateConfig, dir, err)
		}
	}

	// Write probe: MkdirAll succeeding on an existing dir says nothing
	// about our permission to create files in it.
	probe, err := os.CreateTemp(c.Backup.RootDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: backup.root_dir %q is not writable: %v",
			ErrValidateConfig, c.Backup.RootDir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	if c.Backup.MinFreeMB > 0 {
		usage, err := disk.Usage(c.Backup.RootDir)
		if err != nil {
			return fmt.Errorf("%w: disk usage for %q: %v",
				ErrValidateConfig, c.Backup.RootDir, err)
		}
		if usage.Free < c.Backup.MinFreeMB*1024*1024 {
			return fmt.Errorf("%w: %q has %d MB free, need at least %d MB",
				ErrValidateConfig, c.Backup.RootDir, usage.Free/1024/1024, c.Backup.MinFreeMB)
		}
	}
	return nil
}
