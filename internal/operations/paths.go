package operations

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/config"
)

// DateFormat is the canonical day stamp used for backup directories and
// archives. Retention keys off filesystem timestamps, but the stamp must
// stay stable so re-runs for the same day land in the same directory.
const DateFormat = "2006-01-02"

// ErrConfiguration indicates the run configuration cannot produce paths.
var ErrConfiguration = errors.New("invalid run configuration")

// RunContext holds the per-run paths derived once from the configuration
// and the current date. Immutable after Plan.
type RunContext struct {
	Date        time.Time
	DateStamp   string
	TempDir     string
	BackupDir   string
	ArchivePath string
	SummaryPath string
}

// Plan derives the run paths. Deterministic given cfg and now; it touches
// no filesystem state (directory probing lives in config.Validate).
func Plan(cfg config.Config, now time.Time) (*RunContext, error) {
	if cfg.Backup.RootDir == "" {
		return nil, fmt.Errorf("%w: backup root not set", ErrConfiguration)
	}
	if cfg.Backup.TempDir == "" {
		return nil, fmt.Errorf("%w: temp pull dir not set", ErrConfiguration)
	}

	stamp := now.Format(DateFormat)
	backupDir := filepath.Join(cfg.Backup.RootDir, stamp)
	return &RunContext{
		Date:        now,
		DateStamp:   stamp,
		TempDir:     cfg.Backup.TempDir,
		BackupDir:   backupDir,
		ArchivePath: backupDir + ".zip",
		SummaryPath: filepath.Join(backupDir, SummaryFilename),
	}, nil
}
