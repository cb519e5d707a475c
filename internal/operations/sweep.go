package operations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
)

// ErrCleanup indicates a retention deletion failed. Per-item and non-fatal.
var ErrCleanup = errors.New("cleanup failed")

// Sweep deletes immediate child directories and .zip files of root whose
// modification time is strictly older than now minus keepDays. The window
// is rolling (days as 24h spans), not a calendar cutoff. Paths listed in
// keep are never deleted; the current run passes its own backup dir and
// archive here so even keep_days 0 cannot eat them under clock skew.
// Deletion is best-effort per item; failures are aggregated and returned.
func Sweep(root string, keepDays int, now time.Time, log logger.Logger, keep ...string) error {
	cutoff := now.Add(-time.Duration(keepDays) * 24 * time.Hour)

	kept := make(map[string]bool, len(keep))
	for _, k := range keep {
		if abs, err := filepath.Abs(k); err == nil {
			kept[abs] = true
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("%w: read %q: %v", ErrCleanup, root, err)
	}

	var errs *multierror.Error
	for _, entry := range entries {
		full := filepath.Join(root, entry.Name())
		if abs, err := filepath.Abs(full); err == nil && kept[abs] {
			continue
		}
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warn("sweep could not stat entry", "path", full, "error", err.Error())
			errs = multierror.Append(errs, fmt.Errorf("%w: stat %q: %v", ErrCleanup, full, err))
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(full); err != nil {
			log.Warn("sweep could not delete expired backup", "path", full, "error", err.Error())
			errs = multierror.Append(errs, fmt.Errorf("%w: delete %q: %v", ErrCleanup, full, err))
			continue
		}
		log.Info("expired backup removed",
			"path", full,
			"age_days", int(now.Sub(info.ModTime()).Hours()/24),
		)
	}
	return errs.ErrorOrNil()
}
