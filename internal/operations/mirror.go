package operations

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/retry"
)

// TransferLogFilename keeps the name the scripted predecessor used for its
// transfer log, so existing triage habits keep working.
const TransferLogFilename = "robocopy.log"

const (
	copyAttempts   = 3
	copyRetryDelay = 200 * time.Millisecond
)

// TransferRecord enumerates the outcome of one mirror pass.
type TransferRecord struct {
	Copied  []string
	Skipped []string // irregular entries (sockets, devices, broken links)
	Failed  []string // regular files that failed after retries
	LogPath string
}

// Mirror recursively copies the contents of tempDir into backupDir,
// preserving directory structure and file modification times. Individual
// file failures are retried with a short backoff, then recorded and
// skipped; they never abort the pass. The transfer log is written into
// backupDir before returning.
func Mirror(ctx context.Context, tempDir, backupDir string, log logger.Logger) (*TransferRecord, error) {
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir %q: %w", backupDir, err)
	}
	rec := &TransferRecord{LogPath: filepath.Join(backupDir, TransferLogFilename)}

	// WalkDir visits entries in lexical order, which keeps the transfer
	// log content deterministic for identical input.
	walkErr := filepath.WalkDir(tempDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil {
				return err // tempDir itself unreadable
			}
			rel, relErr := filepath.Rel(tempDir, p)
			if relErr != nil {
				rel = p
			}
			log.Warn("unreadable entry skipped", "path", p, "error", err.Error())
			rec.Failed = append(rec.Failed, filepath.ToSlash(rel))
			return fs.SkipDir
		}
		rel, err := filepath.Rel(tempDir, p)
		if err != nil || rel == "." {
			return err
		}
		dst := filepath.Join(backupDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			rec.Skipped = append(rec.Skipped, filepath.ToSlash(rel))
			return nil
		}

		copyOnce := func() error { return copyFile(p, dst) }
		if err := retry.Do(ctx, copyAttempts, copyRetryDelay, copyOnce); err != nil {
			log.Warn("file copy failed", "file", rel, "error", err.Error())
			rec.Failed = append(rec.Failed, filepath.ToSlash(rel))
			return nil
		}
		rec.Copied = append(rec.Copied, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("mirror %q: %w", tempDir, walkErr)
	}

	if err := writeTransferLog(rec); err != nil {
		return rec, fmt.Errorf("write transfer log: %w", err)
	}
	return rec, nil
}

// copyFile copies src to dst and carries over src's modification time, so
// retention decisions reflect when the log was captured, not mirrored.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst) // a half-written file must not look transferred
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func writeTransferLog(rec *TransferRecord) error {
	var b strings.Builder
	for _, f := range rec.Copied {
		fmt.Fprintf(&b, "Copied\t%s\n", f)
	}
	for _, f := range rec.Skipped {
		fmt.Fprintf(&b, "Skipped\t%s\n", f)
	}
	for _, f := range rec.Failed {
		fmt.Fprintf(&b, "Failed\t%s\n", f)
	}
	fmt.Fprintf(&b, "Total\tcopied=%d skipped=%d failed=%d\n",
		len(rec.Copied), len(rec.Skipped), len(rec.Failed))
	return os.WriteFile(rec.LogPath, []byte(b.String()), 0o644)
}
