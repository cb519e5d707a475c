// Package operations implements the log backup pipeline: plan paths,
// fetch device logs, mirror them into a dated backup directory, scan the
// mirror for crash signatures, archive it, and sweep expired backups.
package operations

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/adb"
	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/config"
	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
)

// Fetcher is the slice of the debug bridge client the pipeline needs.
type Fetcher interface {
	CheckDevice(ctx context.Context) error
	PullAll(ctx context.Context, remotes []string, tempDir string) error
}

// RunnerOption overrides a Runner default.
type RunnerOption func(*Runner)

// Runner sequences the pipeline stages for one run. The stage order is
// fixed; only a missing device (or cancellation) aborts a run, every other
// failure is recorded and the run continues.
type Runner struct {
	cfg     config.Config
	fetcher Fetcher
	log     logger.Logger
	now     func() time.Time
}

// NewRunner builds a Runner from cfg. The default fetcher shells out to
// the adb binary on PATH.
func NewRunner(cfg config.Config, opts ...RunnerOption) *Runner {
	r := &Runner{
		cfg: cfg,
		log: logger.Global(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = adb.NewClient(
			adb.WithSerial(cfg.Device.Serial),
			adb.WithTimeout(cfg.Device.Timeout),
			adb.WithLogger(r.log),
		)
	}
	return r
}

// WithFetcher substitutes the debug bridge client.
func WithFetcher(f Fetcher) RunnerOption {
	return func(r *Runner) { r.fetcher = f }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRunnerLogger substitutes the logger.
func WithRunnerLogger(log logger.Logger) RunnerOption {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// Run executes one full pipeline pass. It returns an error only when the
// run aborted (bad configuration, no device, failed pull, cancellation);
// non-fatal stage failures are logged, counted, and reflected in the
// final status line but leave the return value nil.
func (r *Runner) Run(ctx context.Context) error {
	start := r.now()

	if err := r.cfg.Validate(); err != nil {
		return r.abort("plan", err)
	}
	rc, err := Plan(r.cfg, start)
	if err != nil {
		return r.abort("plan", err)
	}

	record := RunRecord{
		Date:      rc.DateStamp,
		Serial:    r.cfg.Device.Serial,
		StartedAt: start,
	}
	var issues *multierror.Error

	// Fetching. The only stage whose failure abandons the run: mirroring
	// and analyzing an empty pull would produce a misleading summary.
	if err := r.fetcher.CheckDevice(ctx); err != nil {
		return r.abort("fetch", err)
	}
	if err := r.fetcher.PullAll(ctx, r.cfg.Device.LogPaths, rc.TempDir); err != nil {
		return r.abort("fetch", err)
	}
	record.Stages = append(record.Stages, StageResult{Stage: "fetch", Status: "ok"})
	if err := ctx.Err(); err != nil {
		return r.abort("fetch", err)
	}

	// Mirroring.
	transfer, err := Mirror(ctx, rc.TempDir, rc.BackupDir, r.log)
	if err != nil {
		issues = multierror.Append(issues, err)
		record.Stages = append(record.Stages, StageResult{Stage: "mirror", Status: "failed", Error: err.Error()})
	} else {
		record.Stages = append(record.Stages, StageResult{Stage: "mirror", Status: "ok"})
	}
	if transfer != nil {
		record.FilesCopied = len(transfer.Copied)
		record.FilesFailed = len(transfer.Failed)
		for _, f := range transfer.Failed {
			issues = multierror.Append(issues, fmt.Errorf("mirror: file %q failed", f))
		}
	}
	if err := ctx.Err(); err != nil {
		return r.abort("mirror", err)
	}

	// Analyzing.
	summary, err := ScanCrashes(rc.BackupDir, rc.DateStamp, DefaultPatterns(), r.cfg.Scan.MaxMatches, r.log)
	if err == nil {
		err = summary.Write(rc.SummaryPath)
	}
	if err != nil {
		issues = multierror.Append(issues, err)
		record.Stages = append(record.Stages, StageResult{Stage: "scan", Status: "failed", Error: err.Error()})
	} else {
		record.Stages = append(record.Stages, StageResult{Stage: "scan", Status: "ok"})
		record.CrashHits = summary.TotalMatches()
		record.SummaryPath = rc.SummaryPath
	}
	if err := ctx.Err(); err != nil {
		return r.abort("scan", err)
	}

	// Archiving.
	if err := Archive(rc.BackupDir, rc.ArchivePath); err != nil {
		r.log.Warn("archive failed", "error", err.Error())
		issues = multierror.Append(issues, err)
		record.Stages = append(record.Stages, StageResult{Stage: "archive", Status: "failed", Error: err.Error()})
	} else {
		record.Stages = append(record.Stages, StageResult{Stage: "archive", Status: "ok"})
		record.ArchivePath = rc.ArchivePath
	}
	if err := ctx.Err(); err != nil {
		return r.abort("archive", err)
	}

	// Sweeping.
	if err := Sweep(r.cfg.Backup.RootDir, r.cfg.Backup.KeepDays, r.now(), r.log,
		rc.BackupDir, rc.ArchivePath); err != nil {
		issues = multierror.Append(issues, err)
		record.Stages = append(record.Stages, StageResult{Stage: "sweep", Status: "failed", Error: err.Error()})
	} else {
		record.Stages = append(record.Stages, StageResult{Stage: "sweep", Status: "ok"})
	}

	record.CompletedAt = r.now()
	record.Duration = record.CompletedAt.Sub(start)
	record.Issues = issueCount(issues)
	if err := record.Write(rc.BackupDir); err != nil {
		r.log.Warn("run metadata not written", "error", err.Error())
	}

	if n := issueCount(issues); n > 0 {
		r.log.Warn(fmt.Sprintf("backup completed with %d issue(s)", n),
			"summary", rc.SummaryPath,
			"backup_dir", rc.BackupDir,
		)
	} else {
		r.log.Info("backup complete",
			"summary", rc.SummaryPath,
			"backup_dir", rc.BackupDir,
			"archive", rc.ArchivePath,
		)
	}
	return nil
}

// abort terminates the run with its single status line.
func (r *Runner) abort(stage string, err error) error {
	r.log.Error(fmt.Sprintf("backup aborted at %s stage", stage), "error", err.Error())
	return fmt.Errorf("%s: %w", stage, err)
}

func issueCount(errs *multierror.Error) int {
	if errs == nil {
		return 0
	}
	return len(errs.Errors)
}
