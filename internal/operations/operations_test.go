package operations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/adb"
	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/config"
)

// fakeFetcher stands in for the adb client and "pulls" a fixed file set.
type fakeFetcher struct {
	devErr  error
	pullErr error
	files   map[string]string // rel path -> content
}

func (f *fakeFetcher) CheckDevice(ctx context.Context) error { return f.devErr }

func (f *fakeFetcher) PullAll(ctx context.Context, remotes []string, tempDir string) error {
	if f.pullErr != nil {
		return f.pullErr
	}
	for rel, content := range f.files {
		path := filepath.Join(tempDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	base := t.TempDir()
	return config.Config{
		Backup: config.BackupConfig{
			RootDir:  filepath.Join(base, "CarLogs"),
			TempDir:  filepath.Join(base, "CarLogs", ".pull"),
			KeepDays: 30,
		},
		Device: config.DeviceConfig{
			LogPaths: []string{"/mnt/sdcard/AdayoLog"},
			Timeout:  time.Minute,
		},
		Scan: config.ScanConfig{MaxMatches: 20},
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRun_FullPipeline(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local)
	fetcher := &fakeFetcher{files: map[string]string{
		"AdayoLog/logcat/main.log": "I boot ok\nE AndroidRuntime: FATAL EXCEPTION: main\n",
		"AdayoLog/kernel/kmsg.log": "clean\n",
	}}

	r := NewRunner(cfg, WithFetcher(fetcher), WithClock(fixedClock(now)))
	require.NoError(t, r.Run(context.Background()))

	backupDir := filepath.Join(cfg.Backup.RootDir, "2026-02-01")
	assert.FileExists(t, filepath.Join(backupDir, "AdayoLog", "logcat", "main.log"))
	assert.FileExists(t, filepath.Join(backupDir, TransferLogFilename))
	assert.FileExists(t, backupDir+".zip")

	summary, err := os.ReadFile(filepath.Join(backupDir, SummaryFilename))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "==== Crash Analysis (2026-02-01) ====")
	assert.Contains(t, string(summary), "[FATAL] matches:")
	assert.Contains(t, string(summary), "AdayoLog/logcat/main.log:2: E AndroidRuntime: FATAL EXCEPTION: main")

	var record RunRecord
	require.NoError(t, record.Load(filepath.Join(backupDir, MetadataFilename)))
	assert.Equal(t, "2026-02-01", record.Date)
	assert.Equal(t, 2, record.FilesCopied)
	assert.Equal(t, 1, record.CrashHits)
	assert.Zero(t, record.Issues)
}

func TestRun_AbortsWhenDeviceUnavailable(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local)
	fetcher := &fakeFetcher{
		devErr: fmt.Errorf("%w: no authorized device connected", adb.ErrDeviceUnavailable),
	}

	r := NewRunner(cfg, WithFetcher(fetcher), WithClock(fixedClock(now)))
	err := r.Run(context.Background())
	require.ErrorIs(t, err, adb.ErrDeviceUnavailable)

	// The backup dir for the day must not have been created or touched.
	assert.NoDirExists(t, filepath.Join(cfg.Backup.RootDir, "2026-02-01"))
}

func TestRun_AbortsWhenPullFails(t *testing.T) {
	cfg := testConfig(t)
	fetcher := &fakeFetcher{
		pullErr: fmt.Errorf("%w: pull %q: no files pulled", adb.ErrTransfer, "/mnt/sdcard/AdayoLog"),
	}

	r := NewRunner(cfg, WithFetcher(fetcher))
	err := r.Run(context.Background())
	require.ErrorIs(t, err, adb.ErrTransfer)
}

func TestRun_RejectsInvalidConfiguration(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.KeepDays = -2

	r := NewRunner(cfg, WithFetcher(&fakeFetcher{}))
	err := r.Run(context.Background())
	require.ErrorIs(t, err, config.ErrValidateConfig)
}

func TestRun_SummaryIsIdenticalAcrossReruns(t *testing.T) {
	cfg := testConfig(t)
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local)
	fetcher := &fakeFetcher{files: map[string]string{
		"AdayoLog/logcat/main.log": "ANR in com.adayo.launcher\ntombstone written\n",
	}}
	r := NewRunner(cfg, WithFetcher(fetcher), WithClock(fixedClock(now)))

	summaryPath := filepath.Join(cfg.Backup.RootDir, "2026-02-01", SummaryFilename)

	require.NoError(t, r.Run(context.Background()))
	first, err := os.ReadFile(summaryPath)
	require.NoError(t, err)

	require.NoError(t, r.Run(context.Background()))
	second, err := os.ReadFile(summaryPath)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestRun_SweepsExpiredBackups(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.Backup.RootDir, 0o755))
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.Local)

	expired := filepath.Join(cfg.Backup.RootDir, "2025-12-01")
	writeFile(t, filepath.Join(expired, "old.log"), "x\n")
	stale := now.AddDate(0, 0, -62)
	require.NoError(t, os.Chtimes(expired, stale, stale))

	fetcher := &fakeFetcher{files: map[string]string{
		"AdayoLog/logcat/main.log": "fine\n",
	}}
	r := NewRunner(cfg, WithFetcher(fetcher), WithClock(fixedClock(now)))
	require.NoError(t, r.Run(context.Background()))

	assert.NoDirExists(t, expired)
	assert.DirExists(t, filepath.Join(cfg.Backup.RootDir, "2026-02-01"))
}

func TestRun_CancelledContextAborts(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &fakeFetcher{files: map[string]string{"AdayoLog/a.log": "x\n"}}
	r := NewRunner(cfg, WithFetcher(fetcher))
	err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
