package operations

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestMirror_CopiesTreeAndPreservesModTimes(t *testing.T) {
	tempDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "2026-02-01")

	writeFile(t, filepath.Join(tempDir, "AdayoLog", "logcat", "main.log"), "line one\n")
	writeFile(t, filepath.Join(tempDir, "anr", "traces.txt"), "trace\n")

	captured := time.Date(2026, 1, 31, 22, 15, 0, 0, time.Local)
	src := filepath.Join(tempDir, "AdayoLog", "logcat", "main.log")
	require.NoError(t, os.Chtimes(src, captured, captured))

	rec, err := Mirror(context.Background(), tempDir, backupDir, logger.Global())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"AdayoLog/logcat/main.log", "anr/traces.txt"}, rec.Copied)
	assert.Empty(t, rec.Failed)

	dst := filepath.Join(backupDir, "AdayoLog", "logcat", "main.log")
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, captured.Equal(info.ModTime()),
		"expected mirrored mtime %v, got %v", captured, info.ModTime())
}

func TestMirror_RecordsUnreadableFileAndKeepsGoing(t *testing.T) {
	tempDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backup")

	writeFile(t, filepath.Join(tempDir, "good.log"), "ok\n")
	// A dangling symlink fails every open attempt, like a locked file.
	require.NoError(t, os.Symlink(filepath.Join(tempDir, "gone"), filepath.Join(tempDir, "broken.log")))
	writeFile(t, filepath.Join(tempDir, "zzz.log"), "also ok\n")

	rec, err := Mirror(context.Background(), tempDir, backupDir, logger.Global())
	require.NoError(t, err)

	assert.Equal(t, []string{"good.log", "zzz.log"}, rec.Copied)
	assert.Equal(t, []string{"broken.log"}, rec.Failed)
	assert.FileExists(t, filepath.Join(backupDir, "good.log"))
	assert.FileExists(t, filepath.Join(backupDir, "zzz.log"))
}

func TestMirror_WritesTransferLog(t *testing.T) {
	tempDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backup")
	writeFile(t, filepath.Join(tempDir, "a", "one.log"), "x\n")
	require.NoError(t, os.Symlink(filepath.Join(tempDir, "gone"), filepath.Join(tempDir, "b.log")))

	rec, err := Mirror(context.Background(), tempDir, backupDir, logger.Global())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(backupDir, TransferLogFilename), rec.LogPath)

	data, err := os.ReadFile(rec.LogPath)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Copied\ta/one.log\n")
	assert.Contains(t, content, "Failed\tb.log\n")
	assert.Contains(t, content, "Total\tcopied=1 skipped=0 failed=1\n")
}

func TestMirror_EmptyTempDirStillProducesLog(t *testing.T) {
	tempDir := t.TempDir()
	backupDir := filepath.Join(t.TempDir(), "backup")

	rec, err := Mirror(context.Background(), tempDir, backupDir, logger.Global())
	require.NoError(t, err)
	assert.Empty(t, rec.Copied)
	assert.FileExists(t, rec.LogPath)
}
