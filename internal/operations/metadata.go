package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const MetadataFilename = "metadata.json"

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Stage  string `json:"stage"`
	Status string `json:"status"` // ok | failed | skipped
	Error  string `json:"error,omitempty"`
}

// RunRecord is the per-run metadata written next to the mirrored logs.
type RunRecord struct {
	Date        string        `json:"date"`
	Serial      string        `json:"serial,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration_ms"`
	FilesCopied int           `json:"files_copied"`
	FilesFailed int           `json:"files_failed"`
	CrashHits   int           `json:"crash_hits"`
	Issues      int           `json:"issues"`
	Stages      []StageResult `json:"stages"`
	SummaryPath string        `json:"summary_path,omitempty"`
	ArchivePath string        `json:"archive_path,omitempty"`
}

// Load reads a run record from filePath.
func (r *RunRecord) Load(filePath string) error {
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("couldn't open metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	decoder := json.NewDecoder(jsonFile)
	if err := decoder.Decode(r); err != nil {
		return fmt.Errorf("decode metadata JSON: %w", err)
	}
	return nil
}

// Write stores the run record as metadata.json inside dirPath.
func (r *RunRecord) Write(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return fmt.Errorf("ensure metadata directory %q: %w", dirPath, err)
	}

	filePath := filepath.Join(dirPath, MetadataFilename)
	jsonFile, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create metadata file %q: %w", filePath, err)
	}
	defer jsonFile.Close()

	encoder := json.NewEncoder(jsonFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(r); err != nil {
		return fmt.Errorf("encode metadata JSON: %w", err)
	}
	return nil
}
