package operations

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dengzhu-hub/ivi-toolbox-pro/internal/logger"
)

// SummaryFilename is the crash analysis artifact written into a backup dir.
const SummaryFilename = "analysis_summary.txt"

// CrashPattern is one named crash signature. Order in the pattern set only
// affects summary layout, never which matches are found.
type CrashPattern struct {
	Name    string
	Matcher *regexp.Regexp
}

// DefaultPatterns returns the fixed crash signature set for Adayo device
// logs. All matchers are case-insensitive.
func DefaultPatterns() []CrashPattern {
	return []CrashPattern{
		{Name: "TOMBSTONE", Matcher: regexp.MustCompile(`(?i)tombstone`)},
		{Name: "ANR", Matcher: regexp.MustCompile(`(?i)\bANR\b|am_anr|not responding`)},
		{Name: "FATAL", Matcher: regexp.MustCompile(`(?i)FATAL EXCEPTION|F DEBUG`)},
		{Name: "SIG", Matcher: regexp.MustCompile(`(?i)fatal signal|SIGSEGV|SIGABRT|SIGBUS`)},
	}
}

// CrashMatch is one matched line.
type CrashMatch struct {
	Pattern string
	File    string // relative to the scanned dir, forward slashes
	Line    int    // 1-based
	Text    string
}

// AnalysisSummary holds the scan result for one backup directory.
type AnalysisSummary struct {
	DateStamp  string
	Patterns   []CrashPattern
	MaxMatches int
	Matches    map[string][]CrashMatch
}

// artifacts this tool writes itself; scanning them would self-match.
var reservedFilenames = map[string]bool{
	SummaryFilename:     true,
	TransferLogFilename: true,
	MetadataFilename:    true,
}

// ScanCrashes walks every regular file under backupDir in lexical path
// order and collects, per pattern, up to maxMatches matching lines. Binary
// and unreadable files are skipped; neither fails the scan.
func ScanCrashes(backupDir, dateStamp string, patterns []CrashPattern, maxMatches int, log logger.Logger) (*AnalysisSummary, error) {
	if maxMatches <= 0 {
		maxMatches = 20
	}
	summary := &AnalysisSummary{
		DateStamp:  dateStamp,
		Patterns:   patterns,
		MaxMatches: maxMatches,
		Matches:    make(map[string][]CrashMatch, len(patterns)),
	}

	err := filepath.WalkDir(backupDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d == nil {
				return err
			}
			log.Warn("scan skipped unreadable entry", "path", p, "error", err.Error())
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if reservedFilenames[d.Name()] {
			return nil
		}
		rel, err := filepath.Rel(backupDir, p)
		if err != nil {
			rel = p
		}
		if err := scanFile(p, filepath.ToSlash(rel), summary); err != nil {
			// A per-file read error counts as zero matches for that file.
			log.Warn("scan skipped file", "file", rel, "error", err.Error())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", backupDir, err)
	}
	return summary, nil
}

func scanFile(path, rel string, summary *AnalysisSummary) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := f.Read(head)
	if err != nil && err != io.EOF {
		return err
	}
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return nil // binary file
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		for _, pat := range summary.Patterns {
			if len(summary.Matches[pat.Name]) >= summary.MaxMatches {
				continue
			}
			if pat.Matcher.MatchString(line) {
				summary.Matches[pat.Name] = append(summary.Matches[pat.Name], CrashMatch{
					Pattern: pat.Name,
					File:    rel,
					Line:    lineNo,
					Text:    line,
				})
			}
		}
	}
	return scanner.Err()
}

// Render produces the summary text. Byte-identical for identical input:
// pattern order is fixed and matches arrive in lexical file-then-line
// order from the walk.
func (s *AnalysisSummary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "==== Crash Analysis (%s) ====\n", s.DateStamp)
	for _, pat := range s.Patterns {
		fmt.Fprintf(&b, "\n[%s] matches:\n", pat.Name)
		matches := s.Matches[pat.Name]
		if len(matches) == 0 {
			b.WriteString("  None found.\n")
			continue
		}
		for _, m := range matches {
			fmt.Fprintf(&b, "  %s:%d: %s\n", m.File, m.Line, m.Text)
		}
	}
	return b.String()
}

// Write renders the summary to path.
func (s *AnalysisSummary) Write(path string) error {
	if err := os.WriteFile(path, []byte(s.Render()), 0o644); err != nil {
		return fmt.Errorf("write summary %q: %w", path, err)
	}
	return nil
}

// TotalMatches counts matches across all patterns.
func (s *AnalysisSummary) TotalMatches() int {
	total := 0
	for _, matches := range s.Matches {
		total += len(matches)
	}
	return total
}
