// =============================================================================
// Insurance Report ETL - File Manager Utility
// =============================================================================
//
// This module provides the file bookkeeping around table cleaning:
//   - Input discovery (recursive walk for extracted .xlsx tables)
//   - Collision-free output naming (name.xlsx, name_1.xlsx, ...)
//   - Error log and processing summary generation
//   - File helpers
//
// NAMING:
//   Output names are reserved through a NameReserver shared by all workers
//   of a batch, so two tables cleaned in parallel can never pick the same
//   free name.
//
// =============================================================================

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles the input and output directories of one report family.
type FileManager struct {
	// InputDir is walked recursively for extracted tables.
	InputDir string

	// OutputDir receives cleaned tables and logs.
	OutputDir string
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir string) *FileManager {
	return &FileManager{
		InputDir:  inputDir,
		OutputDir: outputDir,
	}
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverInputFilesRecursive scans the input directory recursively.
//
// PARAMETERS:
//   - extension: The file extension to match (e.g., ".xlsx"), case-insensitive.
//
// RETURNS:
//   - The matching file paths, sorted.
//   - An error if the directory cannot be read.
//
// Spreadsheet lock files ("~$name.xlsx") and temporary files left by an
// interrupted write (".tmp-*") are ignored.
func (fm *FileManager) DiscoverInputFilesRecursive(extension string) ([]string, error) {
	var files []string

	err := filepath.Walk(fm.InputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		name := info.Name()
		if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".tmp-") {
			return nil
		}

		if extension == "" || strings.HasSuffix(strings.ToLower(name), strings.ToLower(extension)) {
			files = append(files, path)
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk input directory: %w", err)
	}

	sort.Strings(files)
	return files, nil
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// NameReserver hands out output names that collide neither with files
// already on disk nor with names reserved earlier in the same run.
type NameReserver struct {
	mu       sync.Mutex
	reserved map[string]struct{}
}

// NewNameReserver returns an empty reserver.
func NewNameReserver() *NameReserver {
	return &NameReserver{reserved: make(map[string]struct{})}
}

// Reserve returns the first free name among name, base_1.ext, base_2.ext...
// in dir and marks it as taken.
//
// EXAMPLE:
//   dir contains "Donnees.xlsx" and "Donnees_1.xlsx"
//   Reserve(dir, "Donnees.xlsx") -> "Donnees_2.xlsx"
func (r *NameReserver) Reserve(dir, name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	candidate := name
	for n := 1; r.taken(dir, candidate); n++ {
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
	r.reserved[filepath.Join(dir, candidate)] = struct{}{}
	return candidate
}

// Release gives a reserved name back, for example after a failed write.
func (r *NameReserver) Release(dir, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reserved, filepath.Join(dir, name))
}

func (r *NameReserver) taken(dir, name string) bool {
	path := filepath.Join(dir, name)
	if _, ok := r.reserved[path]; ok {
		return true
	}
	return FileExists(path)
}

// =============================================================================
// ERROR LOG GENERATION
// =============================================================================

// ErrorLogEntry is one failed file.
type ErrorLogEntry struct {
	Timestamp time.Time
	FileName  string

	// Stage is the pipeline step that failed ("read", "write", "cleaning").
	Stage   string
	Message string
}

// errorLogHeader is the first line of every error log.
const errorLogHeader = "timestamp|file|stage|message"

// WriteErrorLog writes one pipe-separated line per failed file, in the same
// layout as the processing log so both can be read by the same tools.
// Pipes and line breaks inside messages are replaced by spaces.
//
// RETURNS:
//   - The path of error_log_<label>_<time>.txt, or "" when entries is empty.
//   - An error if writing fails.
func WriteErrorLog(entries []ErrorLogEntry, outputDir, label string) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}

	logPath := filepath.Join(outputDir,
		fmt.Sprintf("error_log_%s_%s.txt", label, entries[0].Timestamp.Format("20060102_150405")))

	var b strings.Builder
	b.WriteString(errorLogHeader + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s|%s|%s|%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			oneLine(e.FileName), oneLine(e.Stage), oneLine(e.Message))
	}

	if err := os.WriteFile(logPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write error log: %w", err)
	}
	return logPath, nil
}

var logFieldReplacer = strings.NewReplacer("|", " ", "\r", " ", "\n", " ")

func oneLine(s string) string {
	return logFieldReplacer.Replace(s)
}

// =============================================================================
// PROCESSING SUMMARY
// =============================================================================

// ProcessingSummary describes one cleaning batch.
type ProcessingSummary struct {
	Label     string
	RunID     string
	StartTime time.Time
	EndTime   time.Time

	// Cleaned, Skipped and Failed list the inputs by outcome. Skipped holds
	// the files the processing log already covered.
	Cleaned []CleanedFile
	Skipped []string
	Failed  []FailedFile
}

// CleanedFile is one written output.
type CleanedFile struct {
	Input    string
	Output   string
	Rows     int
	Columns  int
	Duration time.Duration
}

// FailedFile is one input that produced no output.
type FailedFile struct {
	Input   string
	Message string
}

// Total is the number of inputs seen by the batch.
func (s ProcessingSummary) Total() int {
	return len(s.Cleaned) + len(s.Skipped) + len(s.Failed)
}

// WriteSummaryLog writes processing_summary_<label>_<start>.txt: a count
// line per outcome followed by one line per input, grouped by outcome.
//
// EXAMPLE:
//   CGA batch 3f2c... 2024-01-02 03:04:05 (1.2s)
//   cleaned 1, skipped 1, failed 1 of 3 (12 rows written)
//
//   CLEANED a.xlsx -> Compte.xlsx [12 x 4] 40ms
//   SKIPPED b.xlsx
//   FAILED  c.xlsx: failed to read spreadsheet: ...
func WriteSummaryLog(summary ProcessingSummary, outputDir string) (string, error) {
	summaryPath := filepath.Join(outputDir,
		fmt.Sprintf("processing_summary_%s_%s.txt", summary.Label, summary.StartTime.Format("20060102_150405")))

	rows := 0
	for _, f := range summary.Cleaned {
		rows += f.Rows
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s batch %s %s (%s)\n", summary.Label, summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond))
	fmt.Fprintf(&b, "cleaned %d, skipped %d, failed %d of %d (%d rows written)\n\n",
		len(summary.Cleaned), len(summary.Skipped), len(summary.Failed), summary.Total(), rows)

	for _, f := range summary.Cleaned {
		fmt.Fprintf(&b, "CLEANED %s -> %s [%d x %d] %s\n",
			filepath.Base(f.Input), f.Output, f.Rows, f.Columns, f.Duration.Round(time.Millisecond))
	}
	for _, f := range summary.Skipped {
		fmt.Fprintf(&b, "SKIPPED %s\n", filepath.Base(f))
	}
	for _, f := range summary.Failed {
		fmt.Fprintf(&b, "FAILED  %s: %s\n", filepath.Base(f.Input), oneLine(f.Message))
	}

	if err := os.WriteFile(summaryPath, []byte(b.String()), 0644); err != nil {
		return "", fmt.Errorf("failed to write summary log: %w", err)
	}
	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetFileModTime returns the modification time of a file.
func GetFileModTime(path string) (time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}
