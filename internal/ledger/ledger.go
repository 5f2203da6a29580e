// =============================================================================
// Insurance Report ETL - Idempotency Ledger
// =============================================================================
//
// The ledger is an append-only text log, one per report family, recording
// every cleaning attempt:
//
//   filename|status|timestamp|output_file
//   rapport_p12.xlsx|SUCCESS|2024-05-02 10:14:03|PRINCIPAUX_INDICATEURS.xlsx
//   rapport_p13.xlsx|FAILED|2024-05-02 10:14:04|
//
// Later lines shadow earlier lines for the same filename. A file is skipped
// when it has an entry and has not been modified since that entry was
// written.
//
// CONCURRENCY:
//   A Ledger is safe for concurrent IsProcessed calls, but the batch runner
//   funnels every Record call through a single goroutine so that one process
//   only ever appends sequentially.
//
// =============================================================================

package ledger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ginjaninja78/insurance-report-etl/pkg/utils"
)

// HeaderLine is the first line of every ledger file.
const HeaderLine = "filename|status|timestamp|output_file"

// TimestampLayout is the timestamp format of ledger lines (local time,
// one-second resolution).
const TimestampLayout = "2006-01-02 15:04:05"

// Status is the outcome of one cleaning attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Entry is one ledger line.
type Entry struct {
	Filename   string
	Status     Status
	Timestamp  time.Time
	OutputFile string
}

// Ledger is an opened ledger file with its entries loaded.
type Ledger struct {
	path string

	mu      sync.RWMutex
	entries []Entry
	latest  map[string]Entry

	// now is replaced in tests.
	now func() time.Time
}

// Open loads the ledger at path, creating it (and its directory) with the
// header line when it does not exist yet.
//
// PARAMETERS:
//   - path: The ledger file path.
//
// RETURNS:
//   - The opened ledger.
//   - An error if the file cannot be created or read.
func Open(path string) (*Ledger, error) {
	l := &Ledger{path: path, latest: make(map[string]Entry), now: time.Now}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(HeaderLine+"\n"), 0644); err != nil {
			return nil, fmt.Errorf("failed to create ledger: %w", err)
		}
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			if line == HeaderLine {
				continue
			}
		}
		if line == "" {
			continue
		}
		entry, ok := parseLine(line)
		if !ok {
			continue
		}
		l.add(entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return l, nil
}

// parseLine parses "filename|status|timestamp[|output]". Lines with fewer
// than three fields or an unreadable timestamp are ignored.
func parseLine(line string) (Entry, bool) {
	parts := strings.Split(line, "|")
	if len(parts) < 3 {
		return Entry{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, parts[2], time.Local)
	if err != nil {
		return Entry{}, false
	}
	e := Entry{Filename: parts[0], Status: Status(parts[1]), Timestamp: ts}
	if len(parts) > 3 {
		e.OutputFile = parts[3]
	}
	return e, true
}

func (l *Ledger) add(e Entry) {
	l.entries = append(l.entries, e)
	l.latest[e.Filename] = e
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// IsProcessed reports whether inputPath can be skipped: an entry exists for
// its base name and the file was not modified after that entry. A file that
// no longer exists is reported as processed since there is nothing to do.
func (l *Ledger) IsProcessed(inputPath string) bool {
	modTime, err := utils.GetFileModTime(inputPath)
	if err != nil {
		return true
	}

	l.mu.RLock()
	entry, ok := l.latest[filepath.Base(inputPath)]
	l.mu.RUnlock()
	if !ok {
		return false
	}

	// The ledger only has second resolution.
	mtime := modTime.Truncate(time.Second)
	return !mtime.After(entry.Timestamp)
}

// Record appends one entry. output may be empty (failed attempts).
func (l *Ledger) Record(filename string, status Status, output string) error {
	e := Entry{
		Filename:   filename,
		Status:     status,
		Timestamp:  l.now().Truncate(time.Second),
		OutputFile: output,
	}
	line := fmt.Sprintf("%s|%s|%s|%s\n", e.Filename, e.Status, e.Timestamp.Format(TimestampLayout), e.OutputFile)

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open ledger for append: %w", err)
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close ledger: %w", err)
	}

	l.add(e)
	return nil
}

// Entries returns every entry in file order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Latest returns the authoritative entry for filename.
func (l *Ledger) Latest(filename string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.latest[filename]
	return e, ok
}
