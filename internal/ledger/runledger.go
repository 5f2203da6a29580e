package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"
	"time"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxparser"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxwriter"
)

// RunSheet is the sheet holding the load history.
const RunSheet = "Historique"

// RunHeader is the column layout of RunSheet.
var RunHeader = []string{"Annee", "Fichier_Indicateurs", "Date_Chargement"}

// RunEntry records one completed warehouse load.
type RunEntry struct {
	Year           int
	IndicatorsFile string
	LoadedAt       time.Time
}

// RunLedger gates warehouse loads: at most one load per (year, indicators
// file) pair. It is a workbook rewritten atomically on every Record.
type RunLedger struct {
	path    string
	entries []RunEntry
	now     func() time.Time
}

// OpenRunLedger reads the run ledger at path. A missing file is an empty
// ledger; it is created on the first Record.
func OpenRunLedger(path string) (*RunLedger, error) {
	r := &RunLedger{path: path, now: time.Now}

	sheets, err := xlsxparser.ReadSheets(path)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run ledger: %w", err)
	}

	t, ok := sheets[RunSheet]
	if !ok {
		return r, nil
	}
	yearCol := indexOf(t.Header, RunHeader[0])
	fileCol := indexOf(t.Header, RunHeader[1])
	dateCol := indexOf(t.Header, RunHeader[2])
	if yearCol < 0 || fileCol < 0 {
		return nil, fmt.Errorf("run ledger sheet %s lacks %s/%s columns", RunSheet, RunHeader[0], RunHeader[1])
	}

	for i := range t.Rows {
		year := t.Cell(i, yearCol).Float()
		if year == 0 || year != math.Trunc(year) {
			continue
		}
		e := RunEntry{
			Year:           int(year),
			IndicatorsFile: strings.TrimSpace(t.Cell(i, fileCol).String()),
		}
		if dateCol >= 0 {
			if ts, err := time.ParseInLocation(TimestampLayout, t.Cell(i, dateCol).String(), time.Local); err == nil {
				e.LoadedAt = ts
			}
		}
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// IsLoaded reports whether (year, indicatorsFile) was already loaded.
func (r *RunLedger) IsLoaded(year int, indicatorsFile string) bool {
	for _, e := range r.entries {
		if e.Year == year && e.IndicatorsFile == indicatorsFile {
			return true
		}
	}
	return false
}

// Record appends (year, indicatorsFile) and rewrites the ledger workbook.
func (r *RunLedger) Record(year int, indicatorsFile string) error {
	entries := append(r.entries, RunEntry{
		Year:           year,
		IndicatorsFile: indicatorsFile,
		LoadedAt:       r.now().Truncate(time.Second),
	})

	rows := make([]types.Row, len(entries))
	for i, e := range entries {
		rows[i] = types.Row{
			types.NumberValue(float64(e.Year)),
			types.TextValue(e.IndicatorsFile),
			types.TextValue(e.LoadedAt.Format(TimestampLayout)),
		}
	}
	sheet := xlsxwriter.Sheet{Name: RunSheet, Header: RunHeader, Rows: rows}
	if err := xlsxwriter.WriteSheets(r.path, []xlsxwriter.Sheet{sheet}); err != nil {
		return fmt.Errorf("failed to write run ledger: %w", err)
	}
	r.entries = entries
	return nil
}

// Entries returns the recorded loads in order.
func (r *RunLedger) Entries() []RunEntry {
	out := make([]RunEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

func indexOf(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}
