// =============================================================================
// Insurance Report ETL - XLSX Writer
// =============================================================================
//
// This module writes cleaned tables and the star-schema workbook.
//
// ATOMIC WRITES:
//   Every workbook is first saved to a temporary file in the destination
//   directory (".tmp-<uuid>.xlsx") and then renamed over the destination.
//   A failed write therefore never leaves a truncated or partial file behind,
//   and retrying simply overwrites.
//
// CELL MAPPING:
//   Number  -> numeric cell
//   Text    -> string cell
//   Missing -> empty cell
//
// =============================================================================

package xlsxwriter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

// DefaultSheetName is the sheet used for single-table files.
const DefaultSheetName = "Sheet1"

// Sheet is one worksheet to write: a header row followed by data rows.
type Sheet struct {
	Name   string
	Header []string
	Rows   []types.Row
}

// WriteTable writes one cleaned table to path as a single-sheet workbook.
//
// PARAMETERS:
//   - path: The destination file (created or replaced).
//   - t: The table to write.
//
// RETURNS:
//   - An error if the workbook cannot be built or saved.
func WriteTable(path string, t *types.Table) error {
	return WriteSheets(path, []Sheet{{Name: DefaultSheetName, Header: t.Header, Rows: t.Rows}})
}

// WriteSheets writes the given sheets, in order, to a new workbook that
// atomically replaces path.
func WriteSheets(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return errors.New("no sheets to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	// A new workbook starts with one default sheet: rename it to the first
	// requested sheet instead of leaving an empty extra one.
	if sheets[0].Name != DefaultSheetName {
		if err := f.SetSheetName(DefaultSheetName, sheets[0].Name); err != nil {
			return fmt.Errorf("failed to name sheet %s: %w", sheets[0].Name, err)
		}
	}
	for _, s := range sheets[1:] {
		if _, err := f.NewSheet(s.Name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", s.Name, err)
		}
	}

	for _, s := range sheets {
		if err := writeSheet(f, s); err != nil {
			return err
		}
	}

	return saveAtomic(f, path)
}

// writeSheet fills one worksheet, header at row 1.
func writeSheet(f *excelize.File, s Sheet) error {
	header := make([]interface{}, len(s.Header))
	for i, h := range s.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header of %s: %w", s.Name, err)
	}

	for i, row := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = cellValue(v)
		}
		if err := f.SetSheetRow(s.Name, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+2, s.Name, err)
		}
	}
	return nil
}

func cellValue(v types.Value) interface{} {
	switch v.Kind {
	case types.Number:
		return v.Num
	case types.Text:
		return v.Str
	default:
		return nil
	}
}

// saveAtomic saves the workbook next to path and renames it into place.
func saveAtomic(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp := filepath.Join(dir, ".tmp-"+uuid.New().String()+".xlsx")
	if err := f.SaveAs(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move workbook into place: %w", err)
	}
	return nil
}
