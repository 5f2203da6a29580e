// =============================================================================
// Insurance Report ETL - XLSX Reader
// =============================================================================
//
// This module reads the spreadsheets the pipeline consumes:
//   - raw extracted tables (one grid per file, first sheet)
//   - cleaned tables (first row is the header)
//   - the multi-sheet star-schema workbook
//
// Cells are read with their raw stored value (no number formatting applied)
// and converted once to the types.Value model by types.ParseCell.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

// ErrNoSheets is returned for a workbook without any worksheet.
var ErrNoSheets = errors.New("workbook has no sheets")

// rawValues makes GetRows return stored values ("1234.5") instead of
// formatted ones ("1 234,50").
var rawValues = excelize.Options{RawCellValue: true}

// =============================================================================
// GRID AND TABLE READERS
// =============================================================================

// ReadGrid reads the first sheet of an .xlsx file as a raw grid.
//
// PARAMETERS:
//   - path: The path to the spreadsheet.
//
// RETURNS:
//   - The grid, rows in sheet order. Trailing empty cells are not returned by
//     excelize, so rows may have different lengths.
//   - An error if the file cannot be opened or has no sheet.
func ReadGrid(path string) (types.Grid, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, ErrNoSheets
	}
	return readSheet(f, sheet)
}

// ReadTable reads the first sheet of a cleaned spreadsheet: the first row is
// the header, the following rows are data aligned to it.
func ReadTable(path string) (*types.Table, error) {
	g, err := ReadGrid(path)
	if err != nil {
		return nil, err
	}
	t := TableFromGrid(g)
	t.Source = path
	return t, nil
}

// ReadSheets reads every sheet of a workbook as a table, keyed by sheet name.
func ReadSheets(path string) (map[string]*types.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, ErrNoSheets
	}

	tables := make(map[string]*types.Table, len(names))
	for _, name := range names {
		g, err := readSheet(f, name)
		if err != nil {
			return nil, err
		}
		t := TableFromGrid(g)
		t.Name = name
		t.Source = path
		tables[name] = t
	}
	return tables, nil
}

// TableFromGrid splits a grid into header (row 0) and data rows. Data rows
// are padded or cut to the header width; fully empty data rows are skipped.
func TableFromGrid(g types.Grid) *types.Table {
	t := &types.Table{Header: []string{}, Rows: []types.Row{}}
	if len(g) == 0 {
		return t
	}

	width := g.Width()
	t.Header = make([]string, width)
	for col := 0; col < width; col++ {
		t.Header[col] = strings.TrimSpace(g.Cell(0, col).String())
	}

	for _, row := range g[1:] {
		if isRowEmpty(row) {
			continue
		}
		aligned := make(types.Row, width)
		copy(aligned, row)
		t.Rows = append(t.Rows, aligned)
	}
	return t
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func readSheet(f *excelize.File, sheet string) (types.Grid, error) {
	rows, err := f.GetRows(sheet, rawValues)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of sheet %s: %w", sheet, err)
	}
	return types.GridFromStrings(rows), nil
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row types.Row) bool {
	for _, cell := range row {
		if !cell.IsEmpty() {
			return false
		}
	}
	return true
}
