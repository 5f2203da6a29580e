// =============================================================================
// Insurance Report ETL - Shared Types
// =============================================================================
//
// This package contains the value model shared by every stage of the pipeline
// so that packages do not import each other just for data shapes. Types
// defined here are used by:
//   - grid        (normalization of raw extracted grids)
//   - header      (header synthesis)
//   - cleaner     (table cleaning)
//   - xlsxparser  (reading spreadsheets)
//   - xlsxwriter  (writing spreadsheets)
//   - warehouse   (dimensional loading)
//
// CELL MODEL:
//   Every cell is exactly one of Missing, Number or Text. Spreadsheet strings
//   are converted once, at the reading boundary, by ParseCell. Business code
//   never inspects raw strings for emptiness or numeric-ness on its own.
//
// =============================================================================

package types

import (
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// CELL VALUES
// =============================================================================

// Kind identifies which variant a Value holds.
type Kind int

const (
	// Missing is an empty cell (no value was extracted).
	Missing Kind = iota

	// Number is a numeric cell.
	Number

	// Text is any non-numeric cell content.
	Text
)

// String returns the kind name, used in logs and test failures.
func (k Kind) String() string {
	switch k {
	case Missing:
		return "missing"
	case Number:
		return "number"
	case Text:
		return "text"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single cell.
type Value struct {
	// Kind tells which of Num / Str is meaningful.
	Kind Kind

	// Num is set when Kind is Number.
	Num float64

	// Str is set when Kind is Text. It is kept exactly as extracted.
	Str string
}

// MissingValue returns an empty cell.
func MissingValue() Value { return Value{Kind: Missing} }

// NumberValue returns a numeric cell.
func NumberValue(f float64) Value { return Value{Kind: Number, Num: f} }

// TextValue returns a text cell.
func TextValue(s string) Value { return Value{Kind: Text, Str: s} }

// ParseCell converts a raw spreadsheet string into a Value.
//
// CONVERSION RULES:
//   - ""  or whitespace only           -> Missing
//   - strict Go float syntax ("12.5")  -> Number
//   - anything else ("1 234", "STAR")  -> Text (original string preserved)
//
// "nan" and "inf" spellings stay Text: extraction writes them for empty cells.
//
// Locale-formatted amounts stay Text here; ParseAmount interprets them when a
// number is actually needed.
func ParseCell(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return MissingValue()
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return NumberValue(f)
	}
	return TextValue(raw)
}

// IsMissing reports whether the cell holds no value.
func (v Value) IsMissing() bool { return v.Kind == Missing }

// IsText reports whether the cell holds text.
func (v Value) IsText() bool { return v.Kind == Text }

// IsNumber reports whether the cell holds a number.
func (v Value) IsNumber() bool { return v.Kind == Number }

// IsEmpty reports whether the cell is Missing or whitespace-only text.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case Missing:
		return true
	case Text:
		return strings.TrimSpace(v.Str) == ""
	default:
		return false
	}
}

// String renders the cell the way it would appear in a spreadsheet.
// Missing cells render as "".
func (v Value) String() string {
	switch v.Kind {
	case Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case Text:
		return v.Str
	default:
		return ""
	}
}

// Float returns the numeric interpretation of the cell used in arithmetic.
// Missing cells, placeholders ("..", "n.d.", "-") and unparseable text are 0.
func (v Value) Float() float64 {
	switch v.Kind {
	case Number:
		return v.Num
	case Text:
		d, err := ParseAmount(v.Str)
		if err != nil {
			return 0
		}
		f, _ := d.Float64()
		return f
	default:
		return 0
	}
}

// =============================================================================
// GRIDS
// =============================================================================

// Row is an ordered sequence of cells.
type Row []Value

// Texts returns the string form of every cell in the row.
func (r Row) Texts() []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = v.String()
	}
	return out
}

// Grid is a raw extracted table: an ordered sequence of rows with no typing
// of columns. Rows may have different lengths; Width is the longest one.
type Grid []Row

// Width returns the number of columns of the grid (the longest row).
func (g Grid) Width() int {
	width := 0
	for _, row := range g {
		if len(row) > width {
			width = len(row)
		}
	}
	return width
}

// Cell returns the cell at (row, col), or Missing when out of range.
func (g Grid) Cell(row, col int) Value {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return MissingValue()
	}
	return g[row][col]
}

// Rect returns a copy of the grid where every row is padded with Missing
// cells up to Width.
func (g Grid) Rect() Grid {
	width := g.Width()
	out := make(Grid, len(g))
	for i, row := range g {
		padded := make(Row, width)
		copy(padded, row)
		out[i] = padded
	}
	return out
}

// GridFromStrings builds a grid from raw strings using ParseCell.
func GridFromStrings(rows [][]string) Grid {
	g := make(Grid, len(rows))
	for i, raw := range rows {
		row := make(Row, len(raw))
		for j, cell := range raw {
			row[j] = ParseCell(cell)
		}
		g[i] = row
	}
	return g
}

// =============================================================================
// CLEANED TABLES
// =============================================================================

// Table is a cleaned table: one flattened header and the data rows aligned
// to it.
type Table struct {
	// Header holds the column labels. Labels are expected, not required, to
	// be unique.
	Header []string

	// Rows holds the data records. Each row has len(Header) cells.
	Rows []Row

	// Name is the output file name chosen for the table (with extension).
	Name string

	// Source is the path of the raw file the table was derived from.
	Source string
}

// ColumnIndex returns the index of the first column whose label equals name,
// or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Cell returns the cell at (row, col), or Missing when out of range.
func (t *Table) Cell(row, col int) Value {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return MissingValue()
	}
	return t.Rows[row][col]
}
