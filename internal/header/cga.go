// =============================================================================
// Insurance Report ETL - Header Synthesizer (CGA layout)
// =============================================================================
//
// Regulator (CGA) tables are laid out as:
//
//   [optional] one-cell title row        -> proposed output name
//   [optional] "(M.D)" unit row          -> dropped
//   1 to 3 header rows                   -> merged into one label per column
//   data rows
//
// MULTI-ROW HEADER MERGE:
//   Each column's label is the space-joined, trimmed, non-empty texts of that
//   column in every header row, top to bottom.
//
//   Example:
//   Row 1: "Primes",  "",        "Sinistres"
//   Row 2: "émises",  "acquises", "payés"
//   Result: "Primes émises", "acquises", "Sinistres payés"
//
// The third candidate header row is rejected when at least half of the grid
// width is made of cells containing digits: such a row is already data.
//
// =============================================================================

package header

import (
	"strings"
	"unicode"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

// DefaultMaxHeaderRows is the header block cap used when unset.
const DefaultMaxHeaderRows = 3

// unitMarker identifies a units annotation row ("in millions of dinars").
const unitMarker = "(M.D)"

// Options tunes header synthesis.
type Options struct {
	// MaxHeaderRows caps the CGA header block.
	MaxHeaderRows int

	// MaxNameLength caps synthesized file names.
	MaxNameLength int
}

func (o Options) maxHeaderRows() int {
	if o.MaxHeaderRows <= 0 {
		return DefaultMaxHeaderRows
	}
	return o.MaxHeaderRows
}

// CGAHeader is the outcome of CGA header synthesis.
type CGAHeader struct {
	// Header holds one label per grid column.
	Header []string

	// DataStart is the index of the first data row in the input grid.
	DataStart int

	// HeaderRows is the number of rows merged into Header.
	HeaderRows int

	// ProposedName is the sanitized title from a one-cell first row, without
	// extension. Empty when the grid has no such row.
	ProposedName string

	// TitleRowDropped and UnitRowDropped report which leading rows were
	// consumed before the header block.
	TitleRowDropped bool
	UnitRowDropped  bool
}

// SynthesizeCGA detects the title row, unit row and header block of a
// normalized CGA grid.
//
// PARAMETERS:
//   - g: A grid produced by grid.Normalize (rectangular).
//   - opts: Header block cap and name length cap.
//
// RETURNS:
//   - The synthesized header. An empty grid yields an empty header with
//     DataStart 0.
func SynthesizeCGA(g types.Grid, opts Options) CGAHeader {
	width := g.Width()
	var h CGAHeader
	if len(g) == 0 {
		h.Header = []string{}
		return h
	}

	start := 0

	// Step 1: a first row reduced to a single value is the table title.
	if texts := nonEmptyTexts(g[start]); len(texts) == 1 {
		h.ProposedName = SanitizeFileName(texts[0], opts.MaxNameLength)
		h.TitleRowDropped = true
		start++
	}

	// Step 2: units annotation.
	if start < len(g) && rowContains(g[start], unitMarker) {
		h.UnitRowDropped = true
		start++
	}

	// Step 3: header block.
	maxRows := opts.maxHeaderRows()
	var block []types.Row
	for offset := 0; offset < maxRows; offset++ {
		idx := start + offset
		if idx >= len(g) {
			break
		}
		if offset >= 2 && numericCells(g[idx]) >= width/2 {
			break
		}
		block = append(block, g[idx])
	}

	h.Header = MergeRows(block, width)
	h.HeaderRows = len(block)
	h.DataStart = start + len(block)
	return h
}

// MergeRows flattens header rows into one label per column by space-joining
// the trimmed non-empty cells of each column. The result always has width
// entries; a column with no text gets "".
func MergeRows(rows []types.Row, width int) []string {
	labels := make([]string, width)
	for col := 0; col < width; col++ {
		var parts []string
		for _, row := range rows {
			if col >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[col].String()); v != "" {
				parts = append(parts, v)
			}
		}
		labels[col] = strings.Join(parts, " ")
	}
	return labels
}

// DataRows returns the rows of g from start on, each padded or cut to width.
func DataRows(g types.Grid, start, width int) []types.Row {
	if start >= len(g) {
		return []types.Row{}
	}
	rows := make([]types.Row, 0, len(g)-start)
	for _, row := range g[start:] {
		out := make(types.Row, width)
		copy(out, row)
		rows = append(rows, out)
	}
	return rows
}

// nonEmptyTexts returns the string form of every non-empty cell.
func nonEmptyTexts(row types.Row) []string {
	var out []string
	for _, cell := range row {
		if !cell.IsEmpty() {
			out = append(out, cell.String())
		}
	}
	return out
}

func rowContains(row types.Row, marker string) bool {
	for _, cell := range row {
		if strings.Contains(cell.String(), marker) {
			return true
		}
	}
	return false
}

// numericCells counts the cells that contain at least one digit.
func numericCells(row types.Row) int {
	n := 0
	for _, cell := range row {
		if strings.IndexFunc(cell.String(), unicode.IsDigit) >= 0 {
			n++
		}
	}
	return n
}
