// =============================================================================
// Insurance Report ETL - Header Synthesizer (FTUSA layout)
// =============================================================================
//
// Federation (FTUSA) tables are laid out as:
//
//   title / explanation rows
//   a blank separator row
//   one header row
//   data rows
//
// A cell is blank when it is missing or its trimmed lowercase text is one of
// "", "nan", "-", "–", "—". When no blank row exists the first row plays the
// separator role, so the header is read from row 1.
//
// NAMING:
//   Up to three rows above the separator are read bottom-up. The first
//   distinct joined text is the main title, the second the sub-title. The
//   file name is "{sub} - {main}.xlsx", "{main}.xlsx" or "Donnees.xlsx".
//
// =============================================================================

package header

import (
	"strings"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

// DefaultTableName is used when no title could be found above the separator.
const DefaultTableName = "Donnees"

// titleRows is how many rows above the separator may hold titles.
const titleRows = 3

var blankTokens = map[string]struct{}{
	"":    {},
	"nan": {},
	"-":   {},
	"–":   {},
	"—":   {},
}

// Anchor is the nearest single-value row above the separator.
type Anchor struct {
	Value  string
	Column int
}

// FTUSAHeader is the outcome of FTUSA header synthesis.
type FTUSAHeader struct {
	// Header holds the trimmed labels of the header row, one per grid column.
	Header []string

	// DataStart is the index of the first data row in the input grid. It
	// equals len(g) when the table has no data.
	DataStart int

	// Separator is the index of the blank separator row (0 when none).
	Separator int

	// SeparatorFound is false when the row-0 fallback was used.
	SeparatorFound bool

	// Anchor is the sub-title anchor, or nil.
	Anchor *Anchor

	// MainTitle and SubTitle are the sanitized titles found above the
	// separator.
	MainTitle string
	SubTitle  string

	// FileName is the synthesized output name, with extension.
	FileName string

	// Empty is true when there is no header row after the separator.
	Empty bool
}

// SynthesizeFTUSA locates the separator, titles and header row of an FTUSA
// grid.
//
// PARAMETERS:
//   - g: The raw grid.
//   - opts: Name length cap.
//
// RETURNS:
//   - The synthesized header. Missing structure never fails: it degrades to
//     the row-0 separator and the default name.
func SynthesizeFTUSA(g types.Grid, opts Options) FTUSAHeader {
	width := g.Width()
	h := FTUSAHeader{}

	sep, found := findSeparator(g)
	h.Separator = sep
	h.SeparatorFound = found
	if found {
		h.Anchor = findAnchor(g, sep)
	}

	h.MainTitle, h.SubTitle = findTitles(g, sep, opts.MaxNameLength)
	h.FileName = composeFileName(h.MainTitle, h.SubTitle)

	headerIdx := sep + 1
	if headerIdx >= len(g) {
		h.Header = make([]string, width)
		h.DataStart = len(g)
		h.Empty = true
		return h
	}

	h.Header = make([]string, width)
	for col := 0; col < width; col++ {
		h.Header[col] = strings.TrimSpace(g.Cell(headerIdx, col).String())
	}
	h.DataStart = headerIdx + 1
	return h
}

// IsBlank reports whether a cell counts as empty in FTUSA tables.
func IsBlank(v types.Value) bool {
	if v.IsMissing() {
		return true
	}
	_, ok := blankTokens[strings.ToLower(strings.TrimSpace(v.String()))]
	return ok
}

func isBlankRow(row types.Row) bool {
	for _, cell := range row {
		if !IsBlank(cell) {
			return false
		}
	}
	return true
}

// findSeparator returns the index of the first blank row, or (0, false).
func findSeparator(g types.Grid) (int, bool) {
	for i, row := range g {
		if isBlankRow(row) {
			return i, true
		}
	}
	return 0, false
}

// findAnchor walks up from the separator to the nearest row holding exactly
// one non-blank cell.
func findAnchor(g types.Grid, sep int) *Anchor {
	for i := sep - 1; i >= 0; i-- {
		col, count := -1, 0
		for j, cell := range g[i] {
			if !IsBlank(cell) {
				col = j
				count++
			}
		}
		if count == 1 {
			return &Anchor{Value: g[i][col].String(), Column: col}
		}
	}
	return nil
}

// findTitles reads the rows just above the separator, bottom-up.
func findTitles(g types.Grid, sep, maxLen int) (main, sub string) {
	for i := sep - 1; i >= 0 && i >= sep-titleRows; i-- {
		var parts []string
		for _, cell := range g[i] {
			if s := strings.TrimSpace(cell.String()); s != "" {
				parts = append(parts, cell.String())
			}
		}
		if len(parts) == 0 {
			continue
		}
		text := strings.Join(parts, " ")
		switch {
		case main == "":
			main = text
		case sub == "" && text != main:
			sub = text
		}
	}
	if main != "" {
		main = SanitizeTitle(main, maxLen)
	}
	if sub != "" {
		sub = SanitizeTitle(sub, maxLen)
	}
	return main, sub
}

func composeFileName(main, sub string) string {
	switch {
	case main != "" && sub != "":
		return sub + " - " + main + ".xlsx"
	case main != "":
		return main + ".xlsx"
	default:
		return DefaultTableName + ".xlsx"
	}
}
