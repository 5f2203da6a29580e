// =============================================================================
// Insurance Report ETL - Grid Normalizer
// =============================================================================
//
// PDF table extraction tends to leak material that is not part of the table:
// annex/footnote markers and, once the extractor runs past the bottom of the
// table, whole paragraphs of narrative text. Normalize removes both before any
// header detection is attempted.
//
// FILTERS (applied in order):
//   1. Drop every row in which any cell contains "annexe" (case-insensitive).
//   2. Truncate the grid before the first row whose word count exceeds
//      Options.MaxWordsPerRow. Only Text cells contribute words.
//
// The result is a new rectangular grid as wide as the input: dropping rows
// never changes the column count. The input is never modified. An empty
// result is valid and simply means "no data".
//
// =============================================================================

package grid

import (
	"strings"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

// DefaultMaxWordsPerRow is the prose-detection threshold used when
// Options.MaxWordsPerRow is unset.
const DefaultMaxWordsPerRow = 15

// annexMarker is the lowercase substring identifying annex/footnote rows.
const annexMarker = "annexe"

// Options tunes the normalizer.
type Options struct {
	// MaxWordsPerRow: a row with more words than this is narrative text.
	MaxWordsPerRow int
}

// Normalize applies the row filter and the narrative truncation to g.
//
// PARAMETERS:
//   - g: The raw extracted grid.
//   - opts: Thresholds (zero values fall back to the defaults).
//
// RETURNS:
//   - The normalized grid, with rows re-indexed contiguously.
func Normalize(g types.Grid, opts Options) types.Grid {
	maxWords := opts.MaxWordsPerRow
	if maxWords <= 0 {
		maxWords = DefaultMaxWordsPerRow
	}

	kept := DropAnnexRows(g)
	if cut := FirstProseRow(kept, maxWords); cut >= 0 {
		kept = kept[:cut]
	}
	return kept
}

// DropAnnexRows applies only the annex row filter. The result keeps the
// width of g.
func DropAnnexRows(g types.Grid) types.Grid {
	width := g.Width()
	kept := make(types.Grid, 0, len(g))
	for _, row := range g {
		if HasAnnexMarker(row) {
			continue
		}
		padded := make(types.Row, width)
		copy(padded, row)
		kept = append(kept, padded)
	}
	return kept
}

// HasAnnexMarker reports whether any cell of the row mentions an annex.
func HasAnnexMarker(row types.Row) bool {
	for _, cell := range row {
		if cell.IsMissing() {
			continue
		}
		if strings.Contains(strings.ToLower(cell.String()), annexMarker) {
			return true
		}
	}
	return false
}

// WordCount returns the number of whitespace-separated tokens across the
// Text cells of the row. Numbers and missing cells count for nothing.
func WordCount(row types.Row) int {
	n := 0
	for _, cell := range row {
		if cell.IsText() {
			n += len(strings.Fields(cell.Str))
		}
	}
	return n
}

// FirstProseRow returns the index of the first row with more than maxWords
// words, or -1.
func FirstProseRow(g types.Grid, maxWords int) int {
	for i, row := range g {
		if WordCount(row) > maxWords {
			return i
		}
	}
	return -1
}
