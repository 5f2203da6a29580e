// =============================================================================
// Insurance Report ETL - FTUSA Table Transformations
// =============================================================================
//
// Post-processing applied to FTUSA tables once the header is known:
//
//   RenameFirstColumn  "Compagnie d'assurance" for company-indexed tables,
//                      "indicateur" for branch/indicator-indexed tables
//   CoerceIntegers     "1 234" -> 1234; anything that is not a clean integer
//                      after removing spaces is left untouched
//
// =============================================================================

package cleaner

import (
	"strconv"
	"strings"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

const (
	// CompanyColumn labels the first column of company-indexed tables.
	CompanyColumn = "Compagnie d'assurance"

	// IndicatorColumn labels the first column of every other table.
	IndicatorColumn = "indicateur"
)

// DefaultCompanySampleRows is how many first-column values are inspected
// when no sample size is configured.
const DefaultCompanySampleRows = 50

// RenameFirstColumn labels the first column after what it indexes. A table
// is company-indexed when one of its first sampleRows first-column values,
// trimmed, equals a known company token exactly. It returns the new label
// ("" for a table without columns). A table without data rows keeps its
// header unchanged.
func RenameFirstColumn(t *types.Table, knownTokens []string, sampleRows int) string {
	if len(t.Header) == 0 {
		return ""
	}
	if len(t.Rows) == 0 {
		return t.Header[0]
	}
	if sampleRows <= 0 {
		sampleRows = DefaultCompanySampleRows
	}

	known := make(map[string]struct{}, len(knownTokens))
	for _, tok := range knownTokens {
		known[tok] = struct{}{}
	}

	label := IndicatorColumn
	for i := 0; i < len(t.Rows) && i < sampleRows; i++ {
		if _, ok := known[strings.TrimSpace(t.Cell(i, 0).String())]; ok {
			label = CompanyColumn
			break
		}
	}
	t.Header[0] = label
	return label
}

// CoerceIntegers converts every text cell that reads as an integer once its
// spaces are removed. Numbers and missing cells are not touched.
func CoerceIntegers(t *types.Table) {
	for _, row := range t.Rows {
		for j, cell := range row {
			if !cell.IsText() {
				continue
			}
			if n, ok := parseInteger(cell.Str); ok {
				row[j] = types.NumberValue(float64(n))
			}
		}
	}
}

func parseInteger(s string) (int64, bool) {
	compact := strings.TrimSpace(strings.ReplaceAll(s, " ", ""))
	if compact == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(compact, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
