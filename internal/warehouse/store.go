package warehouse

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/insurance-report-etl/internal/config"
	"github.com/ginjaninja78/insurance-report-etl/internal/types"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxparser"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxwriter"
)

// Sheet layouts of the persisted workbook.
var (
	CompanyHeader = []string{"ID_Compagnie", "Nom_Compagnie", "Groupe", "Est_Marche"}
	BranchHeader  = []string{"ID_Branche", "Nom_Branche", "Type_Assurance"}
	TimeHeader    = []string{"ID_Temps", "Annee"}
	FactHeader    = append([]string{"ID_Fait", "ID_Temps", "ID_Compagnie", "ID_Branche"}, types.MeasureColumns[:]...)
)

// LoadStar reads the four sheets of the workbook at path. A missing workbook
// or a missing sheet is an empty table; rows without a usable ID are ignored.
func LoadStar(path string, sheets config.SheetNames) (*types.Star, error) {
	star := &types.Star{}

	tables, err := xlsxparser.ReadSheets(path)
	if errors.Is(err, fs.ErrNotExist) {
		return star, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}

	if t, ok := tables[sheets.Company]; ok {
		c := columnsOf(t, CompanyHeader)
		for i := range t.Rows {
			id, ok := intCell(t, i, c[0])
			if !ok {
				continue
			}
			star.Companies = append(star.Companies, types.Company{
				ID:       id,
				Name:     textCell(t, i, c[1]),
				Group:    textCell(t, i, c[2]),
				IsMarket: boolCell(t, i, c[3]),
			})
		}
	}

	if t, ok := tables[sheets.Branch]; ok {
		c := columnsOf(t, BranchHeader)
		for i := range t.Rows {
			id, ok := intCell(t, i, c[0])
			if !ok {
				continue
			}
			star.Branches = append(star.Branches, types.Branch{
				ID:            id,
				Name:          textCell(t, i, c[1]),
				InsuranceType: textCell(t, i, c[2]),
			})
		}
	}

	if t, ok := tables[sheets.Time]; ok {
		c := columnsOf(t, TimeHeader)
		for i := range t.Rows {
			id, ok := intCell(t, i, c[0])
			year, okYear := intCell(t, i, c[1])
			if !ok || !okYear {
				continue
			}
			star.Periods = append(star.Periods, types.Period{ID: id, Year: year})
		}
	}

	if t, ok := tables[sheets.Fact]; ok {
		c := columnsOf(t, FactHeader)
		for i := range t.Rows {
			id, ok := intCell(t, i, c[0])
			if !ok {
				continue
			}
			f := types.Fact{ID: id}
			f.TimeID, _ = intCell(t, i, c[1])
			f.CompanyID, _ = intCell(t, i, c[2])
			f.BranchID, _ = intCell(t, i, c[3])
			for m := types.Measure(0); m < types.NumMeasures; m++ {
				if col := c[4+int(m)]; col >= 0 {
					f.Values[m] = t.Cell(i, col).Decimal()
				}
			}
			star.Facts = append(star.Facts, f)
		}
	}

	return star, nil
}

// SaveStar replaces the workbook at path with the four sheets of star.
func SaveStar(path string, sheets config.SheetNames, star *types.Star) error {
	companies := make([]types.Row, len(star.Companies))
	for i, c := range star.Companies {
		companies[i] = types.Row{
			intValue(c.ID),
			types.TextValue(c.Name),
			optionalText(c.Group),
			types.TextValue(boolText(c.IsMarket)),
		}
	}

	branches := make([]types.Row, len(star.Branches))
	for i, b := range star.Branches {
		branches[i] = types.Row{intValue(b.ID), types.TextValue(b.Name), optionalText(b.InsuranceType)}
	}

	periods := make([]types.Row, len(star.Periods))
	for i, p := range star.Periods {
		periods[i] = types.Row{intValue(p.ID), intValue(p.Year)}
	}

	facts := make([]types.Row, len(star.Facts))
	for i, f := range star.Facts {
		row := make(types.Row, 0, len(FactHeader))
		row = append(row, intValue(f.ID), intValue(f.TimeID), intValue(f.CompanyID), intValue(f.BranchID))
		for _, v := range f.Values {
			row = append(row, types.NumberValue(v.InexactFloat64()))
		}
		facts[i] = row
	}

	err := xlsxwriter.WriteSheets(path, []xlsxwriter.Sheet{
		{Name: sheets.Company, Header: CompanyHeader, Rows: companies},
		{Name: sheets.Branch, Header: BranchHeader, Rows: branches},
		{Name: sheets.Time, Header: TimeHeader, Rows: periods},
		{Name: sheets.Fact, Header: FactHeader, Rows: facts},
	})
	if err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// columnsOf locates each wanted column in t's header (-1 when absent).
func columnsOf(t *types.Table, wanted []string) []int {
	cols := make([]int, len(wanted))
	for i, name := range wanted {
		cols[i] = t.ColumnIndex(name)
	}
	return cols
}

func intCell(t *types.Table, row, col int) (int, bool) {
	if col < 0 {
		return 0, false
	}
	v := t.Cell(row, col)
	var f float64
	switch {
	case v.IsNumber():
		f = v.Num
	case v.IsEmpty() || types.IsPlaceholder(v.Str):
		return 0, false
	default:
		d, err := types.ParseAmount(v.Str)
		if err != nil {
			return 0, false
		}
		f = d.InexactFloat64()
	}
	if f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func textCell(t *types.Table, row, col int) string {
	if col < 0 {
		return ""
	}
	return strings.TrimSpace(t.Cell(row, col).String())
}

func boolCell(t *types.Table, row, col int) bool {
	switch strings.ToLower(textCell(t, row, col)) {
	case "true", "vrai", "1", "yes", "oui":
		return true
	}
	return false
}

func boolText(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func intValue(n int) types.Value { return types.NumberValue(float64(n)) }

func optionalText(s string) types.Value {
	if s == "" {
		return types.MissingValue()
	}
	return types.TextValue(s)
}

// scaled multiplies a cell amount by scale.
func scaled(v types.Value, scale decimal.Decimal) decimal.Decimal {
	return v.Decimal().Mul(scale)
}
