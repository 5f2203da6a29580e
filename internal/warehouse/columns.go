package warehouse

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/insurance-report-etl/internal/match"
	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

// sourceTable is a cleaned source table indexed for fact extraction.
// Column 0 holds the row labels (companies or indicators).
type sourceTable struct {
	name  string
	table *types.Table

	// keys are the normalized header labels.
	keys []string

	// total is the total column, -1 when the table has none.
	total int

	// market is the whole-market row, -1 when the table has none.
	market int

	// rows maps a company ID to its row, once companies are resolved.
	rows map[int]int

	// companies lists the resolved company IDs in row order.
	companies []int
}

func newSourceTable(name string, t *types.Table, totalTokens []string) *sourceTable {
	s := &sourceTable{
		name:   name,
		table:  t,
		keys:   make([]string, len(t.Header)),
		total:  -1,
		market: -1,
		rows:   make(map[int]int),
	}
	for i, h := range t.Header {
		s.keys[i] = match.Normalize(h)
		if i > 0 && s.total < 0 && match.EqualsAny(h, totalTokens) {
			s.total = i
		}
	}
	return s
}

func (s *sourceTable) label(row int) string {
	return strings.TrimSpace(s.table.Cell(row, 0).String())
}

// column returns the first value column whose normalized header is key.
func (s *sourceTable) column(key string) int {
	if key == "" {
		return -1
	}
	for i := 1; i < len(s.keys); i++ {
		if s.keys[i] == key {
			return i
		}
	}
	return -1
}

// valueColumns are the columns other than the label and total columns, with
// a non-empty header.
func (s *sourceTable) valueColumns() []int {
	var cols []int
	for i := 1; i < len(s.keys); i++ {
		if i == s.total || s.keys[i] == "" {
			continue
		}
		cols = append(cols, i)
	}
	return cols
}

// keywordColumn returns the first value column whose header contains one of
// keywords, or -1.
func (s *sourceTable) keywordColumn(keywords []string) int {
	for i := 1; i < len(s.table.Header); i++ {
		if match.ContainsAny(s.table.Header[i], keywords) {
			return i
		}
	}
	return -1
}

// keywordRows returns every row whose label contains one of keywords.
func (s *sourceTable) keywordRows(keywords []string) []int {
	var rows []int
	for i := range s.table.Rows {
		if match.ContainsAny(s.label(i), keywords) {
			rows = append(rows, i)
		}
	}
	return rows
}

func (s *sourceTable) amount(row, col int) decimal.Decimal {
	if row < 0 || col < 0 {
		return decimal.Zero
	}
	return s.table.Cell(row, col).Decimal()
}

// rowTotal is the total column of row, or the sum of its value columns when
// the table has no total column.
func (s *sourceTable) rowTotal(row int) decimal.Decimal {
	if row < 0 {
		return decimal.Zero
	}
	if s.total >= 0 {
		return s.amount(row, s.total)
	}
	sum := decimal.Zero
	for _, col := range s.valueColumns() {
		sum = sum.Add(s.amount(row, col))
	}
	return sum
}

// companyRow returns the row of company id, or -1.
func (s *sourceTable) companyRow(id int) int {
	if row, ok := s.rows[id]; ok {
		return row
	}
	return -1
}

func (s *sourceTable) addCompany(id, row int) {
	s.rows[id] = row
	s.companies = append(s.companies, id)
}

// resolveCompanies maps every row label to a canonical company. Market rows
// are remembered separately. It returns the labels of rows that matched no
// canonical company (blank labels included) and of rows whose company was
// already taken by an earlier row.
func (s *sourceTable) resolveCompanies(m *match.Matcher, canonicalIDs []int, marketTokens []string) []string {
	var skipped []string
	for i := range s.table.Rows {
		label := s.label(i)
		if label == "" {
			skipped = append(skipped, label)
			continue
		}
		if match.EqualsAny(label, marketTokens) {
			if s.market < 0 {
				s.market = i
			}
			continue
		}
		res, ok := m.Match(label)
		if !ok {
			skipped = append(skipped, label)
			continue
		}
		id := canonicalIDs[res.Index]
		if _, taken := s.rows[id]; taken {
			skipped = append(skipped, label)
			continue
		}
		s.addCompany(id, i)
	}
	return skipped
}

// insuranceType classifies a branch name as life or non-life.
func insuranceType(name string, lifeKeywords, nonLifeMarkers []string) string {
	if match.ContainsAny(name, nonLifeMarkers) {
		return types.InsuranceNonLife
	}
	if match.ContainsAny(name, lifeKeywords) {
		return types.InsuranceLife
	}
	return types.InsuranceNonLife
}
