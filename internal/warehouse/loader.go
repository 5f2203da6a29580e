// =============================================================================
// Insurance Report ETL - Dimensional Loader
// =============================================================================
//
// This module loads one processing year into the star-schema workbook.
//
// STATE MACHINE (one run, strictly sequential):
//   DIM_LOADED               workbook read, rollups ensured, period resolved
//   BRANCH_COLUMNS_RESOLVED  revenue branch columns mapped to branch IDs
//   COMPANIES_RESOLVED       indicators companies are canonical; other
//                            tables' labels fuzzy-matched onto them
//   FACTS_PASS1              company x branch: premiums, claims, result
//   FACTS_PASS2              company x all branches: indicators (x scale)
//   FACTS_PASS3              market x branch: operating account
//   FACTS_PASS4              market x all branches: totals
//   FACTS_PASS5              company x all branches: revenue totals (upsert)
//   PERSISTED                validated, written, run recorded
//
// Passes 1-4 only append. Pass 5 updates the three revenue measures of a
// fact left by pass 2, or inserts it.
//
// A year whose (year, indicators file) pair is in the run ledger is not
// loaded again. Loading a year again from another indicators file replaces
// the facts of that year.
//
// =============================================================================

package warehouse

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/insurance-report-etl/internal/config"
	"github.com/ginjaninja78/insurance-report-etl/internal/ledger"
	"github.com/ginjaninja78/insurance-report-etl/internal/logging"
	"github.com/ginjaninja78/insurance-report-etl/internal/match"
	"github.com/ginjaninja78/insurance-report-etl/internal/types"
	"github.com/ginjaninja78/insurance-report-etl/internal/validation"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxparser"
)

// ErrAlreadyLoaded is returned when the run ledger already holds the year
// and indicators file.
var ErrAlreadyLoaded = errors.New("year already loaded")

// State is a step of the load state machine.
type State string

const (
	StateDimLoaded             State = "DIM_LOADED"
	StateBranchColumnsResolved State = "BRANCH_COLUMNS_RESOLVED"
	StateCompaniesResolved     State = "COMPANIES_RESOLVED"
	StateFactsPass1            State = "FACTS_PASS1"
	StateFactsPass2            State = "FACTS_PASS2"
	StateFactsPass3            State = "FACTS_PASS3"
	StateFactsPass4            State = "FACTS_PASS4"
	StateFactsPass5            State = "FACTS_PASS5"
	StatePersisted             State = "PERSISTED"
)

// =============================================================================
// REPORT
// =============================================================================

// Report describes one load.
type Report struct {
	Year   int
	TimeID int

	// States lists the states reached, in order.
	States []State

	CompaniesAdded int
	BranchesAdded  int

	// FactsAppended counts inserted facts, FactsUpdated the pass-5 updates.
	FactsAppended int
	FactsUpdated  int

	// FactsReplaced counts facts of the year dropped before reloading it.
	FactsReplaced int

	// SkippedRows counts, per source category, rows that produced no fact:
	// unmatched company labels and rows whose company was already taken.
	SkippedRows map[string]int

	WorkbookPath string
}

// Skipped returns the total number of skipped rows.
func (r Report) Skipped() int {
	n := 0
	for _, c := range r.SkippedRows {
		n += c
	}
	return n
}

// =============================================================================
// LOADER
// =============================================================================

// Loader loads yearly source tables into the workbook.
type Loader struct {
	cfg    config.Warehouse
	cutoff float64
	logger logging.Logger
}

// NewLoader creates a Loader. A nil logger discards messages.
func NewLoader(cfg *config.Config, logger logging.Logger) *Loader {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Loader{cfg: cfg.Warehouse, cutoff: cfg.Heuristics.SimilarityCutoff, logger: logger}
}

// Run loads one year.
//
// PARAMETERS:
//   - ctx: Checked between states; cancellation stops the run before
//     anything is written.
//   - year: The processing year.
//   - src: The five cleaned source tables (see ResolveSources).
//
// RETURNS:
//   - The report of the run, partially filled on error.
//   - ErrAlreadyLoaded (wrapped) when the run ledger holds the pair; any
//     read, validation or write error otherwise. On error the workbook and
//     run ledger are left as they were.
func (l *Loader) Run(ctx context.Context, year int, src Sources) (Report, error) {
	report := Report{Year: year, WorkbookPath: l.cfg.WorkbookPath, SkippedRows: map[string]int{}}

	runs, err := ledger.OpenRunLedger(l.cfg.RunLedgerPath)
	if err != nil {
		return report, err
	}
	indicatorsName := filepath.Base(src.Indicators)
	if runs.IsLoaded(year, indicatorsName) {
		return report, fmt.Errorf("%w: %d from %s", ErrAlreadyLoaded, year, indicatorsName)
	}

	tables, err := l.readSources(src)
	if err != nil {
		return report, err
	}

	star, err := LoadStar(l.cfg.WorkbookPath, l.cfg.Sheets)
	if err != nil {
		return report, err
	}

	ld := l.newLoad(star, tables, &report)
	ld.begin(year)

	steps := []struct {
		state State
		run   func()
	}{
		{StateBranchColumnsResolved, ld.resolveBranches},
		{StateCompaniesResolved, ld.resolveCompanies},
		{StateFactsPass1, ld.pass1},
		{StateFactsPass2, ld.pass2},
		{StateFactsPass3, ld.pass3},
		{StateFactsPass4, ld.pass4},
		{StateFactsPass5, ld.pass5},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		step.run()
		ld.enter(step.state)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	// =========================================================================
	// PERSIST
	// =========================================================================

	result := ld.star()
	check := validation.ValidateStar(result, validation.Sentinels{
		MarketName:      l.cfg.MarketName,
		AllBranchesName: l.cfg.AllBranchesName,
	})
	if !check.IsValid {
		return report, fmt.Errorf("star schema is invalid, nothing written:\n%s", validation.FormatErrors(check.Errors))
	}

	if err := SaveStar(l.cfg.WorkbookPath, l.cfg.Sheets, result); err != nil {
		return report, err
	}
	if err := runs.Record(year, indicatorsName); err != nil {
		return report, fmt.Errorf("workbook saved but run not recorded: %w", err)
	}
	ld.enter(StatePersisted)

	l.logger.Info("Loaded %d: %d facts appended, %d updated, %d source rows skipped",
		year, report.FactsAppended, report.FactsUpdated, report.Skipped())
	return report, nil
}

// readSources reads and checks the five source tables.
func (l *Loader) readSources(src Sources) (map[string]*sourceTable, error) {
	tables := make(map[string]*sourceTable, 5)
	for _, f := range src.fields() {
		if *f.path == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingSources, f.name)
		}
		t, err := xlsxparser.ReadTable(*f.path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}

		check := validation.ValidateSourceTable(f.name, t)
		for _, e := range check.Errors {
			if e.Severity == validation.SeverityWarning {
				l.logger.Warn("%s", e.Error())
			}
		}
		if !check.IsValid {
			return nil, fmt.Errorf("%s is not usable:\n%s", filepath.Base(*f.path), validation.FormatErrors(check.Errors))
		}
		tables[f.name] = newSourceTable(f.name, t, l.cfg.TotalTokens)
	}
	return tables, nil
}

// =============================================================================
// ONE LOAD
// =============================================================================

// branchColumn is a revenue column mapped to a branch.
type branchColumn struct {
	col int
	key string
	id  int
}

// load is the in-memory state of one run.
type load struct {
	cfg    config.Warehouse
	cutoff float64
	logger logging.Logger
	report *Report

	dims   *Dimensions
	facts  *FactBuilder
	timeID int
	scale  decimal.Decimal

	revenue    *sourceTable
	indicators *sourceTable
	technical  *sourceTable
	claims     *sourceTable
	operating  *sourceTable

	branches []branchColumn
}

func (l *Loader) newLoad(star *types.Star, tables map[string]*sourceTable, report *Report) *load {
	return &load{
		cfg:        l.cfg,
		cutoff:     l.cutoff,
		logger:     l.logger,
		report:     report,
		dims:       NewDimensions(star, l.cfg.MarketName, l.cfg.AllBranchesName),
		facts:      NewFactBuilder(star.Facts),
		scale:      decimal.NewFromFloat(l.cfg.IndicatorScale),
		revenue:    tables[SourceRevenue],
		indicators: tables[SourceIndicators],
		technical:  tables[SourceTechnicalResult],
		claims:     tables[SourceClaimsPaid],
		operating:  tables[SourceOperatingAccount],
	}
}

func (ld *load) enter(s State) {
	ld.report.States = append(ld.report.States, s)
	ld.logger.Info("[%s] year=%d facts=%d", s, ld.report.Year, ld.facts.Len())
}

// begin resolves the period and clears a previous load of the same year.
func (ld *load) begin(year int) {
	id, _ := ld.dims.EnsurePeriod(year)
	ld.timeID = id
	ld.report.TimeID = id
	if n := ld.facts.DropPeriod(id); n > 0 {
		ld.report.FactsReplaced = n
		ld.logger.Warn("Year %d was loaded before from another indicators file: replacing %d facts", year, n)
	}
	ld.enter(StateDimLoaded)
}

func (ld *load) star() *types.Star {
	return &types.Star{
		Companies: ld.dims.Companies,
		Branches:  ld.dims.Branches,
		Periods:   ld.dims.Periods,
		Facts:     ld.facts.Facts(),
	}
}

func (ld *load) key(company, branch int) types.FactKey {
	return types.FactKey{TimeID: ld.timeID, CompanyID: company, BranchID: branch}
}

// appendFact appends a fact, counting a duplicate key as a skipped row.
func (ld *load) appendFact(source string, key types.FactKey, values types.Measures) {
	if _, err := ld.facts.Append(key, values); err != nil {
		ld.report.SkippedRows[source]++
		ld.logger.Warn("%s: company %d branch %d already has a fact, row skipped", source, key.CompanyID, key.BranchID)
		return
	}
	ld.report.FactsAppended++
}

// branchID maps a column header onto a branch, adding it when new.
func (ld *load) branchID(header string) int {
	id, added := ld.dims.EnsureBranch(header, insuranceType(header, ld.cfg.LifeBranchKeywords, ld.cfg.NonLifeMarkers))
	if added {
		ld.report.BranchesAdded++
		ld.logger.Debug("New branch %d: %s", id, header)
	}
	return id
}

// =============================================================================
// RESOLUTION
// =============================================================================

func (ld *load) resolveBranches() {
	for _, col := range ld.revenue.valueColumns() {
		ld.branches = append(ld.branches, branchColumn{
			col: col,
			key: ld.revenue.keys[col],
			id:  ld.branchID(ld.revenue.table.Header[col]),
		})
	}
}

func (ld *load) resolveCompanies() {
	ind := ld.indicators

	var names []string
	var ids []int
	for i := range ind.table.Rows {
		label := ind.label(i)
		if label == "" {
			continue
		}
		if match.EqualsAny(label, ld.cfg.MarketTokens) {
			if ind.market < 0 {
				ind.market = i
			}
			continue
		}
		id, added := ld.dims.EnsureCompany(label, ld.groupOf(label))
		if added {
			ld.report.CompaniesAdded++
			ld.logger.Debug("New company %d: %s", id, label)
		}
		if ind.companyRow(id) >= 0 {
			ld.report.SkippedRows[ind.name]++
			ld.logger.Warn("%s: %q repeats an earlier company, row skipped", ind.name, label)
			continue
		}
		ind.addCompany(id, i)
		names = append(names, label)
		ids = append(ids, id)
	}

	matcher := match.NewMatcher(names, ld.cutoff)
	for _, t := range []*sourceTable{ld.revenue, ld.claims, ld.technical} {
		skipped := t.resolveCompanies(matcher, ids, ld.cfg.MarketTokens)
		if len(skipped) == 0 {
			continue
		}
		ld.report.SkippedRows[t.name] += len(skipped)
		ld.logger.Warn("%s: %d rows without a matching company skipped: %s",
			t.name, len(skipped), strings.Join(quoteAll(skipped), ", "))
	}
}

// groupOf looks up the parent group of a company display name.
func (ld *load) groupOf(name string) string {
	if g, ok := ld.cfg.CompanyGroups[name]; ok {
		return g
	}
	key := match.Normalize(name)
	for n, g := range ld.cfg.CompanyGroups {
		if match.Normalize(n) == key {
			return g
		}
	}
	return ""
}

// =============================================================================
// FACT PASSES
// =============================================================================

// pass1 emits one fact per revenue company and branch column.
func (ld *load) pass1() {
	for _, company := range ld.revenue.companies {
		row := ld.revenue.companyRow(company)
		claimsRow := ld.claims.companyRow(company)
		technicalRow := ld.technical.companyRow(company)

		for _, b := range ld.branches {
			var v types.Measures
			v[types.NetPremiums] = ld.revenue.amount(row, b.col)
			v[types.ClaimsPaid] = ld.claims.amount(claimsRow, ld.claims.column(b.key))
			v[types.TechnicalResult] = ld.technical.amount(technicalRow, ld.technical.column(b.key))
			ld.appendFact(SourceRevenue, ld.key(company, b.id), v)
		}
	}
}

// indicatorMeasures reads the scaled indicator measures of one row.
func (ld *load) indicatorMeasures(row int) types.Measures {
	ind := ld.indicators
	kw := ld.cfg.Columns

	var v types.Measures
	for _, m := range []struct {
		measure  types.Measure
		keywords []string
	}{
		{types.NetPremiums, kw.NetPremiums},
		{types.CededPremiums, kw.CededPremiums},
		{types.TechnicalProvisions, kw.TechnicalProvisions},
		{types.NetResult, kw.NetResult},
		{types.EquityCapital, kw.EquityCapital},
	} {
		if col := ind.keywordColumn(m.keywords); col >= 0 && row >= 0 {
			v[m.measure] = scaled(ind.table.Cell(row, col), ld.scale)
		}
	}
	return v
}

// pass2 emits one all-branches fact per canonical company.
func (ld *load) pass2() {
	for _, company := range ld.indicators.companies {
		v := ld.indicatorMeasures(ld.indicators.companyRow(company))
		ld.appendFact(SourceIndicators, ld.key(company, types.AllBranchesID), v)
	}
}

// operatingMeasures reads the operating-account measures of one column; a
// negative column means the row totals.
func (ld *load) operatingMeasures(col int) types.Measures {
	op := ld.operating
	kw := ld.cfg.Columns
	cell := func(row int) decimal.Decimal {
		if col < 0 {
			return op.rowTotal(row)
		}
		return op.amount(row, col)
	}

	var v types.Measures
	if rows := op.keywordRows(kw.EarnedPremiums); len(rows) > 0 {
		v[types.EarnedPremiums] = cell(rows[0])
	}
	if rows := op.keywordRows(kw.ClaimsCharges); len(rows) > 0 {
		v[types.ClaimsCharges] = cell(rows[0])
	}
	// Acquisition and management charges are reported on separate rows.
	sum := decimal.Zero
	for _, row := range op.keywordRows(kw.AcquisitionCharges) {
		sum = sum.Add(cell(row))
	}
	v[types.AcquisitionCharges] = sum
	return v
}

// pass3 emits one market fact per operating-account branch column.
func (ld *load) pass3() {
	for _, col := range ld.operating.valueColumns() {
		branch := ld.branchID(ld.operating.table.Header[col])
		ld.appendFact(SourceOperatingAccount, ld.key(types.MarketCompanyID, branch), ld.operatingMeasures(col))
	}
}

// pass4 emits the market all-branches fact.
func (ld *load) pass4() {
	v := ld.operatingMeasures(ld.operating.total)
	v[types.NetPremiums] = ld.revenue.rowTotal(ld.revenue.market)
	v[types.ClaimsPaid] = ld.claims.rowTotal(ld.claims.market)
	v[types.TechnicalResult] = ld.technical.rowTotal(ld.technical.market)

	if ld.indicators.market >= 0 {
		ind := ld.indicatorMeasures(ld.indicators.market)
		for _, m := range []types.Measure{types.CededPremiums, types.TechnicalProvisions, types.NetResult, types.EquityCapital} {
			v[m] = ind[m]
		}
	}
	ld.appendFact(SourceOperatingAccount, ld.key(types.MarketCompanyID, types.AllBranchesID), v)
}

// pass5 sets the revenue totals of every company on its all-branches fact.
func (ld *load) pass5() {
	for _, company := range ld.revenue.companies {
		var v types.Measures
		v[types.NetPremiums] = ld.revenue.rowTotal(ld.revenue.companyRow(company))
		v[types.ClaimsPaid] = ld.claims.rowTotal(ld.claims.companyRow(company))
		v[types.TechnicalResult] = ld.technical.rowTotal(ld.technical.companyRow(company))

		inserted := ld.facts.Upsert(ld.key(company, types.AllBranchesID), v,
			types.NetPremiums, types.ClaimsPaid, types.TechnicalResult)
		if inserted {
			ld.report.FactsAppended++
		} else {
			ld.report.FactsUpdated++
		}
	}
}

func quoteAll(labels []string) []string {
	out := make([]string, len(labels))
	for i, s := range labels {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
