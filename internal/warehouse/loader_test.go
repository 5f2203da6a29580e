package warehouse

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/insurance-report-etl/internal/config"
	"github.com/ginjaninja78/insurance-report-etl/internal/types"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxwriter"
)

// =============================================================================
// FIXTURES
// =============================================================================

func writeTable(t *testing.T, path string, rows [][]string) {
	t.Helper()
	table := &types.Table{
		Header: rows[0],
		Rows:   []types.Row(types.GridFromStrings(rows[1:])),
	}
	if err := xlsxwriter.WriteTable(path, table); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// writeSources writes the five source tables of one year into dir.
func writeSources(t *testing.T, dir string) Sources {
	t.Helper()
	src := Sources{
		Revenue:          filepath.Join(dir, "revenue.xlsx"),
		Indicators:       filepath.Join(dir, "indicators.xlsx"),
		TechnicalResult:  filepath.Join(dir, "technical.xlsx"),
		ClaimsPaid:       filepath.Join(dir, "claims.xlsx"),
		OperatingAccount: filepath.Join(dir, "operating.xlsx"),
	}
	writeTable(t, src.Revenue, [][]string{
		{"Compagnie d'assurance", "Automobile", "Vie", "Total"},
		{"STAR Assurance", "100", "50", "150"},
		{"GAT", "80", "20", "100"},
		{"Inconnue SA", "1", "1", "2"},
		{"Total", "180", "70", "250"},
	})
	writeTable(t, src.Indicators, [][]string{
		{"Compagnie", "Primes émises", "Primes cédées", "Provisions techniques", "Résultat net", "Fonds propres"},
		{"starassurance", "1,5", "0,2", "3", "0,1", "2"},
		{"GAT", "1", "0,1", "2", "n.d.", "1"},
		{"Total secteur", "2,5", "0,3", "5", "0,15", "3"},
	})
	writeTable(t, src.TechnicalResult, [][]string{
		{"Compagnie", "Automobile", "Vie", "Total"},
		{"Star Assurance", "10", "5", "15"},
		{"G.A.T.", "8", "2", "10"},
		{"Total", "18", "7", "25"},
	})
	writeTable(t, src.ClaimsPaid, [][]string{
		{"Compagnie", "Automobile", "Vie", "Total"},
		{"STAR ASSURANCES", "60", "10", "70"},
		{"GAT", "40", "5", "45"},
		{"Ensemble", "100", "15", "115"},
	})
	writeTable(t, src.OperatingAccount, [][]string{
		{"Indicateur", "Automobile", "Vie", "Total"},
		{"Primes acquises", "170", "60", "230"},
		{"Charges de sinistres", "90", "20", "110"},
		{"Frais d'acquisition", "10", "5", "15"},
		{"Frais de gestion", "7", "3", "10"},
	})
	return src
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.Warehouse.WorkbookPath = filepath.Join(dir, "entrepot", "entrepot.xlsx")
	cfg.Warehouse.RunLedgerPath = filepath.Join(dir, "entrepot", "historique.xlsx")
	cfg.Warehouse.CompanyGroups = map[string]string{"GAT": "Groupe GAT"}
	return cfg
}

func factOf(t *testing.T, star *types.Star, key types.FactKey) types.Fact {
	t.Helper()
	var found []types.Fact
	for _, f := range star.Facts {
		if f.FactKey == key {
			found = append(found, f)
		}
	}
	if len(found) != 1 {
		t.Fatalf("key %+v: %d facts", key, len(found))
	}
	return found[0]
}

func assertAmount(t *testing.T, what string, got decimal.Decimal, want float64) {
	t.Helper()
	if !got.Equal(decimal.NewFromFloat(want)) {
		t.Errorf("%s = %s, want %v", what, got, want)
	}
}

// =============================================================================
// FULL RUN
// =============================================================================

func TestRunLoadsYear(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	src := writeSources(t, dir)

	report, err := NewLoader(cfg, nil).Run(context.Background(), 2023, src)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantStates := []State{
		StateDimLoaded, StateBranchColumnsResolved, StateCompaniesResolved,
		StateFactsPass1, StateFactsPass2, StateFactsPass3, StateFactsPass4, StateFactsPass5,
		StatePersisted,
	}
	if len(report.States) != len(wantStates) {
		t.Fatalf("states = %v", report.States)
	}
	for i := range wantStates {
		if report.States[i] != wantStates[i] {
			t.Fatalf("states = %v", report.States)
		}
	}
	if report.SkippedRows[SourceRevenue] != 1 {
		t.Errorf("skipped = %v, want 1 revenue row", report.SkippedRows)
	}
	if report.FactsAppended != 9 || report.FactsUpdated != 2 {
		t.Errorf("appended = %d, updated = %d", report.FactsAppended, report.FactsUpdated)
	}

	star, err := LoadStar(cfg.Warehouse.WorkbookPath, cfg.Warehouse.Sheets)
	if err != nil {
		t.Fatalf("LoadStar: %v", err)
	}

	// Sentinels and dimensions.
	if c := star.Companies[0]; c.ID != 0 || c.Name != "Marché" || !c.IsMarket {
		t.Errorf("market = %+v", c)
	}
	if b := star.Branches[0]; b.ID != 0 || b.Name != "Toutes_Branches" {
		t.Errorf("all branches = %+v", b)
	}
	if len(star.Companies) != 3 || star.Companies[1].ID != 100 || star.Companies[2].ID != 101 {
		t.Fatalf("companies = %+v", star.Companies)
	}
	if star.Companies[2].Group != "Groupe GAT" {
		t.Errorf("group = %q", star.Companies[2].Group)
	}
	if len(star.Branches) != 3 || star.Branches[2].InsuranceType != types.InsuranceLife ||
		star.Branches[1].InsuranceType != types.InsuranceNonLife {
		t.Errorf("branches = %+v", star.Branches)
	}
	if len(star.Periods) != 1 || star.Periods[0].Year != 2023 {
		t.Errorf("periods = %+v", star.Periods)
	}
	if len(star.Facts) != 9 {
		t.Fatalf("facts = %d", len(star.Facts))
	}

	// Pass 1: three spellings of STAR resolve to company 100.
	f := factOf(t, star, types.FactKey{TimeID: 1, CompanyID: 100, BranchID: 1})
	assertAmount(t, "star auto premiums", f.Values[types.NetPremiums], 100)
	assertAmount(t, "star auto claims", f.Values[types.ClaimsPaid], 60)
	assertAmount(t, "star auto result", f.Values[types.TechnicalResult], 10)

	// Pass 2 + 5: indicators scaled, revenue measures replaced by totals.
	f = factOf(t, star, types.FactKey{TimeID: 1, CompanyID: 100, BranchID: 0})
	assertAmount(t, "star ceded", f.Values[types.CededPremiums], 200000)
	assertAmount(t, "star equity", f.Values[types.EquityCapital], 2000000)
	assertAmount(t, "star premiums", f.Values[types.NetPremiums], 150)
	assertAmount(t, "star claims", f.Values[types.ClaimsPaid], 70)
	f = factOf(t, star, types.FactKey{TimeID: 1, CompanyID: 101, BranchID: 0})
	assertAmount(t, "gat net result placeholder", f.Values[types.NetResult], 0)
	assertAmount(t, "gat result", f.Values[types.TechnicalResult], 10)

	// Pass 3: operating account per branch.
	f = factOf(t, star, types.FactKey{TimeID: 1, CompanyID: 0, BranchID: 1})
	assertAmount(t, "auto earned", f.Values[types.EarnedPremiums], 170)
	assertAmount(t, "auto acquisition", f.Values[types.AcquisitionCharges], 17)

	// Pass 4: market totals.
	f = factOf(t, star, types.FactKey{TimeID: 1, CompanyID: 0, BranchID: 0})
	assertAmount(t, "market premiums", f.Values[types.NetPremiums], 250)
	assertAmount(t, "market claims", f.Values[types.ClaimsPaid], 115)
	assertAmount(t, "market charges", f.Values[types.ClaimsCharges], 110)
	assertAmount(t, "market provisions", f.Values[types.TechnicalProvisions], 5000000)
}

func TestRunAlreadyLoaded(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	src := writeSources(t, dir)
	loader := NewLoader(cfg, nil)

	if _, err := loader.Run(context.Background(), 2023, src); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, err := os.Stat(cfg.Warehouse.WorkbookPath)
	if err != nil {
		t.Fatal(err)
	}

	_, err = loader.Run(context.Background(), 2023, src)
	if !errors.Is(err, ErrAlreadyLoaded) {
		t.Fatalf("err = %v, want ErrAlreadyLoaded", err)
	}
	after, _ := os.Stat(cfg.Warehouse.WorkbookPath)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("workbook rewritten by a gated run")
	}
}

func TestRunKeepsSurrogateKeysUnique(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	src := writeSources(t, dir)
	loader := NewLoader(cfg, nil)

	if _, err := loader.Run(context.Background(), 2023, src); err != nil {
		t.Fatalf("2023: %v", err)
	}
	if _, err := loader.Run(context.Background(), 2024, src); err != nil {
		t.Fatalf("2024: %v", err)
	}

	// Reloading 2023 from another indicators file replaces its facts.
	other := filepath.Join(dir, "indicators_revised.xlsx")
	data, _ := os.ReadFile(src.Indicators)
	if err := os.WriteFile(other, data, 0644); err != nil {
		t.Fatal(err)
	}
	src.Indicators = other
	report, err := loader.Run(context.Background(), 2023, src)
	if err != nil {
		t.Fatalf("2023 reload: %v", err)
	}
	if report.FactsReplaced != 9 {
		t.Errorf("replaced = %d", report.FactsReplaced)
	}

	star, err := LoadStar(cfg.Warehouse.WorkbookPath, cfg.Warehouse.Sheets)
	if err != nil {
		t.Fatal(err)
	}
	if len(star.Companies) != 3 || len(star.Branches) != 3 || len(star.Periods) != 2 {
		t.Fatalf("dimensions grew: %d companies, %d branches, %d periods",
			len(star.Companies), len(star.Branches), len(star.Periods))
	}
	if len(star.Facts) != 18 {
		t.Fatalf("facts = %d, want 18", len(star.Facts))
	}
	ids := map[int]bool{}
	keys := map[types.FactKey]bool{}
	maxID := 0
	for _, f := range star.Facts {
		if ids[f.ID] || keys[f.FactKey] {
			t.Fatalf("duplicate fact %+v", f)
		}
		ids[f.ID] = true
		keys[f.FactKey] = true
		if f.ID > maxID {
			maxID = f.ID
		}
	}
	// Replaced facts never give their IDs back.
	if maxID != 27 {
		t.Errorf("max fact id = %d, want 27", maxID)
	}
}

func TestRunMissingSource(t *testing.T) {
	dir := t.TempDir()
	src := writeSources(t, dir)
	src.ClaimsPaid = ""
	_, err := NewLoader(testConfig(dir), nil).Run(context.Background(), 2023, src)
	if !errors.Is(err, ErrMissingSources) {
		t.Fatalf("err = %v", err)
	}
}

// =============================================================================
// PASS 5 UPSERT
// =============================================================================

func TestPass5UpsertsOnce(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	src := writeSources(t, dir)
	l := NewLoader(cfg, nil)

	tables, err := l.readSources(src)
	if err != nil {
		t.Fatal(err)
	}
	report := Report{SkippedRows: map[string]int{}}
	ld := l.newLoad(&types.Star{}, tables, &report)
	ld.begin(2023)
	ld.resolveBranches()
	ld.resolveCompanies()
	ld.pass2()
	n := ld.facts.Len()

	ld.pass5()
	ld.pass5()
	if ld.facts.Len() != n {
		t.Fatalf("pass 5 added facts: %d -> %d", n, ld.facts.Len())
	}
	if report.FactsUpdated != 4 {
		t.Fatalf("updated = %d", report.FactsUpdated)
	}
	f, _ := ld.facts.Lookup(ld.key(100, 0))
	assertAmount(t, "premiums", f.Values[types.NetPremiums], 150)
	assertAmount(t, "ceded kept", f.Values[types.CededPremiums], 200000)
}

func TestPass5InsertsWithoutIndicators(t *testing.T) {
	b := NewFactBuilder(nil)
	key := types.FactKey{TimeID: 1, CompanyID: 100, BranchID: 0}
	var v types.Measures
	v[types.NetPremiums] = decimal.NewFromInt(5)
	if !b.Upsert(key, v, types.NetPremiums) {
		t.Fatalf("expected insert")
	}
	if b.Upsert(key, v, types.NetPremiums) {
		t.Fatalf("expected update")
	}
	if b.Len() != 1 {
		t.Fatalf("len = %d", b.Len())
	}
}
