package cleaner

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/insurance-report-etl/internal/ledger"
	"github.com/ginjaninja78/insurance-report-etl/internal/types"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxparser"
)

// =============================================================================
// FIXTURES
// =============================================================================

// writeRaw saves rows as the first sheet of dir/name, the way the extractor
// produces raw tables.
func writeRaw(t *testing.T, dir, name string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow("Sheet1", cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, name)
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func ftusaRows() [][]interface{} {
	return [][]interface{}{
		{"CHIFFRES D'AFFAIRES PAR BRANCHE"},
		{"-", "", ""},
		{"Compagnie", "Vie", "Auto"},
		{"STAR", "1 200", "300"},
		{"GAT", "n.d.", 45},
	}
}

func countXLSX(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".xlsx") {
			n++
		}
	}
	return n
}

// =============================================================================
// CLEAN (PURE TRANSFORM)
// =============================================================================

func TestCleanFTUSAWithoutSeparator(t *testing.T) {
	c := New(VariantFTUSA, Options{KnownCompanyTokens: []string{"STAR", "MAGHREBIA", "GAT"}}, nil)
	raw := types.GridFromStrings([][]string{
		{"TOTAL AGENCY"},
		{"Compagnie", "Vie", "NonVie"},
		{"STAR", "10", "20"},
	})
	table, stats := c.Clean(raw, "p1.xlsx")

	want := []string{CompanyColumn, "Vie", "NonVie"}
	if !reflect.DeepEqual(table.Header, want) {
		t.Fatalf("header = %q, want %q", table.Header, want)
	}
	if len(table.Rows) != 1 || !reflect.DeepEqual(table.Rows[0].Texts(), []string{"STAR", "10", "20"}) {
		t.Fatalf("rows = %v", table.Rows)
	}
	if stats.SeparatorFound {
		t.Fatalf("separator should not be found")
	}
	if table.Name != "Donnees.xlsx" {
		t.Fatalf("name = %q", table.Name)
	}
}

func TestCleanCGA(t *testing.T) {
	c := New(VariantCGA, Options{}, nil)
	raw := types.GridFromStrings([][]string{
		{"Compte d'exploitation Vie"},
		{"(M.D)"},
		{"Indicateur", "Vie", "Non Vie"},
		{"", "brut", "net"},
		{"Primes acquises", "10", "20"},
		{"Voir annexe 2"},
		{"Charges de sinistres", "5", "8"},
		{strings.Repeat("texte ", 20)},
		{"ligne perdue", "1", "1"},
	})
	table, stats := c.Clean(raw, "rapport p12.xlsx")
	if table.Name != "Compte_d'exploitation_Vie.xlsx" {
		t.Fatalf("name = %q", table.Name)
	}
	if !reflect.DeepEqual(table.Header, []string{"Indicateur", "Vie brut", "Non Vie net"}) {
		t.Fatalf("header = %q", table.Header)
	}
	if stats.Rows != 2 || stats.HeaderRows != 2 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCGAOutputNameFallsBackToInput(t *testing.T) {
	if got := cgaOutputName("", "rapport p12.xlsx", 100); got != "rapport_p12.xlsx" {
		t.Fatalf("got %q", got)
	}
	if got := cgaOutputName("", "???.xlsx", 100); got != "Donnees.xlsx" {
		t.Fatalf("got %q", got)
	}
}

// =============================================================================
// TRANSFORMATIONS
// =============================================================================

func TestCoerceIntegers(t *testing.T) {
	table := &types.Table{
		Header: []string{"a", "b", "c", "d", "e"},
		Rows: []types.Row{{
			types.TextValue("1 234"),
			types.TextValue("12,5"),
			types.TextValue("STAR"),
			types.MissingValue(),
			types.NumberValue(7.5),
		}},
	}
	CoerceIntegers(table)
	row := table.Rows[0]
	if !row[0].IsNumber() || row[0].Num != 1234 {
		t.Errorf("1 234 -> %+v", row[0])
	}
	if !row[1].IsText() || !row[2].IsText() || !row[3].IsMissing() {
		t.Errorf("non-integers changed: %+v", row)
	}
	if row[4].Num != 7.5 {
		t.Errorf("number changed: %+v", row[4])
	}
}

func TestRenameFirstColumnIndicator(t *testing.T) {
	table := &types.Table{
		Header: []string{"x", "Vie"},
		Rows:   []types.Row{{types.TextValue("Primes acquises"), types.NumberValue(1)}},
	}
	if got := RenameFirstColumn(table, []string{"STAR"}, 50); got != IndicatorColumn {
		t.Fatalf("label = %q", got)
	}
}

func TestRenameFirstColumnSampleLimit(t *testing.T) {
	table := &types.Table{Header: []string{"x"}}
	for i := 0; i < 3; i++ {
		table.Rows = append(table.Rows, types.Row{types.TextValue("autre")})
	}
	table.Rows = append(table.Rows, types.Row{types.TextValue(" STAR ")})

	if got := RenameFirstColumn(table, []string{"STAR"}, 3); got != IndicatorColumn {
		t.Fatalf("row beyond sample was inspected")
	}
	if got := RenameFirstColumn(table, []string{"STAR"}, 4); got != CompanyColumn {
		t.Fatalf("trimmed token not found")
	}
}

func TestRenameFirstColumnEmptyTable(t *testing.T) {
	table := &types.Table{Header: []string{"Compagnie", "Vie"}}
	if got := RenameFirstColumn(table, []string{"STAR"}, 50); got != "Compagnie" {
		t.Fatalf("label = %q", got)
	}
	if table.Header[0] != "Compagnie" {
		t.Fatalf("header = %q", table.Header)
	}
}

func TestCleanFTUSAKeepsAnnexTitle(t *testing.T) {
	c := New(VariantFTUSA, Options{KnownCompanyTokens: []string{"STAR"}}, nil)
	raw := types.GridFromStrings([][]string{
		{"ANNEXE N°3"},
		{"CHIFFRES D'AFFAIRES"},
		{"-", "", ""},
		{"Compagnie", "Vie", "Auto"},
		{"STAR", "10", "20"},
		{"Voir annexe 4", "", ""},
		{"GAT", "5", "6"},
	})
	table, _ := c.Clean(raw, "p3.xlsx")

	if table.Name != "ANNEXE N°3 - CHIFFRES D'AFFAIRES.xlsx" {
		t.Fatalf("name = %q", table.Name)
	}
	if len(table.Rows) != 2 || table.Rows[1][0].String() != "GAT" {
		t.Fatalf("rows = %v", table.Rows)
	}
}

// =============================================================================
// RUN AND BATCH
// =============================================================================

func cgaRows(year string) [][]interface{} {
	return [][]interface{}{
		{"PRINCIPAUX INDICATEURS PAR COMPAGNIE"},
		{"Compagnie", "Primes", "Resultat"},
		{"", "emises", "net"},
		{"STAR", year, "12"},
	}
}

func TestRunBatchCGASharedTitleKeepsBoth(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := []string{
		writeRaw(t, in, "cga_2022.xlsx", cgaRows("2022")),
		writeRaw(t, in, "cga_2023.xlsx", cgaRows("2023")),
	}

	led, err := ledger.Open(filepath.Join(out, "log_cleaning_CGA.txt"))
	if err != nil {
		t.Fatal(err)
	}
	c := New(VariantCGA, Options{OutputDir: out}, nil)
	s, err := RunBatch(context.Background(), files, c, led, BatchOptions{MaxConcurrency: 2})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if s.Processed != 2 || s.Failed != 0 {
		t.Fatalf("summary = %+v", s)
	}

	names := map[string]bool{}
	for _, r := range s.Results {
		names[r.OutputFile] = true
	}
	want := map[string]bool{
		"PRINCIPAUX_INDICATEURS_PAR_COMPAGNIE.xlsx":   true,
		"PRINCIPAUX_INDICATEURS_PAR_COMPAGNIE_1.xlsx": true,
	}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("outputs = %v", names)
	}
	if n := countXLSX(t, out); n != 2 {
		t.Fatalf("xlsx on disk = %d, want 2", n)
	}

	years := map[string]bool{}
	for name := range want {
		table, err := xlsxparser.ReadTable(filepath.Join(out, name))
		if err != nil {
			t.Fatal(err)
		}
		years[table.Cell(0, 1).String()] = true
	}
	if !years["2022"] || !years["2023"] {
		t.Fatalf("years kept = %v", years)
	}
}

func TestRunFTUSAAvoidsCollisions(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeRaw(t, in, "p3.xlsx", ftusaRows())
	if err := os.WriteFile(filepath.Join(out, "CHIFFRES D'AFFAIRES PAR BRANCHE.xlsx"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	c := New(VariantFTUSA, Options{OutputDir: out, KnownCompanyTokens: []string{"STAR"}}, nil)
	res := c.Run(path)
	if !res.Success {
		t.Fatalf("Run failed: %v", res.Error)
	}
	if res.OutputFile != "CHIFFRES D'AFFAIRES PAR BRANCHE_1.xlsx" {
		t.Fatalf("output = %q", res.OutputFile)
	}
	kept, _ := os.ReadFile(filepath.Join(out, "CHIFFRES D'AFFAIRES PAR BRANCHE.xlsx"))
	if string(kept) != "keep" {
		t.Fatalf("existing file overwritten")
	}

	table, err := xlsxparser.ReadTable(res.OutputPath)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if table.Header[0] != CompanyColumn {
		t.Fatalf("header = %q", table.Header)
	}
	if v := table.Cell(0, 1); !v.IsNumber() || v.Num != 1200 {
		t.Fatalf("coerced cell = %+v", v)
	}
	if v := table.Cell(1, 1); v.String() != "n.d." {
		t.Fatalf("placeholder cell = %+v", v)
	}
}

func TestRunBatchIsIdempotent(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeRaw(t, in, "a.xlsx", ftusaRows())
	writeRaw(t, in, "b.xlsx", ftusaRows())
	files := []string{filepath.Join(in, "a.xlsx"), filepath.Join(in, "b.xlsx")}

	led, err := ledger.Open(filepath.Join(out, "log_cleaning_FTUSA.txt"))
	if err != nil {
		t.Fatal(err)
	}
	c := New(VariantFTUSA, Options{OutputDir: out}, nil)

	first, err := RunBatch(context.Background(), files, c, led, BatchOptions{MaxConcurrency: 2, SummaryDir: out})
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if first.Processed != 2 || first.Skipped != 0 || first.Failed != 0 {
		t.Fatalf("first = %+v", first)
	}
	if n := countXLSX(t, out); n != 2 {
		t.Fatalf("outputs after first run = %d, want 2", n)
	}
	if first.SummaryLog == "" {
		t.Fatalf("no summary log written")
	}

	second, err := RunBatch(context.Background(), files, c, led, BatchOptions{MaxConcurrency: 2})
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if second.Skipped != 2 || second.Processed != 0 || len(second.SkippedFiles) != 2 {
		t.Fatalf("second = %+v", second)
	}
	for _, f := range files {
		if !led.IsProcessed(f) {
			t.Fatalf("%s not processed", f)
		}
	}
	if n := countXLSX(t, out); n != 2 {
		t.Fatalf("outputs after second run = %d, want 2", n)
	}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	good := writeRaw(t, in, "good.xlsx", ftusaRows())
	bad := filepath.Join(in, "bad.xlsx")
	if err := os.WriteFile(bad, []byte("not a workbook"), 0644); err != nil {
		t.Fatal(err)
	}

	led, err := ledger.Open(filepath.Join(out, "log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	c := New(VariantCGA, Options{OutputDir: out}, nil)
	s, err := RunBatch(context.Background(), []string{bad, good}, c, led, BatchOptions{MaxConcurrency: 1})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if s.Processed != 1 || s.Failed != 1 {
		t.Fatalf("summary = %+v", s)
	}
	e, ok := led.Latest("bad.xlsx")
	if !ok || e.Status != ledger.StatusFailed || e.OutputFile != "" {
		t.Fatalf("bad entry = %+v", e)
	}
	e, ok = led.Latest("good.xlsx")
	if !ok || e.Status != ledger.StatusSuccess || e.OutputFile == "" {
		t.Fatalf("good entry = %+v", e)
	}
}

func TestRunBatchDryRun(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	path := writeRaw(t, in, "a.xlsx", ftusaRows())

	led, err := ledger.Open(filepath.Join(out, "log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	c := New(VariantFTUSA, Options{OutputDir: out, DryRun: true}, nil)
	s, err := RunBatch(context.Background(), []string{path}, c, led, BatchOptions{SummaryDir: out})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if s.Processed != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if n := countXLSX(t, out); n != 0 {
		t.Fatalf("dry run wrote %d files", n)
	}
	if len(led.Entries()) != 0 {
		t.Fatalf("dry run recorded ledger entries")
	}
}

func TestParseVariant(t *testing.T) {
	if v, err := ParseVariant("ftusa"); err != nil || v != VariantFTUSA {
		t.Fatalf("got %v, %v", v, err)
	}
	if _, err := ParseVariant("xyz"); err == nil {
		t.Fatalf("expected error")
	}
}
