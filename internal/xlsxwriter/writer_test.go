package xlsxwriter

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
	"github.com/ginjaninja78/insurance-report-etl/internal/xlsxparser"
)

func TestWriteTableRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "table.xlsx")
	in := &types.Table{
		Header: []string{"Compagnie d'assurance", "Vie", "Auto"},
		Rows: []types.Row{
			{types.TextValue("STAR"), types.NumberValue(1200), types.MissingValue()},
			{types.TextValue("GAT"), types.NumberValue(12.5), types.TextValue("n.d.")},
		},
	}
	if err := WriteTable(path, in); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	out, err := xlsxparser.ReadTable(path)
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	if !reflect.DeepEqual(out.Header, in.Header) {
		t.Fatalf("header = %q", out.Header)
	}
	if len(out.Rows) != 2 {
		t.Fatalf("rows = %d", len(out.Rows))
	}
	if v := out.Rows[0][1]; !v.IsNumber() || v.Num != 1200 {
		t.Fatalf("row 0 col 1 = %+v", v)
	}
	if v := out.Rows[0][2]; !v.IsMissing() {
		t.Fatalf("row 0 col 2 = %+v, want missing", v)
	}
	if v := out.Rows[1][2]; v.String() != "n.d." {
		t.Fatalf("row 1 col 2 = %+v", v)
	}
}

func TestWriteSheetsNamesAndOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wb.xlsx")
	sheets := []Sheet{
		{Name: "Dim_Temps", Header: []string{"ID_Temps", "Annee"}, Rows: []types.Row{{types.NumberValue(1), types.NumberValue(2023)}}},
		{Name: "Fait_Indicateurs", Header: []string{"ID_Fait"}},
	}
	if err := WriteSheets(path, sheets); err != nil {
		t.Fatalf("WriteSheets: %v", err)
	}
	tables, err := xlsxparser.ReadSheets(path)
	if err != nil {
		t.Fatalf("ReadSheets: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d sheets", len(tables))
	}
	if _, ok := tables[DefaultSheetName]; ok {
		t.Fatalf("default sheet left behind")
	}
	if got := tables["Dim_Temps"].Cell(0, 1).Float(); got != 2023 {
		t.Fatalf("Annee = %v", got)
	}
	if len(tables["Fait_Indicateurs"].Rows) != 0 {
		t.Fatalf("fact sheet should be empty")
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.xlsx")
	for i := 0; i < 2; i++ {
		if err := WriteTable(path, &types.Table{Header: []string{"a"}}); err != nil {
			t.Fatalf("WriteTable: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Fatalf("temp file left: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("got %d files, want 1", len(entries))
	}
}

func TestWriteSheetsRejectsEmpty(t *testing.T) {
	if err := WriteSheets(filepath.Join(t.TempDir(), "x.xlsx"), nil); err == nil {
		t.Fatalf("expected error")
	}
}
