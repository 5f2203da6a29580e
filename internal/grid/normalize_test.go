package grid

import (
	"strings"
	"testing"

	"github.com/ginjaninja78/insurance-report-etl/internal/types"
)

func TestNormalizeDropsAnnexRows(t *testing.T) {
	g := types.GridFromStrings([][]string{
		{"Compagnie", "Vie"},
		{"Voir ANNEXE 3", ""},
		{"STAR", "10"},
	})
	out := Normalize(g, Options{})
	if len(out) != 2 {
		t.Fatalf("got %d rows, want 2", len(out))
	}
	if out[1][0].String() != "STAR" {
		t.Fatalf("row 1 = %v, want STAR row", out[1].Texts())
	}
}

func TestNormalizeTruncatesAtProse(t *testing.T) {
	prose := strings.Repeat("mot ", 16)
	g := types.GridFromStrings([][]string{
		{"Compagnie", "Vie"},
		{"STAR", "10"},
		{prose, ""},
		{"GAT", "20"},
	})
	out := Normalize(g, Options{MaxWordsPerRow: 15})
	if len(out) != 2 {
		t.Fatalf("got %d rows, want 2", len(out))
	}
	for _, row := range out {
		if WordCount(row) > 15 {
			t.Fatalf("prose row survived: %v", row.Texts())
		}
	}
}

func TestNormalizeRowTruncationInvariant(t *testing.T) {
	// Words spread over several cells still count as one row.
	long := []string{"un deux trois quatre", "cinq six sept huit", "neuf dix onze douze", "treize quatorze quinze seize"}
	cases := [][][]string{
		{{"a"}, long, {"b"}},
		{long, {"a"}},
		{{"a"}, {"b"}, {"c"}, long},
		{{"a"}, long, {"b"}, long},
	}
	for i, rows := range cases {
		g := types.GridFromStrings(rows)
		first := FirstProseRow(g, 15)
		out := Normalize(g, Options{MaxWordsPerRow: 15})
		if len(out) != first {
			t.Errorf("case %d: got %d rows, want %d", i, len(out), first)
		}
	}
}

func TestNormalizeNumbersDoNotCountAsWords(t *testing.T) {
	row := make([]string, 20)
	for i := range row {
		row[i] = "12"
	}
	g := types.GridFromStrings([][]string{row})
	if out := Normalize(g, Options{}); len(out) != 1 {
		t.Fatalf("numeric row was truncated")
	}
}

func TestNormalizeEmptyGrid(t *testing.T) {
	if out := Normalize(nil, Options{}); len(out) != 0 {
		t.Fatalf("expected empty grid, got %d rows", len(out))
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	g := types.GridFromStrings([][]string{{"annexe"}, {"STAR"}})
	_ = Normalize(g, Options{})
	if len(g) != 2 || g[0][0].String() != "annexe" {
		t.Fatalf("input grid modified: %v", g)
	}
}

func TestNormalizeKeepsSourceWidth(t *testing.T) {
	g := types.GridFromStrings([][]string{
		{"Annexe", "", "", "", ""},
		{"Compagnie", "Vie"},
		{"STAR", "10", "20"},
	})
	out := Normalize(g, Options{})
	if got := out.Width(); got != 5 {
		t.Fatalf("width = %d, want 5", got)
	}
	for i, row := range out {
		if len(row) != 5 {
			t.Fatalf("row %d has %d cells, want 5", i, len(row))
		}
	}
}
