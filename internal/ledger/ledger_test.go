package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestOpenCreatesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "log_cleaning_CGA.txt")
	if _, err := Open(path); err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != HeaderLine+"\n" {
		t.Fatalf("content = %q", data)
	}
}

func TestIsProcessedLifecycle(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "table.xlsx")
	base := time.Date(2024, 5, 2, 10, 0, 0, 0, time.Local)
	touch(t, input, base)

	l, err := Open(filepath.Join(dir, "log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if l.IsProcessed(input) {
		t.Fatalf("unknown file reported processed")
	}

	l.now = func() time.Time { return base.Add(time.Minute) }
	if err := l.Record("table.xlsx", StatusSuccess, "out.xlsx"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !l.IsProcessed(input) {
		t.Fatalf("file not reported processed after Record")
	}

	// Modified after the entry: stale, must be reprocessed.
	touch(t, input, base.Add(time.Hour))
	if l.IsProcessed(input) {
		t.Fatalf("modified file reported processed")
	}
}

func TestIsProcessedMissingInput(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !l.IsProcessed(filepath.Join(t.TempDir(), "gone.xlsx")) {
		t.Fatalf("missing input should be reported processed")
	}
}

func TestLatestEntryWinsAfterReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Record("a.xlsx", StatusFailed, ""); err != nil {
		t.Fatal(err)
	}
	if err := l.Record("a.xlsx", StatusSuccess, "A.xlsx"); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(reopened.Entries()); n != 2 {
		t.Fatalf("entries = %d, want 2", n)
	}
	e, ok := reopened.Latest("a.xlsx")
	if !ok || e.Status != StatusSuccess || e.OutputFile != "A.xlsx" {
		t.Fatalf("latest = %+v", e)
	}
}

func TestRecordAppendsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.xlsx", "b.xlsx"} {
		if err := l.Record(name, StatusSuccess, ""); err != nil {
			t.Fatal(err)
		}
	}
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || lines[0] != HeaderLine {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[1], "a.xlsx|SUCCESS|") || !strings.HasSuffix(lines[1], "|") {
		t.Fatalf("line 1 = %q", lines[1])
	}
}

func TestMalformedLinesIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	content := HeaderLine + "\n" +
		"garbage\n" +
		"a.xlsx|SUCCESS|not a date|\n" +
		"b.xlsx|SUCCESS|2024-01-01 00:00:00\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(l.Entries()); n != 1 {
		t.Fatalf("entries = %d, want 1", n)
	}
	if e, _ := l.Latest("b.xlsx"); e.OutputFile != "" {
		t.Fatalf("output = %q", e.OutputFile)
	}
}

func TestRunLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "historique.xlsx")
	r, err := OpenRunLedger(path)
	if err != nil {
		t.Fatalf("OpenRunLedger: %v", err)
	}
	if r.IsLoaded(2023, "indicateurs.xlsx") {
		t.Fatalf("empty ledger reports loaded")
	}
	if err := r.Record(2023, "indicateurs.xlsx"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	reopened, err := OpenRunLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.IsLoaded(2023, "indicateurs.xlsx") {
		t.Fatalf("load not persisted")
	}
	if reopened.IsLoaded(2022, "indicateurs.xlsx") || reopened.IsLoaded(2023, "autre.xlsx") {
		t.Fatalf("gate keyed on wrong fields")
	}
	if e := reopened.Entries(); len(e) != 1 || e[0].LoadedAt.IsZero() {
		t.Fatalf("entries = %+v", e)
	}
}
