package output

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"metapub/internal/publisher"
)

func sampleRecords(t *testing.T) []publisher.ParsedRecord {
	t.Helper()
	p := publisher.NewParser("")
	var out []publisher.ParsedRecord
	for i, raw := range []string{
		"Acme Press [omid:01234 crossref:55]",
		"Unknown Press",
		"[omid:77]",
		"Éditions Gallimard [omid:9]",
	} {
		rec, err := p.Parse(int64(i*10), raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestWriterWritesAllOutputs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	records := sampleRecords(t)

	paths, err := NewWriter(dir, true, nil).Write(context.Background(), records)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	literals, err := os.ReadFile(paths.Literals)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(literals), "acme press\neditions gallimard\nunknown press\n"; got != want {
		t.Fatalf("literals = %q, want %q", got, want)
	}

	f, err := os.Open(paths.CSV)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	lines, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		Header,
		{"0", "acme press", "01234", "55"},
		{"10", "unknown press", "10", "10"},
		{"20", "", "77", "20"},
		{"30", "editions gallimard", "9", "30"},
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Fatalf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCanonicalRestoresSentinels(t *testing.T) {
	dir := t.TempDir()
	records := sampleRecords(t)
	paths, err := NewWriter(dir, false, nil).Write(context.Background(), records)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if paths.CSV != "" {
		t.Fatalf("csv should be disabled, got %s", paths.CSV)
	}
	if _, err := os.Stat(filepath.Join(dir, CSVFileName)); !os.IsNotExist(err) {
		t.Fatal("csv file written although disabled")
	}

	got, err := ReadCanonical(paths.Parquet)
	if err != nil {
		t.Fatalf("ReadCanonical: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("read %d records, want %d", len(got), len(records))
	}
	for i := range records {
		if got[i].RowID != records[i].RowID || got[i].Literal != records[i].Literal {
			t.Errorf("record %d mismatch: %+v vs %+v", i, got[i], records[i])
		}
		if got[i].Primary.Key() != records[i].Primary.Key() || got[i].Secondary.Key() != records[i].Secondary.Key() {
			t.Errorf("record %d identifiers mismatch: %+v vs %+v", i, got[i], records[i])
		}
	}
}

func TestDistinctLiterals(t *testing.T) {
	records := []publisher.ParsedRecord{
		{RowID: 0, Literal: "b"},
		{RowID: 1, Literal: ""},
		{RowID: 2, Literal: "a"},
		{RowID: 3, Literal: "b"},
	}
	if diff := cmp.Diff([]string{"a", "b"}, DistinctLiterals(records)); diff != "" {
		t.Fatalf("literals mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteEmptyDataset(t *testing.T) {
	dir := t.TempDir()
	paths, err := NewWriter(dir, true, nil).Write(context.Background(), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := ReadCanonical(paths.Parquet)
	if err != nil || len(got) != 0 {
		t.Fatalf("ReadCanonical = %v, %v", got, err)
	}
	literals, err := os.ReadFile(paths.Literals)
	if err != nil || len(literals) != 0 {
		t.Fatalf("literals = %q, %v", literals, err)
	}
}
