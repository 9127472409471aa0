package dedup

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"metapub/internal/config"
	"metapub/internal/publisher"
)

func parseAll(t *testing.T, raws ...string) []publisher.ParsedRecord {
	t.Helper()
	p := publisher.NewParser("")
	out := make([]publisher.ParsedRecord, 0, len(raws))
	for i, raw := range raws {
		rec, err := p.Parse(int64(i), raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		out = append(out, rec)
	}
	return out
}

func rowIDs(records []publisher.ParsedRecord) []int64 {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.RowID)
	}
	return ids
}

func TestApplyCascade(t *testing.T) {
	records := parseAll(t,
		"Acme Press [omid:1 crossref:10]",     // 0
		"ACME PRESS LTD [omid:2 crossref:10]", // 1 same secondary as 0
		"Acme [omid:1]",                       // 2 same primary as 0
		"Unknown Press",                       // 3
		"unknown press",                       // 4 same literal as 3
		"Other Press",                         // 5
		"Acme Press [omid:7]",                 // 6 same literal as 0
	)

	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result := engine.Apply(records)

	if diff := cmp.Diff([]int64{0, 3, 5}, rowIDs(result.Records)); diff != "" {
		t.Fatalf("survivors mismatch (-want +got):\n%s", diff)
	}
	removed := []int{result.Passes[0].Removed, result.Passes[1].Removed, result.Passes[2].Removed}
	if diff := cmp.Diff([]int{1, 1, 2}, removed); diff != "" {
		t.Fatalf("per-pass removals mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	records := parseAll(t,
		"A [omid:1 crossref:9]", "B [omid:1]", "C [omid:2 crossref:9]",
		"d", "D", "é", "e", "F [omid:3 crossref:4 crossref:5]", "f",
	)
	engine, err := NewEngine(DefaultPasses())
	if err != nil {
		t.Fatal(err)
	}
	once := engine.Apply(records)
	twice := engine.Apply(once.Records)

	if diff := cmp.Diff(rowIDs(once.Records), rowIDs(twice.Records)); diff != "" {
		t.Fatalf("second pass changed survivors (-once +twice):\n%s", diff)
	}
	for _, ps := range twice.Passes {
		if ps.Removed != 0 {
			t.Fatalf("pass %s removed %d rows on its own output", ps.Pass, ps.Removed)
		}
	}
}

func TestApplyIsOrderIndependent(t *testing.T) {
	records := parseAll(t, "x [omid:1]", "y [omid:1]", "z", "Z")
	reversed := make([]publisher.ParsedRecord, len(records))
	for i, r := range records {
		reversed[len(records)-1-i] = r
	}
	engine, _ := NewEngine(nil)
	a := engine.Apply(records)
	b := engine.Apply(reversed)
	if diff := cmp.Diff(rowIDs(a.Records), rowIDs(b.Records)); diff != "" {
		t.Fatalf("input order changed the result:\n%s", diff)
	}
}

func TestSentinelsNeverCollide(t *testing.T) {
	records := parseAll(t, "Alpha", "Beta", "Gamma")
	// A real identifier equal to another row's rendered sentinel.
	records = append(records, publisher.ParsedRecord{
		RowID:     3,
		Literal:   "delta",
		Primary:   publisher.Value("1", 3),
		Secondary: publisher.Value("2", 3),
	})
	engine, _ := NewEngine(nil)
	result := engine.Apply(records)
	if len(result.Records) != 4 {
		t.Fatalf("expected every row to survive, got %v", rowIDs(result.Records))
	}
}

func TestKeepLast(t *testing.T) {
	records := parseAll(t, "A [omid:1]", "B [omid:1]", "C [omid:1]")
	engine, err := NewEngine([]Pass{{Key: KeyPrimary, Keep: KeepLast}})
	if err != nil {
		t.Fatal(err)
	}
	result := engine.Apply(records)
	if diff := cmp.Diff([]int64{2}, rowIDs(result.Records)); diff != "" {
		t.Fatalf("survivors mismatch (-want +got):\n%s", diff)
	}
}

func TestPassOrderChangesRepresentative(t *testing.T) {
	records := parseAll(t,
		"Acme [omid:1 crossref:10]",
		"Acme [omid:2 crossref:20]",
		"Zeta [omid:3 crossref:20]",
	)
	literalFirst, _ := NewEngine([]Pass{{KeyLiteral, KeepFirst}, {KeyPrimary, KeepFirst}, {KeySecondary, KeepFirst}})
	defaults, _ := NewEngine(nil)

	if diff := cmp.Diff([]int64{0}, rowIDs(defaults.Apply(records).Records)); diff != "" {
		t.Fatalf("default order survivors mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]int64{0, 2}, rowIDs(literalFirst.Apply(records).Records)); diff != "" {
		t.Fatalf("literal-first survivors mismatch:\n%s", diff)
	}
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name   string
		passes []Pass
	}{
		{"unknown key", []Pass{{Key: "title", Keep: KeepFirst}}},
		{"unknown keep", []Pass{{Key: KeyPrimary, Keep: "random"}}},
		{"repeated key", []Pass{{KeyPrimary, KeepFirst}, {KeyPrimary, KeepLast}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.passes); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPassesFromConfig(t *testing.T) {
	got := PassesFromConfig([]config.DedupPass{{Key: " Primary ", Keep: "LAST"}, {Key: "literal", Keep: "first"}})
	want := []Pass{{KeyPrimary, KeepLast}, {KeyLiteral, KeepFirst}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("passes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(DefaultPasses(), PassesFromConfig(config.DefaultDedupPasses())); diff != "" {
		t.Fatalf("config defaults diverge:\n%s", diff)
	}
}
