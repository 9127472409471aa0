// Package dedup collapses parsed publisher records into one canonical row per
// identity by applying an ordered list of uniqueness passes.
//
// Each pass keeps one record per distinct value of its key among the records
// that survived the previous passes. Records are ordered by row id before the
// first pass, so the survivors depend only on the input set and Apply is
// idempotent.
package dedup

import (
	"fmt"
	"slices"
	"strings"

	"metapub/internal/config"
	"metapub/internal/publisher"
)

// Key selects the field a pass compares.
type Key string

// Keep decides which record of a group survives.
type Keep string

const (
	KeySecondary Key = config.KeySecondary
	KeyPrimary   Key = config.KeyPrimary
	KeyLiteral   Key = config.KeyLiteral

	// KeepFirst keeps the record with the lowest row id.
	KeepFirst Keep = config.KeepFirst
	// KeepLast keeps the record with the highest row id.
	KeepLast Keep = config.KeepLast
)

// Pass is one step of the cascade.
type Pass struct {
	Key  Key
	Keep Keep
}

func (p Pass) String() string {
	return fmt.Sprintf("%s/%s", p.Key, p.Keep)
}

// PassStats records how many rows a pass saw and kept.
type PassStats struct {
	Pass    Pass
	Before  int
	After   int
	Removed int
}

// Result is the outcome of Apply.
type Result struct {
	// Records are the survivors ordered by row id.
	Records []publisher.ParsedRecord
	Passes  []PassStats
}

// Engine applies a fixed cascade.
type Engine struct {
	passes []Pass
}

// DefaultPasses is secondary, then primary, then literal, each keeping the
// first row.
func DefaultPasses() []Pass {
	return []Pass{
		{Key: KeySecondary, Keep: KeepFirst},
		{Key: KeyPrimary, Keep: KeepFirst},
		{Key: KeyLiteral, Keep: KeepFirst},
	}
}

// PassesFromConfig converts configured passes.
func PassesFromConfig(passes []config.DedupPass) []Pass {
	out := make([]Pass, 0, len(passes))
	for _, p := range passes {
		out = append(out, Pass{
			Key:  Key(strings.ToLower(strings.TrimSpace(p.Key))),
			Keep: Keep(strings.ToLower(strings.TrimSpace(p.Keep))),
		})
	}
	return out
}

// NewEngine validates passes and builds an Engine. An empty list uses
// DefaultPasses.
func NewEngine(passes []Pass) (*Engine, error) {
	if len(passes) == 0 {
		passes = DefaultPasses()
	}
	seen := make(map[Key]bool, len(passes))
	for i, p := range passes {
		switch p.Key {
		case KeySecondary, KeyPrimary, KeyLiteral:
		default:
			return nil, fmt.Errorf("dedup pass %d: unknown key %q", i, p.Key)
		}
		switch p.Keep {
		case KeepFirst, KeepLast:
		default:
			return nil, fmt.Errorf("dedup pass %d: unknown keep rule %q", i, p.Keep)
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("dedup pass %d: key %q repeated", i, p.Key)
		}
		seen[p.Key] = true
	}
	return &Engine{passes: slices.Clone(passes)}, nil
}

// Passes returns the cascade in order.
func (e *Engine) Passes() []Pass {
	return slices.Clone(e.passes)
}

// Apply runs the cascade over records. The input slice is not modified.
func (e *Engine) Apply(records []publisher.ParsedRecord) Result {
	rows := slices.Clone(records)
	slices.SortStableFunc(rows, func(a, b publisher.ParsedRecord) int {
		switch {
		case a.RowID < b.RowID:
			return -1
		case a.RowID > b.RowID:
			return 1
		default:
			return 0
		}
	})

	stats := make([]PassStats, 0, len(e.passes))
	for _, pass := range e.passes {
		before := len(rows)
		rows = applyPass(rows, pass)
		stats = append(stats, PassStats{Pass: pass, Before: before, After: len(rows), Removed: before - len(rows)})
	}
	return Result{Records: rows, Passes: stats}
}

// applyPass keeps one row per key value. rows must be ordered by row id and
// the result keeps that order.
func applyPass(rows []publisher.ParsedRecord, pass Pass) []publisher.ParsedRecord {
	keep := make([]bool, len(rows))
	seen := make(map[string]struct{}, len(rows))
	mark := func(i int) {
		k := keyOf(rows[i], pass.Key)
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		keep[i] = true
	}
	if pass.Keep == KeepLast {
		for i := len(rows) - 1; i >= 0; i-- {
			mark(i)
		}
	} else {
		for i := range rows {
			mark(i)
		}
	}

	out := rows[:0:0]
	for i, row := range rows {
		if keep[i] {
			out = append(out, row)
		}
	}
	return out
}

func keyOf(rec publisher.ParsedRecord, key Key) string {
	switch key {
	case KeySecondary:
		return rec.Secondary.Key()
	case KeyPrimary:
		return rec.Primary.Key()
	default:
		return rec.Literal
	}
}
