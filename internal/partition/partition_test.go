package partition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"metapub/internal/archive"
	"metapub/internal/failure"
)

func frameOf(values ...string) archive.Frame {
	frame := make(archive.Frame, 0, len(values))
	for _, v := range values {
		frame = append(frame, archive.Record{Publisher: v})
	}
	return frame
}

func readAll(t *testing.T, path string) []string {
	t.Helper()
	var out []string
	err := ScanFile(context.Background(), path, 2, func(rows []archive.Record) error {
		for _, r := range rows {
			out = append(out, r.Publisher)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanFile(%s): %v", path, err)
	}
	return out
}

func TestWriterRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "partitions")
	w := NewWriter(dir, nil)
	if err := w.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	path, err := w.Write(3, frameOf("Acme [omid:1]", "Wiley", "Éditions"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if path != filepath.Join(dir, "3.parquet") {
		t.Fatalf("unexpected path %s", path)
	}
	if diff := cmp.Diff([]string{"Acme [omid:1]", "Wiley", "Éditions"}, readAll(t, path)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	n, err := CountRows(path)
	if err != nil || n != 3 {
		t.Fatalf("CountRows = %d, %v", n, err)
	}
}

func TestWriterRejectsEmptyFrame(t *testing.T) {
	w := NewWriter(t.TempDir(), nil)
	if _, err := w.Write(0, nil); !errors.Is(err, failure.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestWriterResetRemovesStalePartitions(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)
	if _, err := w.Write(0, frameOf("a")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".1.parquet.123.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dir after reset, found %d entries", len(entries))
	}
}

func TestDatasetOrdersPartitionsNumerically(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, nil)
	for _, ordinal := range []int{10, 2, 0} {
		if _, err := w.Write(ordinal, frameOf(fmt.Sprintf("p%d", ordinal))); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.parquet"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ds, err := OpenDataset(dir)
	if err != nil {
		t.Fatalf("OpenDataset: %v", err)
	}
	want := []string{filepath.Join(dir, "0.parquet"), filepath.Join(dir, "2.parquet"), filepath.Join(dir, "10.parquet")}
	if diff := cmp.Diff(want, ds.Paths()); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}

	if n, err := ds.NumRows(); err != nil || n != 3 {
		t.Fatalf("NumRows = %d, %v", n, err)
	}

	var got []string
	err = ds.Scan(context.Background(), 0, func(rows []archive.Record) error {
		for _, r := range rows {
			got = append(got, r.Publisher)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if diff := cmp.Diff([]string{"p0", "p2", "p10"}, got); diff != "" {
		t.Fatalf("scan order mismatch (-want +got):\n%s", diff)
	}
}

func TestMergePreservesRowsAndCleansUp(t *testing.T) {
	root := t.TempDir()
	partDir := filepath.Join(root, "partitions")
	mergedDir := filepath.Join(root, "merged")
	w := NewWriter(partDir, nil)
	if err := w.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}

	total := 0
	for ordinal := range 4 {
		values := make([]string, 0, ordinal+1)
		for i := 0; i <= ordinal; i++ {
			values = append(values, fmt.Sprintf("b%d-r%d", ordinal, i))
		}
		total += len(values)
		if _, err := w.Write(ordinal, frameOf(values...)); err != nil {
			t.Fatal(err)
		}
	}

	m := NewMerger(partDir, mergedDir, nil)
	m.chunkRows = 3
	result, err := m.Merge(context.Background())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if result.Rows != int64(total) || result.Partitions != 4 {
		t.Fatalf("unexpected result %+v, want %d rows", result, total)
	}
	if got := readAll(t, result.Path); len(got) != total || got[0] != "b0-r0" || got[total-1] != "b3-r3" {
		t.Fatalf("merged rows = %v", got)
	}
	if _, err := os.Stat(partDir); !os.IsNotExist(err) {
		t.Fatalf("partition dir should be removed, stat err = %v", err)
	}
	if !result.DirRemoved {
		t.Fatal("expected DirRemoved")
	}
}

func TestMergeKeepsUnexpectedFilesAndWarns(t *testing.T) {
	root := t.TempDir()
	partDir := filepath.Join(root, "partitions")
	w := NewWriter(partDir, nil)
	if err := w.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write(0, frameOf("a")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(partDir, "README"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := NewMerger(partDir, filepath.Join(root, "merged"), nil).Merge(context.Background())
	if err != nil {
		t.Fatalf("Merge should not fail on cleanup: %v", err)
	}
	if result.DirRemoved || !result.DirNotEmpty {
		t.Fatalf("non-empty partition dir cannot be removed, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(partDir, "0.parquet")); !os.IsNotExist(err) {
		t.Fatal("partition file should be deleted")
	}
}

func TestMergeKeepsPartitionsWhenRowsCannotBeAccounted(t *testing.T) {
	root := t.TempDir()
	partDir := filepath.Join(root, "partitions")
	w := NewWriter(partDir, nil)
	if err := w.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	good, err := w.Write(0, frameOf("a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(partDir, "1.parquet"), []byte("not parquet"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewMerger(partDir, filepath.Join(root, "merged"), nil)
	if _, err := m.Merge(context.Background()); !errors.Is(err, failure.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := os.Stat(good); err != nil {
		t.Fatalf("partitions must survive a failed merge: %v", err)
	}
	if _, err := os.Stat(m.MergedPath()); !os.IsNotExist(err) {
		t.Fatalf("no merged file expected, stat err = %v", err)
	}
}

func TestMergeWithoutPartitionsWritesEmptyFile(t *testing.T) {
	root := t.TempDir()
	result, err := NewMerger(filepath.Join(root, "partitions"), filepath.Join(root, "merged"), nil).Merge(context.Background())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if result.Rows != 0 || result.Partitions != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	n, err := CountRows(result.Path)
	if err != nil || n != 0 {
		t.Fatalf("CountRows = %d, %v", n, err)
	}
}

func TestScanFileHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	path, err := NewWriter(dir, nil).Write(0, frameOf("a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ScanFile(ctx, path, 1, func([]archive.Record) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
