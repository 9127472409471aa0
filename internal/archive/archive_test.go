package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"metapub/internal/config"
	"metapub/internal/failure"
)

type entry struct {
	name     string
	body     string
	typeflag byte
}

func file(name, body string) entry { return entry{name: name, body: body, typeflag: tar.TypeReg} }

func buildTar(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Mode: 0o644}
		switch e.typeflag {
		case tar.TypeReg:
			hdr.Size = int64(len(e.body))
		case tar.TypeSymlink:
			hdr.Linkname = e.body
		case tar.TypeDir:
			hdr.Mode = 0o755
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write header %s: %v", e.name, err)
		}
		if e.typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write body %s: %v", e.name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	return buf.Bytes()
}

func collect(t *testing.T, cur *Cursor) []Batch {
	t.Helper()
	var batches []Batch
	for cur.Next() {
		batches = append(batches, cur.Batch())
	}
	return batches
}

func memberNames(batches []Batch) [][]string {
	out := make([][]string, 0, len(batches))
	for _, b := range batches {
		names := make([]string, 0, len(b.Members))
		for _, m := range b.Members {
			names = append(names, m.Name)
		}
		out = append(out, names)
	}
	return out
}

func TestCursorBatchesMembers(t *testing.T) {
	var entries []entry
	for i := range 5 {
		entries = append(entries, file(fmt.Sprintf("csv/%d.csv", i), "publisher\nx\n"))
	}
	cur := NewCursor(bytes.NewReader(buildTar(t, entries...)), Options{MemberPrefix: "csv/", MemberSuffix: ".csv", BatchSize: 2})
	defer cur.Close()

	batches := collect(t, cur)
	want := [][]string{{"csv/0.csv", "csv/1.csv"}, {"csv/2.csv", "csv/3.csv"}, {"csv/4.csv"}}
	if diff := cmp.Diff(want, memberNames(batches)); diff != "" {
		t.Fatalf("batches mismatch (-want +got):\n%s", diff)
	}
	for i, b := range batches {
		if b.Ordinal != i {
			t.Errorf("batch %d has ordinal %d", i, b.Ordinal)
		}
	}
	if cur.Err() != nil {
		t.Fatalf("unexpected error: %v", cur.Err())
	}
	if !cur.Done() || cur.Next() {
		t.Fatal("cursor should be exhausted and not restart")
	}
	if cur.Included() != 5 {
		t.Fatalf("included = %d, want 5", cur.Included())
	}
}

func TestCursorSkipsNonMembers(t *testing.T) {
	data := buildTar(t,
		entry{name: "csv/", typeflag: tar.TypeDir},
		file("csv/a.csv", "publisher\na\n"),
		entry{name: "csv/link.csv", body: "a.csv", typeflag: tar.TypeSymlink},
		file("other/b.csv", "publisher\nb\n"),
		file("csv/notes.txt", "hello"),
		file("csv/c.csv", "publisher\nc\n"),
	)
	cur := NewCursor(bytes.NewReader(data), Options{MemberPrefix: "csv/", MemberSuffix: ".csv", BatchSize: 10})
	defer cur.Close()

	batches := collect(t, cur)
	want := [][]string{{"csv/a.csv", "csv/c.csv"}}
	if diff := cmp.Diff(want, memberNames(batches)); diff != "" {
		t.Fatalf("members mismatch (-want +got):\n%s", diff)
	}
	if cur.Skipped() != 4 {
		t.Fatalf("skipped = %d, want 4", cur.Skipped())
	}
	if got := string(batches[0].Members[1].Content); got != "publisher\nc\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestCursorEmptyArchive(t *testing.T) {
	cur := NewCursor(bytes.NewReader(buildTar(t)), Options{BatchSize: 3})
	if cur.Next() {
		t.Fatal("empty archive should yield no batch")
	}
	if cur.Err() != nil || !cur.Done() {
		t.Fatalf("err=%v done=%v", cur.Err(), cur.Done())
	}
}

func TestCursorMarksOversizeMembers(t *testing.T) {
	data := buildTar(t,
		file("big.csv", "publisher\n0123456789012345678901234567890123456789\n"),
		file("small.csv", "publisher\na\n"),
	)
	cur := NewCursor(bytes.NewReader(data), Options{BatchSize: 10, MaxMemberBytes: 16})
	batches := collect(t, cur)
	if len(batches) != 1 || len(batches[0].Members) != 2 {
		t.Fatalf("unexpected batches %+v", batches)
	}
	big, small := batches[0].Members[0], batches[0].Members[1]
	if !big.TooLarge || big.Content != nil {
		t.Fatalf("big member not marked: %+v", big)
	}
	if small.TooLarge || string(small.Content) != "publisher\na\n" {
		t.Fatalf("small member damaged: %+v", small)
	}
}

func TestCursorYieldsBatchBeforeStreamError(t *testing.T) {
	data := buildTar(t,
		file("a.csv", "publisher\na\n"),
		file("b.csv", "publisher\nb\n"),
	)
	// Keep the first member intact and cut into the second header.
	truncated := data[:512+512+100]

	cur := NewCursor(bytes.NewReader(truncated), Options{BatchSize: 10})
	batches := collect(t, cur)
	if len(batches) != 1 || len(batches[0].Members) != 1 || batches[0].Members[0].Name != "a.csv" {
		t.Fatalf("expected the collected member before the error, got %+v", memberNames(batches))
	}
	if !errors.Is(cur.Err(), failure.ErrArchive) {
		t.Fatalf("expected archive error, got %v", cur.Err())
	}
}

func TestOpenCompressedArchives(t *testing.T) {
	raw := buildTar(t, file("csv/a.csv", "publisher\nAcme\n"), file("csv/b.csv", "publisher\nWiley\n"))

	compressors := map[string]func([]byte) []byte{
		config.CompressionNone: func(b []byte) []byte { return b },
		config.CompressionGzip: func(b []byte) []byte {
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write(b)
			_ = zw.Close()
			return buf.Bytes()
		},
		config.CompressionZstd: func(b []byte) []byte {
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				t.Fatalf("zstd writer: %v", err)
			}
			defer enc.Close()
			return enc.EncodeAll(b, nil)
		},
	}

	for name, compress := range compressors {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "meta.tar")
			if err := os.WriteFile(path, compress(raw), 0o644); err != nil {
				t.Fatal(err)
			}
			cur, err := Open(path, Options{Compression: name, BatchSize: 1})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer cur.Close()

			batches := collect(t, cur)
			if len(batches) != 2 {
				t.Fatalf("expected 2 batches, got %d (err=%v)", len(batches), cur.Err())
			}
			if got := string(batches[1].Members[0].Content); got != "publisher\nWiley\n" {
				t.Fatalf("content = %q", got)
			}
			if cur.BytesRead() == 0 {
				t.Fatal("expected archive bytes to be counted")
			}
			if err := cur.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			if err := cur.Close(); err != nil {
				t.Fatalf("second Close: %v", err)
			}
		})
	}
}

func TestOpenFailures(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.tar"), Options{}); !errors.Is(err, failure.ErrArchive) {
		t.Fatalf("missing archive: expected ErrArchive, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "plain.tar")
	if err := os.WriteFile(path, []byte("not gzip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, Options{Compression: config.CompressionGzip}); !errors.Is(err, failure.ErrArchive) {
		t.Fatalf("bad gzip: expected ErrArchive, got %v", err)
	}
}

func TestExtractRowCountMatchesNonEmptyCells(t *testing.T) {
	batch := Batch{Members: []Member{
		{Name: "a.csv", Content: []byte("id,publisher\n1,Acme [omid:1]\n2,\n3,  \n4,Wiley\n")},
		{Name: "b.csv", Content: []byte("publisher,id\n\"Springer, Berlin\",1\nSage,2\n")},
		{Name: "c.csv", Content: []byte("id,publisher\n1\n2,MIT Press\n")},
	}}
	frame, stats, err := NewExtractor(ExtractorOptions{}).Extract(context.Background(), batch)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := Frame{{"Acme [omid:1]"}, {"Wiley"}, {"Springer, Berlin"}, {"Sage"}, {"MIT Press"}}
	if diff := cmp.Diff(want, frame); diff != "" {
		t.Fatalf("frame mismatch (-want +got):\n%s", diff)
	}
	if stats != (BatchStats{Members: 3, Rows: 5}) {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestExtractSkipsBadMembers(t *testing.T) {
	batch := Batch{Ordinal: 4, Members: []Member{
		{Name: "missing-column.csv", Content: []byte("id,title\n1,x\n")},
		{Name: "bad-quote.csv", Content: []byte("publisher\n\"unterminated\n")},
		{Name: "big.csv", Size: 1 << 30, TooLarge: true},
		{Name: "broken.csv", Err: errors.New("unexpected EOF")},
		{Name: "empty.csv", Content: nil},
		{Name: "header-only.csv", Content: []byte("publisher\n")},
		{Name: "good.csv", Content: []byte("\ufeff publisher \nAcme\n")},
	}}
	frame, stats, err := NewExtractor(ExtractorOptions{}).Extract(context.Background(), batch)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff(Frame{{"Acme"}}, frame); diff != "" {
		t.Fatalf("frame mismatch (-want +got):\n%s", diff)
	}
	want := BatchStats{Members: 7, Skipped: 4, Empty: 2, Rows: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestExtractSkipsNonUTF8Members(t *testing.T) {
	batch := Batch{Members: []Member{
		{Name: "latin1.csv", Content: []byte("publisher\n\xc9ditions\nAcme\n")},
		{Name: "utf8.csv", Content: []byte("publisher\nÉditions\n")},
	}}
	frame, stats, err := NewExtractor(ExtractorOptions{}).Extract(context.Background(), batch)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff(Frame{{"Éditions"}}, frame); diff != "" {
		t.Fatalf("frame mismatch (-want +got):\n%s", diff)
	}
	if stats.Skipped != 1 || stats.Rows != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if hint := memberHint(batch.Members[0], errNotUTF8); !strings.Contains(hint, "UTF-8") {
		t.Fatalf("unexpected hint %q", hint)
	}
}

func TestExtractAllFailedReturnsNilFrame(t *testing.T) {
	batch := Batch{Members: []Member{
		{Name: "a.csv", Err: errors.New("boom")},
		{Name: "b.csv", Content: []byte("title\nx\n")},
	}}
	frame, stats, err := NewExtractor(ExtractorOptions{}).Extract(context.Background(), batch)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if frame != nil {
		t.Fatalf("expected nil frame, got %v", frame)
	}
	if stats.Skipped != 2 || stats.Rows != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestExtractDialectOptions(t *testing.T) {
	batch := Batch{Members: []Member{
		{Name: "a.tsv", Content: []byte("name\tpublisher\nx\tAcme \"Books\"\n")},
	}}
	ex := NewExtractor(ExtractorOptions{Column: "publisher", Delimiter: '\t', LazyQuotes: true})
	frame, _, err := ex.Extract(context.Background(), batch)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if diff := cmp.Diff(Frame{{"Acme \"Books\""}}, frame); diff != "" {
		t.Fatalf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch := Batch{Members: []Member{{Name: "a.csv", Content: []byte("publisher\nx\n")}}}
	_, _, err := NewExtractor(ExtractorOptions{}).Extract(ctx, batch)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
