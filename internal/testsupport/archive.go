package testsupport

import (
	"archive/tar"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"metapub/internal/config"
)

// Entry is one tar entry. Dir entries ignore Body.
type Entry struct {
	Name string
	Body string
	Dir  bool
}

// CSVMember renders a CSV file with the given header and rows.
func CSVMember(t testing.TB, name string, header []string, rows ...[]string) Entry {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		t.Fatalf("csv header: %v", err)
	}
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("csv rows: %v", err)
	}
	return Entry{Name: name, Body: buf.String()}
}

// PublisherMember renders a CSV with id and publisher columns, one row per
// publisher value.
func PublisherMember(t testing.TB, name string, publishers ...string) Entry {
	t.Helper()
	rows := make([][]string, 0, len(publishers))
	for i, p := range publishers {
		rows = append(rows, []string{name + "-" + string(rune('a'+i%26)), p})
	}
	return CSVMember(t, name, []string{"id", "publisher"}, rows...)
}

// WriteArchive writes entries as a tar file at path, compressed as requested.
func WriteArchive(t testing.TB, path, compression string, entries ...Entry) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	var (
		out   io.Writer = f
		flush func() error
	)
	switch compression {
	case config.CompressionGzip:
		zw := gzip.NewWriter(f)
		out, flush = zw, zw.Close
	case config.CompressionZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			t.Fatalf("zstd writer: %v", err)
		}
		out, flush = zw, zw.Close
	case "", config.CompressionNone:
	default:
		t.Fatalf("test archives do not support %q", compression)
	}

	tw := tar.NewWriter(out)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Mode: 0o644, Typeflag: tar.TypeReg, Size: int64(len(e.Body))}
		if e.Dir {
			hdr = &tar.Header{Name: e.Name, Mode: 0o755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", e.Name, err)
		}
		if !e.Dir {
			if _, err := io.WriteString(tw, e.Body); err != nil {
				t.Fatalf("tar body %s: %v", e.Name, err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar: %v", err)
	}
	if flush != nil {
		if err := flush(); err != nil {
			t.Fatalf("close compressor: %v", err)
		}
	}
}
