package partition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"metapub/internal/archive"
)

// DefaultChunkRows bounds how many rows a scan holds in memory at once.
const DefaultChunkRows = 8192

// newRecordWriter returns a zstd-compressed parquet writer of raw records.
func newRecordWriter(w io.Writer) *parquet.GenericWriter[archive.Record] {
	return parquet.NewGenericWriter[archive.Record](w, parquet.Compression(&parquet.Zstd))
}

// CountRows returns the row count stored in a parquet file's metadata.
func CountRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("open parquet %s: %w", path, err)
	}
	return pf.NumRows(), nil
}

// ScanFile reads the raw records of one parquet file in chunks of at most
// chunk rows. fn must not retain the slice.
func ScanFile(ctx context.Context, path string, chunk int, fn func([]archive.Record) error) error {
	if chunk <= 0 {
		chunk = DefaultChunkRows
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return fmt.Errorf("open parquet %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[archive.Record](pf)
	defer reader.Close()

	buf := make([]archive.Record, chunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := reader.Read(buf)
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read parquet %s: %w", path, err)
		}
	}
}
