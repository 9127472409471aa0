package partition

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"metapub/internal/archive"
)

// Dataset is a read-only view over the partition files of one directory,
// ordered by batch ordinal.
type Dataset struct {
	dir   string
	paths []string
}

// OpenDataset lists the partitions in dir. Files whose name is not a batch
// ordinal are ignored. A missing dir is an empty dataset.
func OpenDataset(dir string) (*Dataset, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Dataset{dir: dir}, nil
		}
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	type indexed struct {
		ordinal int
		path    string
	}
	var found []indexed
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		base, ok := strings.CutSuffix(entry.Name(), ".parquet")
		if !ok {
			continue
		}
		ordinal, err := strconv.Atoi(base)
		if err != nil || ordinal < 0 {
			continue
		}
		found = append(found, indexed{ordinal: ordinal, path: filepath.Join(dir, entry.Name())})
	}
	slices.SortFunc(found, func(a, b indexed) int { return a.ordinal - b.ordinal })

	ds := &Dataset{dir: dir, paths: make([]string, 0, len(found))}
	for _, f := range found {
		ds.paths = append(ds.paths, f.path)
	}
	return ds, nil
}

// Paths returns the partition files in ordinal order.
func (d *Dataset) Paths() []string {
	return slices.Clone(d.paths)
}

// Len is the number of partitions.
func (d *Dataset) Len() int {
	return len(d.paths)
}

// NumRows sums the row counts recorded in partition metadata.
func (d *Dataset) NumRows() (int64, error) {
	var total int64
	for _, path := range d.paths {
		n, err := CountRows(path)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Scan streams every row of every partition, in ordinal order, in chunks of
// at most chunk rows.
func (d *Dataset) Scan(ctx context.Context, chunk int, fn func([]archive.Record) error) error {
	for _, path := range d.paths {
		if err := ScanFile(ctx, path, chunk, fn); err != nil {
			return err
		}
	}
	return nil
}
