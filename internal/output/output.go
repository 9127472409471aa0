package output

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/parquet-go/parquet-go"

	"metapub/internal/failure"
	"metapub/internal/fileutil"
	"metapub/internal/logging"
	"metapub/internal/publisher"
)

// Output file names inside the output directory.
const (
	ParquetFileName  = "processed_data.parquet"
	CSVFileName      = "processed_data.csv"
	LiteralsFileName = "publishers.txt"
)

// Header is the column order of the canonical dataset.
var Header = []string{"row_id", "publisher", "pub_omid", "pub_cr"}

// Row is the persisted form of one canonical record.
type Row struct {
	RowID     int64  `parquet:"row_id"`
	Publisher string `parquet:"publisher"`
	PubOmid   string `parquet:"pub_omid"`
	PubCr     string `parquet:"pub_cr"`
}

// RowOf renders a parsed record.
func RowOf(rec publisher.ParsedRecord) Row {
	return Row{
		RowID:     rec.RowID,
		Publisher: rec.Literal,
		PubOmid:   rec.Primary.String(),
		PubCr:     rec.Secondary.String(),
	}
}

// Record restores the parsed form; identifiers equal to the row's own id come
// back as sentinels.
func (r Row) Record() publisher.ParsedRecord {
	return publisher.ParsedRecord{
		RowID:     r.RowID,
		Literal:   r.Publisher,
		Primary:   publisher.Restore(r.PubOmid, r.RowID),
		Secondary: publisher.Restore(r.PubCr, r.RowID),
	}
}

// Paths lists the files written by Writer.Write.
type Paths struct {
	Parquet  string
	CSV      string
	Literals string
}

// Writer writes canonical outputs into one directory.
type Writer struct {
	dir      string
	writeCSV bool
	logger   *slog.Logger
}

// NewWriter builds a Writer. CSV output is written only when writeCSV is set.
func NewWriter(dir string, writeCSV bool, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, writeCSV: writeCSV, logger: logging.NewComponentLogger(logger, "output")}
}

// Write persists records, which should already be ordered by row id.
func (w *Writer) Write(ctx context.Context, records []publisher.ParsedRecord) (Paths, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return Paths{}, failure.Wrap(failure.ErrIO, "output", "create output dir", w.dir, err)
	}
	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, RowOf(rec))
	}

	paths := Paths{
		Parquet:  filepath.Join(w.dir, ParquetFileName),
		Literals: filepath.Join(w.dir, LiteralsFileName),
	}
	if err := WriteParquet(paths.Parquet, rows); err != nil {
		return Paths{}, failure.Wrap(failure.ErrIO, "output", "write parquet", paths.Parquet, err)
	}
	if err := ctx.Err(); err != nil {
		return Paths{}, err
	}
	if w.writeCSV {
		paths.CSV = filepath.Join(w.dir, CSVFileName)
		if err := WriteCSV(paths.CSV, rows); err != nil {
			return Paths{}, failure.Wrap(failure.ErrIO, "output", "write csv", paths.CSV, err)
		}
	}
	literals := DistinctLiterals(records)
	if err := WriteLiterals(paths.Literals, literals); err != nil {
		return Paths{}, failure.Wrap(failure.ErrIO, "output", "write literal list", paths.Literals, err)
	}

	attrs := []logging.Attr{
		logging.Int("rows", len(rows)),
		logging.Int("literals", len(literals)),
		logging.String("parquet", paths.Parquet),
	}
	if size, err := fileutil.FileSize(paths.Parquet); err == nil {
		attrs = append(attrs, logging.String("parquet_size", humanize.IBytes(uint64(size))))
	}
	w.logger.Info("canonical dataset written", logging.Args(attrs...)...)
	return paths, nil
}

// WriteParquet writes rows to path.
func WriteParquet(path string, rows []Row) error {
	return fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		pw := parquet.NewGenericWriter[Row](out, parquet.Compression(&parquet.Zstd))
		if _, err := pw.Write(rows); err != nil {
			return errors.Join(err, pw.Close())
		}
		return pw.Close()
	})
}

// WriteCSV writes rows to path with a header line.
func WriteCSV(path string, rows []Row) error {
	return fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write(Header); err != nil {
			return err
		}
		record := make([]string, len(Header))
		for _, row := range rows {
			record[0] = strconv.FormatInt(row.RowID, 10)
			record[1] = row.Publisher
			record[2] = row.PubOmid
			record[3] = row.PubCr
			if err := cw.Write(record); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// DistinctLiterals returns the sorted distinct non-empty literals.
func DistinctLiterals(records []publisher.ParsedRecord) []string {
	literals := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Literal != "" {
			literals = append(literals, rec.Literal)
		}
	}
	slices.Sort(literals)
	return slices.Compact(literals)
}

// WriteLiterals writes one literal per line.
func WriteLiterals(path string, literals []string) error {
	return fileutil.WriteAtomic(path, 0o644, func(out io.Writer) error {
		for _, lit := range literals {
			if _, err := io.WriteString(out, lit+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadCanonical reads a canonical parquet file back into parsed records.
func ReadCanonical(path string) ([]publisher.ParsedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", path, err)
	}
	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	records := make([]publisher.ParsedRecord, 0, pf.NumRows())
	buf := make([]Row, 1024)
	for {
		n, err := reader.Read(buf)
		for _, row := range buf[:n] {
			records = append(records, row.Record())
		}
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet %s: %w", path, err)
		}
	}
}
