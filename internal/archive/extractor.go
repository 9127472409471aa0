package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"metapub/internal/logging"
)

// DefaultColumn is the projected header name.
const DefaultColumn = "publisher"

// Record is one non-empty publisher cell.
type Record struct {
	Publisher string `parquet:"publisher"`
}

// Frame is the records extracted from one batch.
type Frame []Record

// BatchStats summarizes one extraction.
type BatchStats struct {
	Members int
	Skipped int
	Empty   int
	Rows    int
}

// ExtractorOptions configures CSV parsing and projection.
type ExtractorOptions struct {
	Column     string
	Delimiter  rune
	LazyQuotes bool
	Logger     *slog.Logger
}

// Extractor projects one column out of CSV members.
type Extractor struct {
	column     string
	delimiter  rune
	lazyQuotes bool
	logger     *slog.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(opts ExtractorOptions) *Extractor {
	column := strings.TrimSpace(opts.Column)
	if column == "" {
		column = DefaultColumn
	}
	delimiter := opts.Delimiter
	if delimiter == 0 {
		delimiter = ','
	}
	return &Extractor{
		column:     column,
		delimiter:  delimiter,
		lazyQuotes: opts.LazyQuotes,
		logger:     logging.NewComponentLogger(opts.Logger, "extractor"),
	}
}

var (
	// errColumnMissing marks a member whose header lacks the projected column.
	errColumnMissing = errors.New("column not found in header")
	// errNotUTF8 marks a member whose bytes are not valid UTF-8.
	errNotUTF8 = errors.New("member is not valid utf-8")
)

// Extract projects every member of batch. Members that cannot be read or
// parsed are skipped with a warning. The returned Frame is nil when no member
// contributed a row. The error is non-nil only when ctx is done.
func (e *Extractor) Extract(ctx context.Context, batch Batch) (Frame, BatchStats, error) {
	stats := BatchStats{Members: len(batch.Members)}
	var frame Frame

	for _, member := range batch.Members {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		attrs := []logging.Attr{
			logging.Int(logging.FieldBatch, batch.Ordinal),
			logging.String(logging.FieldMember, member.Name),
		}

		rows, err := e.extractMember(member)
		if err != nil {
			stats.Skipped++
			logging.WarnWithContext(ctx, e.logger, "member skipped", "member_skipped",
				append(attrs,
					logging.Error(err),
					logging.String(logging.FieldErrorHint, memberHint(member, err)),
					logging.String(logging.FieldImpact, "rows from this member are not ingested"),
				)...,
			)
			continue
		}
		if len(rows) == 0 {
			stats.Empty++
			e.logger.Debug("member has no publisher values", logging.Args(attrs...)...)
			continue
		}
		frame = append(frame, rows...)
	}

	stats.Rows = len(frame)
	if len(frame) == 0 {
		return nil, stats, nil
	}
	return frame, stats, nil
}

func (e *Extractor) extractMember(member Member) (Frame, error) {
	switch {
	case member.Err != nil:
		return nil, fmt.Errorf("read member: %w", member.Err)
	case member.TooLarge:
		return nil, fmt.Errorf("member is %d bytes, over the configured limit", member.Size)
	}

	if !utf8.Valid(member.Content) {
		return nil, errNotUTF8
	}

	r := csv.NewReader(bytes.NewReader(member.Content))
	r.Comma = e.delimiter
	r.LazyQuotes = e.lazyQuotes
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	idx := columnIndex(header, e.column)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %q", errColumnMissing, e.column)
	}

	var rows Frame
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse rows: %w", err)
		}
		if idx >= len(record) {
			continue
		}
		cell := record[idx]
		if strings.TrimSpace(cell) == "" {
			continue
		}
		rows = append(rows, Record{Publisher: strings.Clone(cell)})
	}
	return rows, nil
}

func columnIndex(header []string, column string) int {
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if name == column {
			return i
		}
	}
	return -1
}

func memberHint(member Member, err error) string {
	switch {
	case member.TooLarge:
		return "raise archive.max_member_bytes if members this large are expected"
	case errors.Is(err, errNotUTF8):
		return "re-encode the member as UTF-8"
	case errors.Is(err, errColumnMissing):
		return "check archive.column against the member header"
	case member.Err != nil:
		return "archive may be truncated or corrupt"
	default:
		return "check the member's CSV dialect (archive.delimiter, archive.lazy_quotes)"
	}
}
