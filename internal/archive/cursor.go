package archive

import (
	"archive/tar"
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"metapub/internal/failure"
	"metapub/internal/logging"
)

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 1000

// Options controls member selection and batching.
type Options struct {
	Compression    string
	MemberPrefix   string
	MemberSuffix   string
	BatchSize      int
	MaxMemberBytes int64
	Logger         *slog.Logger
}

// Member is one included archive entry with its content already read.
type Member struct {
	Name string
	Size int64
	// Content is nil when TooLarge is set or Err is non-nil.
	Content  []byte
	TooLarge bool
	Err      error
}

// Batch is an ordered group of members. Ordinal is 0-based.
type Batch struct {
	Ordinal int
	Members []Member
}

// Cursor iterates over an archive in batches.
//
//	cur, err := archive.Open(path, opts)
//	defer cur.Close()
//	for cur.Next() {
//		process(cur.Batch())
//	}
//	if err := cur.Err(); err != nil { ... }
type Cursor struct {
	opts   Options
	logger *slog.Logger

	tr      *tar.Reader
	file    io.Closer
	release func() error
	counter *countingReader

	batch    Batch
	ordinal  int
	included int
	skipped  int
	err      error
	done     bool
	closed   bool
}

// Open opens the archive at path with the configured decompressor.
func Open(path string, opts Options) (*Cursor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, failure.Wrap(failure.ErrArchive, "ingest", "open archive", path, err)
	}
	counter := &countingReader{r: f}
	stream, release, err := newDecompressor(bufio.NewReaderSize(counter, 1<<20), opts.Compression)
	if err != nil {
		_ = f.Close()
		return nil, failure.Wrap(failure.ErrArchive, "ingest", "open decompressor", path, err)
	}
	cur := NewCursor(stream, opts)
	cur.file = f
	cur.release = release
	cur.counter = counter
	return cur, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// NewCursor reads an uncompressed tar stream from r. Close does not close r.
func NewCursor(r io.Reader, opts Options) *Cursor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Cursor{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "archive"),
		tr:     tar.NewReader(r),
	}
}

// Next collects the next batch. It returns false once the archive is
// exhausted, after a stream error, or after Close. A batch collected before a
// stream error is still returned; Err reports the error afterwards.
func (c *Cursor) Next() bool {
	if c.done || c.closed {
		return false
	}

	members := make([]Member, 0, c.opts.BatchSize)
	for len(members) < c.opts.BatchSize {
		hdr, err := c.tr.Next()
		if errors.Is(err, io.EOF) {
			c.done = true
			break
		}
		if err != nil {
			c.err = failure.Wrap(failure.ErrArchive, "ingest", "read archive", fmt.Sprintf("after %d members", c.included), err)
			c.done = true
			break
		}
		if !c.accept(hdr) {
			c.skipped++
			c.logger.Debug("archive entry skipped",
				logging.String(logging.FieldMember, hdr.Name),
				logging.String("type", string(hdr.Typeflag)),
			)
			continue
		}
		members = append(members, c.readMember(hdr))
		c.included++
	}

	if len(members) == 0 {
		return false
	}
	c.batch = Batch{Ordinal: c.ordinal, Members: members}
	c.ordinal++
	return true
}

func (c *Cursor) accept(hdr *tar.Header) bool {
	if hdr.Typeflag != tar.TypeReg {
		return false
	}
	return strings.HasPrefix(hdr.Name, c.opts.MemberPrefix) && strings.HasSuffix(hdr.Name, c.opts.MemberSuffix)
}

func (c *Cursor) readMember(hdr *tar.Header) Member {
	m := Member{Name: hdr.Name, Size: hdr.Size}
	limit := c.opts.MaxMemberBytes
	if limit > 0 && hdr.Size > limit {
		// The tar reader skips the unread body on the next call to Next.
		m.TooLarge = true
		return m
	}
	content, err := io.ReadAll(c.tr)
	if err != nil {
		m.Err = err
		return m
	}
	m.Content = content
	return m
}

// Batch returns the batch collected by the last successful Next.
func (c *Cursor) Batch() Batch {
	return c.batch
}

// Err returns the stream error that ended iteration, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Done reports whether the cursor will yield no further batches.
func (c *Cursor) Done() bool {
	return c.done || c.closed
}

// Included is the number of members placed into batches so far.
func (c *Cursor) Included() int {
	return c.included
}

// BytesRead reports how many bytes of the archive file have been consumed.
// It is zero for cursors built with NewCursor.
func (c *Cursor) BytesRead() int64 {
	if c.counter == nil {
		return 0
	}
	return c.counter.n
}

// Skipped is the number of entries that did not match the member convention.
func (c *Cursor) Skipped() int {
	return c.skipped
}

// Close releases the decompressor and the archive file. It is safe to call
// more than once.
func (c *Cursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.batch = Batch{}
	var errs []error
	if c.release != nil {
		errs = append(errs, c.release())
	}
	if c.file != nil {
		errs = append(errs, c.file.Close())
	}
	return errors.Join(errs...)
}
