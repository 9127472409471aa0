package archive

import (
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"metapub/internal/config"
)

// newDecompressor wraps r for the configured compression. The returned close
// func releases decoder resources; it does not close r.
func newDecompressor(r io.Reader, compression string) (io.Reader, func() error, error) {
	noop := func() error { return nil }
	switch compression {
	case "", config.CompressionNone:
		return r, noop, nil
	case config.CompressionGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip header: %w", err)
		}
		return zr, zr.Close, nil
	case config.CompressionBzip2:
		return bzip2.NewReader(r), noop, nil
	case config.CompressionZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, fmt.Errorf("zstd decoder: %w", err)
		}
		return zr, func() error { zr.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported compression %q", compression)
	}
}
