package testsupport

import (
	"path/filepath"
	"testing"

	"metapub/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The ledger is disabled and the free-space check is off unless an option
// turns them back on.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.Archive = filepath.Join(base, "meta.tar")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Ledger.Enabled = false
	cfgVal.Preflight.MinFreeGiB = 0
	cfgVal.Parse.ErrorBackoffInitialMS = 1
	cfgVal.Parse.ErrorBackoffMaxMS = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithBatchSize overrides the archive batch size.
func WithBatchSize(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Archive.BatchSize = n
	}
}

// WithCompression sets the archive compression and renames the archive path
// to match.
func WithCompression(compression string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Archive.Compression = compression
		switch compression {
		case config.CompressionGzip:
			b.cfg.Paths.Archive = filepath.Join(b.baseDir, "meta.tar.gz")
		case config.CompressionZstd:
			b.cfg.Paths.Archive = filepath.Join(b.baseDir, "meta.tar.zst")
		}
	}
}

// WithMemberPrefix sets the member path convention.
func WithMemberPrefix(prefix string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Archive.MemberPrefix = prefix
	}
}

// WithLedger enables the run ledger inside the temp log directory.
func WithLedger() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Ledger.Enabled = true
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
