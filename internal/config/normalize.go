package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnv()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeArchive()
	c.normalizeParse()
	c.normalizeDedup()
	c.normalizeLogging()
	if c.Preflight.MinFreeGiB < 0 {
		c.Preflight.MinFreeGiB = 0
	}
	return nil
}

// applyEnv lets METAPUB_* variables (including ones loaded from .env)
// override file values.
func (c *Config) applyEnv() {
	overrides := []struct {
		name   string
		target *string
	}{
		{"METAPUB_ARCHIVE", &c.Paths.Archive},
		{"METAPUB_WORK_DIR", &c.Paths.WorkDir},
		{"METAPUB_OUTPUT_DIR", &c.Paths.OutputDir},
		{"METAPUB_LOG_DIR", &c.Paths.LogDir},
		{"METAPUB_LOG_LEVEL", &c.Logging.Level},
	}
	for _, o := range overrides {
		if value, ok := os.LookupEnv(o.name); ok && strings.TrimSpace(value) != "" {
			*o.target = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.Archive, err = expandPath(strings.TrimSpace(c.Paths.Archive)); err != nil {
		return fmt.Errorf("paths.archive: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Ledger.Path, err = expandPath(strings.TrimSpace(c.Ledger.Path)); err != nil {
		return fmt.Errorf("ledger.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeArchive() {
	c.Archive.Compression = strings.ToLower(strings.TrimSpace(c.Archive.Compression))
	switch c.Archive.Compression {
	case "", "tar":
		c.Archive.Compression = CompressionNone
	case "gz", "tgz":
		c.Archive.Compression = CompressionGzip
	case "bz2":
		c.Archive.Compression = CompressionBzip2
	case "zst":
		c.Archive.Compression = CompressionZstd
	}
	c.Archive.MemberPrefix = strings.TrimPrefix(strings.TrimSpace(c.Archive.MemberPrefix), "./")
	c.Archive.MemberSuffix = strings.TrimSpace(c.Archive.MemberSuffix)
	c.Archive.Column = strings.TrimSpace(c.Archive.Column)
	if c.Archive.Delimiter == "" {
		c.Archive.Delimiter = defaultDelimiter
	}
	if c.Archive.Delimiter == `\t` {
		c.Archive.Delimiter = "\t"
	}
	if c.Archive.MaxMemberBytes <= 0 {
		c.Archive.MaxMemberBytes = defaultMaxMemberBytes
	}
}

func (c *Config) normalizeParse() {
	if c.Parse.SecondarySeparator == "" {
		c.Parse.SecondarySeparator = defaultSecondarySeparator
	}
	if c.Parse.ErrorBackoffThreshold <= 0 {
		c.Parse.ErrorBackoffThreshold = defaultBackoffThreshold
	}
	if c.Parse.ErrorBackoffInitialMS < 0 {
		c.Parse.ErrorBackoffInitialMS = 0
	}
	if c.Parse.ErrorBackoffMaxMS < c.Parse.ErrorBackoffInitialMS {
		c.Parse.ErrorBackoffMaxMS = c.Parse.ErrorBackoffInitialMS
	}
}

func (c *Config) normalizeDedup() {
	if len(c.Dedup.Passes) == 0 {
		c.Dedup.Passes = DefaultDedupPasses()
		return
	}
	for i := range c.Dedup.Passes {
		pass := &c.Dedup.Passes[i]
		pass.Key = strings.ToLower(strings.TrimSpace(pass.Key))
		pass.Keep = strings.ToLower(strings.TrimSpace(pass.Keep))
		if pass.Keep == "" {
			pass.Keep = KeepFirst
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
