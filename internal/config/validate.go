package config

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateDedup(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	return nil
}

func (c *Config) validateArchive() error {
	switch c.Archive.Compression {
	case CompressionNone, CompressionGzip, CompressionBzip2, CompressionZstd:
	default:
		return fmt.Errorf("archive.compression: unsupported value %q (use none, gzip, bzip2, or zstd)", c.Archive.Compression)
	}
	if c.Archive.BatchSize <= 0 {
		return errors.New("archive.batch_size must be positive")
	}
	if c.Archive.Column == "" {
		return errors.New("archive.column must be set")
	}
	if utf8.RuneCountInString(c.Archive.Delimiter) != 1 {
		return fmt.Errorf("archive.delimiter must be a single character, got %q", c.Archive.Delimiter)
	}
	r, _ := utf8.DecodeRuneInString(c.Archive.Delimiter)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return fmt.Errorf("archive.delimiter %q is not usable", c.Archive.Delimiter)
	}
	return nil
}

func (c *Config) validateDedup() error {
	seen := make(map[string]struct{}, len(c.Dedup.Passes))
	for i, pass := range c.Dedup.Passes {
		switch pass.Key {
		case KeySecondary, KeyPrimary, KeyLiteral:
		default:
			return fmt.Errorf("dedup.passes[%d].key: unsupported value %q (use secondary, primary, or literal)", i, pass.Key)
		}
		switch pass.Keep {
		case KeepFirst, KeepLast:
		default:
			return fmt.Errorf("dedup.passes[%d].keep: unsupported value %q (use first or last)", i, pass.Keep)
		}
		if _, dup := seen[pass.Key]; dup {
			return fmt.Errorf("dedup.passes: key %q listed more than once", pass.Key)
		}
		seen[pass.Key] = struct{}{}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
