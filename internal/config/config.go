package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains input and directory configuration.
type Paths struct {
	Archive   string `toml:"archive"`
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Archive describes how the input archive is read and which members count.
type Archive struct {
	Compression    string `toml:"compression"`
	MemberPrefix   string `toml:"member_prefix"`
	MemberSuffix   string `toml:"member_suffix"`
	BatchSize      int    `toml:"batch_size"`
	MaxMemberBytes int64  `toml:"max_member_bytes"`
	Column         string `toml:"column"`
	Delimiter      string `toml:"delimiter"`
	LazyQuotes     bool   `toml:"lazy_quotes"`
}

// Parse contains identifier decoding settings.
type Parse struct {
	SecondarySeparator string `toml:"secondary_separator"`
	// ErrorBackoffThreshold is the number of consecutive row failures
	// tolerated before the processing loop starts pausing.
	ErrorBackoffThreshold int `toml:"error_backoff_threshold"`
	ErrorBackoffInitialMS int `toml:"error_backoff_initial_ms"`
	ErrorBackoffMaxMS     int `toml:"error_backoff_max_ms"`
}

// DedupPass is one step of the uniqueness cascade.
type DedupPass struct {
	Key  string `toml:"key"`
	Keep string `toml:"keep"`
}

// Dedup holds the ordered uniqueness cascade.
type Dedup struct {
	Passes []DedupPass `toml:"passes"`
}

// Output controls which canonical artifacts are written.
type Output struct {
	WriteCSV bool `toml:"write_csv"`
}

// Ledger controls the SQLite run ledger.
type Ledger struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Preflight contains thresholds for startup checks.
type Preflight struct {
	MinFreeGiB float64 `toml:"min_free_gib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for metapub.
//
// Configuration sections by subsystem:
//   - Paths: archive location plus work, output, and log directories
//   - Archive: decompression, member selection, batching, CSV dialect
//   - Parse: identifier decoding and row error backoff
//   - Dedup: ordered uniqueness passes
//   - Output: optional canonical artifacts
//   - Ledger: SQLite run history
//   - Preflight: free space threshold
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Archive   Archive   `toml:"archive"`
	Parse     Parse     `toml:"parse"`
	Dedup     Dedup     `toml:"dedup"`
	Output    Output    `toml:"output"`
	Ledger    Ledger    `toml:"ledger"`
	Preflight Preflight `toml:"preflight"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/metapub/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	// A missing .env is the common case.
	_ = godotenv.Load()

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("metapub.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// PartitionDir is where per-batch partition files are written.
func (c *Config) PartitionDir() string {
	return filepath.Join(c.Paths.WorkDir, "partitions")
}

// MergedDir holds the consolidated dataset produced by the merger.
func (c *Config) MergedDir() string {
	return filepath.Join(c.Paths.WorkDir, "merged")
}

// LockPath is the single-writer lock guarding the work directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, ".metapub.lock")
}

// LedgerPath returns the SQLite ledger location.
func (c *Config) LedgerPath() string {
	if strings.TrimSpace(c.Ledger.Path) != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.Paths.LogDir, "ledger.db")
}

// EnsureDirectories creates the work, output, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
