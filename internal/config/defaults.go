package config

const (
	defaultArchive            = "./meta_csv.tar"
	defaultWorkDir            = "./data"
	defaultOutputDir          = "./data/output"
	defaultLogDir             = "~/.local/share/metapub/logs"
	defaultCompression        = CompressionNone
	defaultMemberSuffix       = ".csv"
	defaultBatchSize          = 1000
	defaultMaxMemberBytes     = 64 << 20
	defaultColumn             = "publisher"
	defaultDelimiter          = ","
	defaultSecondarySeparator = "; "
	defaultBackoffThreshold   = 3
	defaultBackoffInitialMS   = 100
	defaultBackoffMaxMS       = 5000
	defaultMinFreeGiB         = 1
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Supported archive compressions. The compression is always configured
// explicitly; archives are never sniffed.
const (
	CompressionNone  = "none"
	CompressionGzip  = "gzip"
	CompressionBzip2 = "bzip2"
	CompressionZstd  = "zstd"
)

// Dedup pass keys and keep rules.
const (
	KeySecondary = "secondary"
	KeyPrimary   = "primary"
	KeyLiteral   = "literal"
	KeepFirst    = "first"
	KeepLast     = "last"
)

// DefaultDedupPasses returns the cascade order secondary, primary, literal.
func DefaultDedupPasses() []DedupPass {
	return []DedupPass{
		{Key: KeySecondary, Keep: KeepFirst},
		{Key: KeyPrimary, Keep: KeepFirst},
		{Key: KeyLiteral, Keep: KeepFirst},
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			Archive:   defaultArchive,
			WorkDir:   defaultWorkDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Archive: Archive{
			Compression:    defaultCompression,
			MemberSuffix:   defaultMemberSuffix,
			BatchSize:      defaultBatchSize,
			MaxMemberBytes: defaultMaxMemberBytes,
			Column:         defaultColumn,
			Delimiter:      defaultDelimiter,
		},
		Parse: Parse{
			SecondarySeparator:    defaultSecondarySeparator,
			ErrorBackoffThreshold: defaultBackoffThreshold,
			ErrorBackoffInitialMS: defaultBackoffInitialMS,
			ErrorBackoffMaxMS:     defaultBackoffMaxMS,
		},
		Dedup: Dedup{
			Passes: DefaultDedupPasses(),
		},
		Output: Output{
			WriteCSV: true,
		},
		Ledger: Ledger{
			Enabled: true,
		},
		Preflight: Preflight{
			MinFreeGiB: defaultMinFreeGiB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
