package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"metapub/internal/config"
	"metapub/internal/failure"
	"metapub/internal/logging"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name    string
	Passed  bool
	Detail  string
	// Warning marks a failed check that does not block the run.
	Warning bool
}

// Scope selects which checks apply to a command.
type Scope int

const (
	// ScopeIngest needs the archive and the work directory.
	ScopeIngest Scope = 1 << iota
	// ScopeProcess needs the output directory.
	ScopeProcess
	// ScopeRun is ingest followed by process.
	ScopeRun = ScopeIngest | ScopeProcess
)

// RunAll executes the checks for scope. Directories are expected to exist;
// callers create them with Config.EnsureDirectories first.
func RunAll(_ context.Context, cfg *config.Config, scope Scope) []Result {
	if cfg == nil {
		return nil
	}
	var results []Result
	if scope&ScopeIngest != 0 {
		results = append(results,
			CheckArchive("Archive", cfg.Paths.Archive),
			CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
			CheckFreeSpace("Work directory space", cfg.Paths.WorkDir, cfg.Preflight.MinFreeGiB),
		)
	}
	if scope&ScopeProcess != 0 {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}
	return results
}

// Evaluate logs every result and returns a configuration error naming the
// blocking failures, if any.
func Evaluate(ctx context.Context, logger *slog.Logger, results []Result) error {
	logger = logging.NewComponentLogger(logger, "preflight")
	var blocking []string
	for _, r := range results {
		switch {
		case r.Passed:
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
		case r.Warning:
			logging.WarnWithContext(ctx, logger, "preflight check warning", "preflight_warning",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "free disk space or lower preflight.min_free_gib"),
				logging.String(logging.FieldImpact, "run may fail if the disk fills up"),
			)
		default:
			blocking = append(blocking, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(blocking) == 0 {
		return nil
	}
	return failure.Wrap(failure.ErrConfiguration, "preflight", "check", strings.Join(blocking, "; "), nil)
}
