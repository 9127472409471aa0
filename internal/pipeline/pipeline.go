package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"metapub/internal/config"
	"metapub/internal/failure"
	"metapub/internal/ledger"
	"metapub/internal/logging"
	"metapub/internal/partition"
	"metapub/internal/preflight"
)

// Pipeline runs the ingest and process stages for one configuration.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New constructs a Pipeline. A nil logger discards output.
func New(cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logging.NewComponentLogger(logger, "pipeline")}
}

// DefaultMergedPath is where ingest leaves the merged dataset.
func (p *Pipeline) DefaultMergedPath() string {
	return filepath.Join(p.cfg.MergedDir(), partition.MergedFileName)
}

// runState carries per-run context into the stages.
type runState struct {
	id      string
	command string
	logger  *slog.Logger
	ledger  *ledger.Store
	summary ledger.Summary
	started time.Time
	// progress is shared by the stages of a run and reset as each starts.
	progress *logging.ProgressSampler
}

// recordBatch stores a batch outcome. Ledger failures are logged only.
func (rs *runState) recordBatch(ctx context.Context, b ledger.Batch) {
	if rs.ledger == nil {
		return
	}
	if err := rs.ledger.RecordBatch(ctx, rs.id, b); err != nil {
		logging.WarnWithContext(ctx, rs.logger, "ledger batch not recorded", "ledger_write_failed",
			logging.Int(logging.FieldBatch, b.Ordinal),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run history is incomplete"),
		)
	}
}

// execute wraps a stage body with directory setup, preflight, locking and
// ledger bookkeeping.
func (p *Pipeline) execute(ctx context.Context, command string, scope preflight.Scope, extra []preflight.Result, body func(context.Context, *runState) error) (string, error) {
	if err := p.cfg.EnsureDirectories(); err != nil {
		return "", failure.Wrap(failure.ErrConfiguration, command, "ensure directories", "", err)
	}
	results := append(preflight.RunAll(ctx, p.cfg, scope), extra...)
	if err := preflight.Evaluate(ctx, p.logger, results); err != nil {
		return "", err
	}

	lock := flock.New(p.cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return "", failure.Wrap(failure.ErrIO, command, "acquire lock", p.cfg.LockPath(), err)
	}
	if !ok {
		return "", failure.Wrap(failure.ErrLocked, command, "acquire lock", "another metapub run is using "+p.cfg.Paths.WorkDir, nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			p.logger.Warn("failed to release work directory lock", logging.Error(err))
		}
	}()

	rs := &runState{id: uuid.NewString(), command: command, started: time.Now(), progress: newProgressSampler()}
	rs.logger = p.logger.With(logging.String(logging.FieldRunID, rs.id))
	rs.ledger = p.openLedger(ctx, rs)
	if rs.ledger != nil {
		defer rs.ledger.Close()
	}

	rs.logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("command", command),
		logging.String("work_dir", p.cfg.Paths.WorkDir),
	)

	runErr := body(ctx, rs)
	p.finish(ctx, rs, runErr)
	return rs.id, runErr
}

func (p *Pipeline) openLedger(ctx context.Context, rs *runState) *ledger.Store {
	if !p.cfg.Ledger.Enabled {
		return nil
	}
	store, err := ledger.Open(ctx, p.cfg.LedgerPath())
	if err == nil {
		_, err = store.StartRun(ctx, rs.id, rs.command, p.cfg.Paths.Archive)
		if err != nil {
			_ = store.Close()
		}
	}
	if err != nil {
		logging.WarnWithContext(ctx, rs.logger, "run ledger unavailable", "ledger_unavailable",
			logging.String("path", p.cfg.LedgerPath()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "set ledger.enabled = false or fix the ledger path"),
			logging.String(logging.FieldImpact, "this run is not recorded in the ledger"),
		)
		return nil
	}
	rs.logger.Debug("run ledger opened", logging.String("path", store.Path()))
	return store
}

func (p *Pipeline) finish(ctx context.Context, rs *runState, runErr error) {
	sum := rs.summary
	switch {
	case runErr == nil:
		sum.Status = ledger.StatusSucceeded
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		sum.Status = ledger.StatusCanceled
	default:
		sum.Status = ledger.StatusFailed
	}
	if runErr != nil {
		sum.ErrorKind = failure.Kind(runErr)
		sum.ErrorMessage = runErr.Error()
		logging.ErrorWithContext(ctx, rs.logger, "run failed", "run_failed",
			logging.String("status", string(sum.Status)),
			logging.String("error_kind", sum.ErrorKind),
			logging.Duration("elapsed", time.Since(rs.started)),
			logging.Error(runErr),
		)
	} else {
		rs.logger.Info("run completed",
			logging.String(logging.FieldEventType, "run_complete"),
			logging.Int64("canonical_rows", sum.CanonicalRows),
			logging.Duration("elapsed", time.Since(rs.started)),
		)
	}

	if rs.ledger == nil {
		return
	}
	// The run context may already be canceled; the final status still needs
	// to land.
	if err := rs.ledger.FinishRun(context.WithoutCancel(ctx), rs.id, sum); err != nil {
		logging.WarnWithContext(ctx, rs.logger, "ledger run not finalized", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run shows as running in history"),
		)
	}
}
