package pipeline

import (
	"context"

	"metapub/internal/preflight"
)

// RunResult combines both stages of a full run.
type RunResult struct {
	RunID   string
	Ingest  IngestResult
	Process ProcessResult
}

// Run ingests the archive and processes the merged dataset under a single
// lock and ledger entry.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	var res RunResult
	id, err := p.execute(ctx, "run", preflight.ScopeRun, nil, func(ctx context.Context, rs *runState) error {
		var err error
		res.Ingest, err = p.ingest(ctx, rs)
		if err != nil {
			return err
		}
		res.Process, err = p.process(ctx, rs, res.Ingest.MergedPath)
		return err
	})
	res.RunID = id
	res.Ingest.RunID = id
	res.Process.RunID = id
	return res, err
}
