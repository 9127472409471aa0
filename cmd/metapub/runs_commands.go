package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"metapub/internal/ledger"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(ctx, cmd, func(store *ledger.Store) error {
				runs, err := store.RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						run.Command,
						statusLabel(run.Status, colorize),
						humanize.Time(run.StartedAt),
						formatDuration(run.Duration()),
						humanize.Comma(run.RawRows),
						humanize.Comma(run.CanonicalRows),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Command", "Status", "Started", "Duration", "Rows", "Canonical"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print runs as JSON")

	cmd.AddCommand(newRunsShowCommand(ctx))
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(ctx, cmd, func(store *ledger.Store) error {
				run, err := findRun(cmd, store, args[0])
				if err != nil {
					return err
				}
				batches, err := store.Batches(cmd.Context(), run.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				details := [][]string{
					{"ID", run.ID},
					{"Command", run.Command},
					{"Status", statusLabel(run.Status, colorize)},
					{"Archive", run.ArchivePath},
					{"Started", run.StartedAt.Local().Format(time.DateTime)},
					{"Duration", formatDuration(run.Duration())},
					{"Batches", count(run.Batches)},
					{"Members", count(run.Members)},
					{"Skipped members", count(run.SkippedMembers)},
					{"Rows", humanize.Comma(run.RawRows)},
					{"Duplicate rows", humanize.Comma(run.DuplicateRows)},
					{"Row errors", humanize.Comma(run.RowErrors)},
					{"Canonical rows", humanize.Comma(run.CanonicalRows)},
				}
				if run.ErrorMessage != "" {
					details = append(details, []string{"Error", fmt.Sprintf("[%s] %s", run.ErrorKind, run.ErrorMessage)})
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, details, nil))

				if len(batches) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(batches))
				for _, b := range batches {
					rows = append(rows, []string{
						fmt.Sprintf("%d", b.Ordinal),
						count(b.Members),
						count(b.SkippedMembers),
						count(b.EmptyMembers),
						count(b.Rows),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Batch", "Members", "Skipped", "Empty", "Rows"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func withLedger(ctx *commandContext, cmd *cobra.Command, fn func(*ledger.Store) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	path := cfg.LedgerPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no run ledger at %s; enable ledger.enabled and run metapub first", path)
		}
		return fmt.Errorf("stat ledger: %w", err)
	}
	store, err := ledger.Open(cmd.Context(), path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// findRun resolves a full id or a unique prefix among recent runs.
func findRun(cmd *cobra.Command, store *ledger.Store, id string) (ledger.Run, error) {
	run, err := store.GetRun(cmd.Context(), id)
	if err == nil || !errors.Is(err, ledger.ErrRunNotFound) {
		return run, err
	}
	runs, err := store.RecentRuns(cmd.Context(), 500)
	if err != nil {
		return ledger.Run{}, err
	}
	var matches []ledger.Run
	for _, r := range runs {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return ledger.Run{}, fmt.Errorf("run %s: %w", id, ledger.ErrRunNotFound)
	case 1:
		return matches[0], nil
	default:
		return ledger.Run{}, fmt.Errorf("run id prefix %q is ambiguous (%d matches)", id, len(matches))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}
