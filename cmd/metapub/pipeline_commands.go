package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"metapub/internal/config"
	"metapub/internal/dedup"
	"metapub/internal/pipeline"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var archivePath, workDir, outputDir string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest the archive and produce the canonical dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := ctx.newPipeline(
				archiveOverride(archivePath),
				workDirOverride(workDir),
				outputDirOverride(outputDir),
			)
			if err != nil {
				return err
			}
			res, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s succeeded\n", res.RunID)
			printIngest(out, res.Ingest)
			printProcess(out, res.Process)
			return nil
		},
	}

	cmd.Flags().StringVar(&archivePath, "archive", "", "Archive to ingest (overrides paths.archive)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Working directory (overrides paths.work_dir)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (overrides paths.output_dir)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var archivePath, workDir string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Stream the archive into partitions and merge them",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := ctx.newPipeline(archiveOverride(archivePath), workDirOverride(workDir))
			if err != nil {
				return err
			}
			res, err := p.Ingest(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ingest %s succeeded\n", res.RunID)
			printIngest(out, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&archivePath, "archive", "", "Archive to ingest (overrides paths.archive)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Working directory (overrides paths.work_dir)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var inputPath, workDir, outputDir string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Decode and deduplicate the merged dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, _, err := ctx.newPipeline(workDirOverride(workDir), outputDirOverride(outputDir))
			if err != nil {
				return err
			}
			input := inputPath
			if input != "" {
				if input, err = config.ExpandPath(input); err != nil {
					return fmt.Errorf("--input: %w", err)
				}
			}
			res, err := p.Process(cmd.Context(), input)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Process %s succeeded\n", res.RunID)
			printProcess(out, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&inputPath, "input", "", "Merged dataset to process (default: the work directory's merged file)")
	cmd.Flags().StringVar(&workDir, "work-dir", "", "Working directory (overrides paths.work_dir)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Output directory (overrides paths.output_dir)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the result as JSON")
	return cmd
}

func archiveOverride(value string) pathOverride {
	return pathOverride{flag: "archive", value: value, apply: func(c *config.Config, v string) { c.Paths.Archive = v }}
}

func workDirOverride(value string) pathOverride {
	return pathOverride{flag: "work-dir", value: value, apply: func(c *config.Config, v string) { c.Paths.WorkDir = v }}
}

func outputDirOverride(value string) pathOverride {
	return pathOverride{flag: "output-dir", value: value, apply: func(c *config.Config, v string) { c.Paths.OutputDir = v }}
}

func printIngest(out io.Writer, res pipeline.IngestResult) {
	rows := [][]string{
		{"Batches", count(res.Batches)},
		{"Empty batches", count(res.EmptyBatches)},
		{"Members", count(res.Members)},
		{"Skipped members", count(res.SkippedMembers)},
		{"Empty members", count(res.EmptyMembers)},
		{"Ignored entries", count(res.SkippedEntries)},
		{"Rows", humanize.Comma(res.Rows)},
		{"Merged dataset", res.MergedPath},
	}
	fmt.Fprintln(out, renderTable([]string{"Ingest", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func printProcess(out io.Writer, res pipeline.ProcessResult) {
	rows := [][]string{
		{"Input rows", humanize.Comma(res.InputRows)},
		{"Duplicate rows", humanize.Comma(res.DuplicateRows)},
		{"Row errors", humanize.Comma(res.RowErrors)},
		{"Parsed", humanize.Comma(res.Parsed)},
	}
	for _, ps := range res.Passes {
		rows = append(rows, []string{passLabel(ps), count(ps.After)})
	}
	rows = append(rows,
		[]string{"Canonical rows", humanize.Comma(res.Canonical)},
		[]string{"Parquet", res.Outputs.Parquet},
	)
	if res.Outputs.CSV != "" {
		rows = append(rows, []string{"CSV", res.Outputs.CSV})
	}
	rows = append(rows, []string{"Literals", res.Outputs.Literals})
	fmt.Fprintln(out, renderTable([]string{"Process", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func passLabel(ps dedup.PassStats) string {
	return fmt.Sprintf("After %s (-%s)", ps.Pass, humanize.Comma(int64(ps.Removed)))
}

func count(n int) string {
	return humanize.Comma(int64(n))
}
