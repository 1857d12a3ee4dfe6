package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bioextract/internal/export"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/pipeline"
	"github.com/sells-group/bioextract/internal/registry"
	"github.com/sells-group/bioextract/internal/roster"
	"github.com/sells-group/bioextract/internal/store"
)

var (
	runRoster     string
	runSchema     string
	runSchemaFile string
	runOutput     string
	runFormat     string
	runLimit      int
	runRandom     bool
	runSeed       uint64
	runDryRun     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Extract a record for every candidate in a roster",
	Long: `Loads a CSV roster, resolves sources for each candidate, and writes one
record or one classified failure per candidate to the store.

Examples:
  # Dry run: parse the roster only
  bioextract run --roster candidates.csv --dry-run

  # First 20 candidates, also written to a CSV file
  bioextract run --roster candidates.csv --limit 20 --out bios.csv

  # Inline case documents with the violation schema
  bioextract run --roster cases.csv --schema violation --out cases.jsonl`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		schema, err := registry.Resolve(schemaName(runSchema), schemaPath(runSchemaFile))
		if err != nil {
			return err
		}

		cands, stats, err := roster.LoadFile(ctx, runRoster, roster.Options{
			Limit:  runLimit,
			Random: runRandom,
			Seed:   runSeed,
		})
		if err != nil {
			return err
		}
		zap.L().Info("roster loaded",
			zap.String("path", runRoster),
			zap.Int("candidates", len(cands)),
			zap.Int("rows", stats.Rows),
			zap.Int("invalid", stats.Invalid),
			zap.Int("duplicates", stats.Duplicates),
		)

		if runDryRun {
			return writeJSON(cmd.OutOrStdout(), cands)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run := &model.Run{Schema: schema.Name, Total: len(cands)}
		if err := st.CreateRun(ctx, run); err != nil {
			return err
		}

		if err := executeRun(ctx, st, run, schema, cands, runOutput, runFormat, false); err != nil {
			return err
		}
		return printRunReport(ctx, cmd.OutOrStdout(), st, run)
	},
}

func init() {
	runCmd.Flags().StringVar(&runRoster, "roster", "", "CSV roster of candidates (required)")
	runCmd.Flags().StringVar(&runSchema, "schema", "", "builtin schema name (default from pipeline.schema)")
	runCmd.Flags().StringVar(&runSchemaFile, "schema-file", "", "YAML or JSON schema file; overrides --schema")
	runCmd.Flags().StringVar(&runOutput, "out", "", "also export outcomes to this file")
	runCmd.Flags().StringVar(&runFormat, "format", "", "export format: jsonl or csv (default from --out extension)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "process at most this many candidates (0 = all)")
	runCmd.Flags().BoolVar(&runRandom, "random", false, "shuffle the roster before applying --limit")
	runCmd.Flags().Uint64Var(&runSeed, "seed", 1, "shuffle seed for --random")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "parse the roster and print candidates without running")
	_ = runCmd.MarkFlagRequired("roster")
	rootCmd.AddCommand(runCmd)
}

func schemaName(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Pipeline.Schema
}

func schemaPath(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Pipeline.SchemaFile
}

// executeRun drives cands through the pipeline, saving every outcome to st
// and optionally to an export file, then records the run's final status.
//
// With retry set, cands are stored failures of run being retried: each
// delivered outcome replaces one of them and skipped candidates keep theirs.
func executeRun(ctx context.Context, st store.Store, run *model.Run, schema *model.ExtractionSchema,
	cands []model.Candidate, out, format string, retry bool) error {
	env, err := initPipeline(ctx, schema)
	if err != nil {
		return markFailed(ctx, st, run, err)
	}
	defer env.Close()

	sinks := pipeline.Sinks{pipeline.SinkFunc(st.SaveOutcome)}
	var writer export.Writer
	if out != "" {
		f := export.FormatFor(out)
		if format != "" {
			if f, err = export.ParseFormat(format); err != nil {
				return markFailed(ctx, st, run, err)
			}
		}
		if writer, err = export.Create(out, f, schema); err != nil {
			return markFailed(ctx, st, run, err)
		}
		sinks = append(sinks, writer)
	}

	runner := pipeline.NewRunner(env.Coordinator, run.ID, cfg.Pipeline.Concurrency,
		time.Duration(cfg.Pipeline.CandidateTimeoutSecs)*time.Second)
	summary, runErr := runner.Run(env.Ctx, cands, sinks)

	if writer != nil {
		if err := writer.Close(); err != nil && runErr == nil {
			runErr = err
		}
	}

	applySummary(run, summary, retry)
	run.Cost += env.Budget.Spent()
	switch {
	case runErr != nil:
		run.Status = model.RunStatusFailed
	case summary.Cancelled:
		run.Status = model.RunStatusCancelled
	default:
		run.Status = model.RunStatusComplete
	}

	// Record the final status even when the run was interrupted.
	if err := st.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Error("finish run", zap.String("run_id", run.ID), zap.Error(err))
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		return eris.Wrapf(runErr, "run %s", run.ID)
	}
	return nil
}

// applySummary folds one pass into the run counters.
func applySummary(run *model.Run, s *pipeline.Summary, retry bool) {
	run.Succeeded += s.Succeeded
	if retry {
		// Delivered failures replace stored ones one for one.
		run.Failed = max(run.Failed-s.Succeeded, 0)
		return
	}
	run.Failed += s.Failed
	run.Skipped = s.Skipped
}

func markFailed(ctx context.Context, st store.Store, run *model.Run, cause error) error {
	run.Status = model.RunStatusFailed
	if err := st.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Error("finish run", zap.String("run_id", run.ID), zap.Error(err))
	}
	return cause
}

// printRunReport writes the run totals and the per-kind data-loss table.
func printRunReport(ctx context.Context, out io.Writer, st store.Store, run *model.Run) error {
	stats, err := st.FailureStats(context.WithoutCancel(ctx), run.ID)
	if err != nil {
		return err
	}
	formatRunReport(out, run, stats)
	return nil
}

func formatRunReport(out io.Writer, run *model.Run, stats []model.FailureStat) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", run.ID)
	_, _ = fmt.Fprintf(w, "Schema:\t%s\n", run.Schema)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", run.Status)
	_, _ = fmt.Fprintf(w, "Candidates:\t%d\n", run.Total)
	_, _ = fmt.Fprintf(w, "Records:\t%d\n", run.Succeeded)
	_, _ = fmt.Fprintf(w, "Failures:\t%d\n", run.Failed)
	if run.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", run.Skipped)
	}
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", run.Cost)
	for _, s := range stats {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\t(%.1f%%)\n", s.Kind, s.Count, s.Percent)
	}
	_ = w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
