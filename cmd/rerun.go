package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/registry"
	"github.com/sells-group/bioextract/internal/store"
)

var (
	rerunID         string
	rerunKinds      []string
	rerunSchemaFile string
	rerunOutput     string
	rerunFormat     string
)

var rerunCmd = &cobra.Command{
	Use:   "rerun",
	Short: "Re-process the failed candidates of a previous run",
	Long: `Selects the candidates of a stored run whose outcome failed with one of the
given kinds and runs them again under the same run id. New outcomes replace
the old ones, so the run's failure table reflects the latest attempt.

Examples:
  # Retry prompts that were too long after raising pipeline.max_prompt_length
  bioextract rerun --run 3f2a... --kinds prompt_too_long

  # Retry every failure
  bioextract rerun --run 3f2a...`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		kinds, err := parseKinds(rerunKinds)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, rerunID)
		if err != nil {
			return eris.Wrap(err, "rerun")
		}

		schema, err := registry.Resolve(run.Schema, schemaPath(rerunSchemaFile))
		if err != nil {
			return err
		}
		if schema.Name != run.Schema {
			return eris.Errorf("rerun: schema file defines %q but run %s used %q", schema.Name, run.ID, run.Schema)
		}

		outcomes, err := st.ListOutcomes(ctx, store.OutcomeFilter{RunID: run.ID, Kinds: kinds})
		if err != nil {
			return err
		}
		if len(outcomes) == 0 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No failed candidates to rerun.")
			return nil
		}

		cands := make([]model.Candidate, len(outcomes))
		for i, o := range outcomes {
			cands[i] = o.Candidate
		}
		zap.L().Info("rerun: retrying failed candidates",
			zap.String("run_id", run.ID),
			zap.Int("candidates", len(cands)),
			zap.Strings("kinds", rerunKinds),
		)

		run.Status = model.RunStatusRunning

		if err := executeRun(ctx, st, run, schema, cands, rerunOutput, rerunFormat, true); err != nil {
			return err
		}
		return printRunReport(ctx, cmd.OutOrStdout(), st, run)
	},
}

func init() {
	rerunCmd.Flags().StringVar(&rerunID, "run", "", "run id to retry (required)")
	rerunCmd.Flags().StringSliceVar(&rerunKinds, "kinds", nil,
		"failure kinds to retry, comma separated (default all): "+strings.Join(kindNames(), ", "))
	rerunCmd.Flags().StringVar(&rerunSchemaFile, "schema-file", "", "schema file, required when the run used one")
	rerunCmd.Flags().StringVar(&rerunOutput, "out", "", "also export the new outcomes to this file")
	rerunCmd.Flags().StringVar(&rerunFormat, "format", "", "export format: jsonl or csv (default from --out extension)")
	_ = rerunCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(rerunCmd)
}

// parseKinds converts flag values to failure kinds. No values selects every
// kind.
func parseKinds(values []string) ([]model.FailureKind, error) {
	if len(values) == 0 {
		return model.AllFailureKinds(), nil
	}
	out := make([]model.FailureKind, 0, len(values))
	for _, v := range values {
		k, ok := model.ParseFailureKind(strings.TrimSpace(v))
		if !ok {
			return nil, eris.Errorf("unknown failure kind %q (want one of %s)", v, strings.Join(kindNames(), ", "))
		}
		out = append(out, k)
	}
	return out, nil
}

func kindNames() []string {
	kinds := model.AllFailureKinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
