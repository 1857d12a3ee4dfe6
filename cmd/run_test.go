//go:build !integration

package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/registry"
	"github.com/sells-group/bioextract/internal/store"
)

const caseRoster = "case_id,textdata\n" +
	"1,The board suspended the license of Dr. Roe for improper prescribing of opioids.\n" +
	"2,Dr. Poe voluntarily surrendered the license after a malpractice settlement.\n" +
	"3,The board reprimanded Dr. Moe for failing to keep adequate medical records.\n"

func writeRoster(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// setRunFlags sets the run command flags for one test and restores them.
func setRunFlags(t *testing.T, rosterPath, schema, out string) {
	t.Helper()
	runRoster, runSchema, runSchemaFile, runOutput, runFormat = rosterPath, schema, "", out, ""
	runLimit, runRandom, runSeed, runDryRun = 0, false, 1, false
	t.Cleanup(func() {
		runRoster, runSchema, runOutput, runDryRun = "", "", "", false
	})
}

func executeRunCmd(t *testing.T) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	runCmd.SetContext(context.Background())
	runCmd.SetOut(&buf)
	t.Cleanup(func() { runCmd.SetOut(nil) })
	err := runCmd.RunE(runCmd, nil)
	return buf.String(), err
}

func lastRun(t *testing.T) model.Run {
	t.Helper()
	st, err := store.NewSQLite(cfg.Store.DSN)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	runs, err := st.ListRuns(context.Background(), store.RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func TestRunCmd_DocumentRoster(t *testing.T) {
	srv, calls := completionServer(t, "```json\n{\"trouble_summary\": \"Disciplined for improper prescribing.\"}\n```")
	cfg = testConfig(t, srv.URL)

	out := filepath.Join(t.TempDir(), "cases.csv")
	setRunFlags(t, writeRoster(t, caseRoster), registry.SchemaSummary, out)

	report, err := executeRunCmd(t)
	require.NoError(t, err)

	assert.EqualValues(t, 3, calls.Load())
	assert.Contains(t, report, "Status:")
	assert.Contains(t, report, "complete")

	run := lastRun(t)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 3, run.Succeeded)
	assert.Zero(t, run.Failed)
	assert.Greater(t, run.Cost, 0.0)
	require.NotNil(t, run.FinishedAt)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Contains(t, rows[0], "trouble_summary")
	assert.Contains(t, rows[1], "Disciplined for improper prescribing.")
}

func TestRunCmd_ParseFailuresAreReported(t *testing.T) {
	srv, _ := completionServer(t, "I could not find anything.")
	cfg = testConfig(t, srv.URL)
	setRunFlags(t, writeRoster(t, caseRoster), registry.SchemaSummary, "")

	report, err := executeRunCmd(t)
	require.NoError(t, err, "candidate failures never fail the run")
	assert.Contains(t, report, "parse_error")
	assert.Contains(t, report, "100.0%")

	run := lastRun(t)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 3, run.Failed)
}

func TestRunCmd_BudgetStopsRun(t *testing.T) {
	srv, calls := completionServer(t, `{"trouble_summary": "Reprimanded."}`)
	cfg = testConfig(t, srv.URL)
	cfg.Pipeline.Concurrency = 1
	cfg.Budget.MaxUSD = 1e-9
	setRunFlags(t, writeRoster(t, caseRoster), registry.SchemaSummary, "")

	_, err := executeRunCmd(t)
	require.NoError(t, err)

	assert.EqualValues(t, 1, calls.Load())
	run := lastRun(t)
	assert.Equal(t, model.RunStatusCancelled, run.Status)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 2, run.Skipped)
}

func TestRunCmd_DryRun(t *testing.T) {
	cfg = testConfig(t, "")
	setRunFlags(t, writeRoster(t, caseRoster), "", "")
	runDryRun = true

	out, err := executeRunCmd(t)
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "1"`)
	assert.Equal(t, 3, strings.Count(out, `"document"`))

	_, statErr := os.Stat(cfg.Store.DSN)
	assert.True(t, os.IsNotExist(statErr), "dry run does not open the store")
}

func TestRunCmd_UnknownSchema(t *testing.T) {
	cfg = testConfig(t, "")
	setRunFlags(t, writeRoster(t, caseRoster), "no_such_schema", "")

	_, err := executeRunCmd(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown schema")
}

func TestRunCmd_MissingRoster(t *testing.T) {
	cfg = testConfig(t, "")
	setRunFlags(t, filepath.Join(t.TempDir(), "missing.csv"), "", "")

	_, err := executeRunCmd(t)
	assert.Error(t, err)
}

func TestRunCmd_Flags_Exist(t *testing.T) {
	for _, name := range []string{"roster", "schema", "schema-file", "out", "format", "limit", "random", "seed", "dry-run"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "run should have --%s", name)
	}
}

func TestFormatRunReport(t *testing.T) {
	var buf bytes.Buffer
	formatRunReport(&buf, &model.Run{
		ID: "run-1", Schema: "candidate_bio", Status: model.RunStatusCancelled,
		Total: 10, Succeeded: 6, Failed: 2, Skipped: 2, Cost: 0.0123,
		CreatedAt: time.Now(),
	}, []model.FailureStat{{Kind: model.FailFetch, Count: 2, Percent: 20}})

	out := buf.String()
	assert.Contains(t, out, "cancelled")
	assert.Contains(t, out, "Skipped:")
	assert.Contains(t, out, "$0.0123")
	assert.Contains(t, out, "fetch_error")
	assert.Contains(t, out, "20.0%")
}
