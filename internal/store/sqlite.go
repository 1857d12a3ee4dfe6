package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bioextract/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Outcome writes are serialized by the runner; one connection avoids
	// SQLITE_BUSY between pool members.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	schema_name TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	cost        REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	candidate_id TEXT NOT NULL,
	succeeded    INTEGER NOT NULL,
	stage        TEXT,
	kind         TEXT,
	source_url   TEXT,
	source_rank  INTEGER,
	candidate    TEXT NOT NULL,
	record       TEXT,
	failure      TEXT,
	attempts     TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME NOT NULL,
	PRIMARY KEY (run_id, candidate_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_kind ON outcomes(run_id, kind);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, schema_name, status, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Schema, string(run.Status), run.Total, run.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert run")
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, total = ?, succeeded = ?, failed = ?, skipped = ?, cost = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Total, run.Succeeded, run.Failed, run.Skipped, run.Cost, finished, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	if err := checkRowsAffected(res, "run", run.ID); err != nil {
		return err
	}
	run.FinishedAt = &finished
	return nil
}

const sqliteRunColumns = `id, schema_name, status, total, succeeded, failed, skipped, cost, created_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, runID)
	r, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run %s", runID)
	}
	return r, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) SaveOutcome(ctx context.Context, o *model.PipelineOutcome) error {
	r, err := toRow(o)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (run_id, candidate_id, succeeded, stage, kind, source_url, source_rank,
			candidate, record, failure, attempts, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, candidate_id) DO UPDATE SET
			succeeded = excluded.succeeded, stage = excluded.stage, kind = excluded.kind,
			source_url = excluded.source_url, source_rank = excluded.source_rank,
			candidate = excluded.candidate, record = excluded.record, failure = excluded.failure,
			attempts = excluded.attempts, started_at = excluded.started_at, finished_at = excluded.finished_at`,
		r.RunID, r.CandidateID, r.Succeeded, r.Stage, r.Kind, r.SourceURL, r.SourceRank,
		string(r.Candidate), nullText(r.Record), nullText(r.Failure), string(r.Attempts), r.StartedAt, r.FinishedAt,
	)
	return eris.Wrapf(err, "sqlite: save outcome %s/%s", r.RunID, r.CandidateID)
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.PipelineOutcome, error) {
	query := `SELECT run_id, candidate_id, succeeded, candidate, record, failure, attempts, started_at, finished_at
		FROM outcomes WHERE run_id = ?`
	args := []any{filter.RunID}
	if len(filter.Kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(`, ?`, len(filter.Kinds)-1) + `)`
		for _, k := range kindStrings(filter.Kinds) {
			args = append(args, k)
		}
	}
	query += ` ORDER BY finished_at, candidate_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.PipelineOutcome
	for rows.Next() {
		var (
			r                   outcomeRow
			candidate, attempts string
			record, failure     sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.CandidateID, &r.Succeeded, &candidate, &record, &failure,
			&attempts, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		r.Candidate, r.Attempts = []byte(candidate), []byte(attempts)
		if record.Valid {
			r.Record = []byte(record.String)
		}
		if failure.Valid {
			r.Failure = []byte(failure.String)
		}
		o, err := r.outcome()
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list outcomes iterate")
}

func (s *SQLiteStore) FailureStats(ctx context.Context, runID string) ([]model.FailureStat, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outcomes WHERE run_id = ?`, runID).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "sqlite: count outcomes")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, COUNT(*) FROM outcomes WHERE run_id = ? AND kind IS NOT NULL GROUP BY kind`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: failure stats")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.FailureKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure stat")
		}
		counts[model.FailureKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: failure stats iterate")
	}
	return failureStats(counts, total), nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func nullText(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var r model.Run
	var finished sql.NullTime
	err := row.Scan(&r.ID, &r.Schema, &r.Status, &r.Total, &r.Succeeded, &r.Failed, &r.Skipped, &r.Cost,
		&r.CreatedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}
