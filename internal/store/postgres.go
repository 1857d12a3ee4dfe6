package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bioextract/internal/model"
)

// pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection. Outcome writes
// happen once per candidate, so they dominate.
var preparedStatements = map[string]string{
	"save_outcome": pgSaveOutcome,
	"get_run":      `SELECT ` + pgRunColumns + ` FROM runs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	p, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: p, closeFn: p.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	schema_name TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	total       INTEGER NOT NULL DEFAULT 0,
	succeeded   INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	cost        DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id       TEXT NOT NULL REFERENCES runs(id),
	candidate_id TEXT NOT NULL,
	succeeded    BOOLEAN NOT NULL,
	stage        TEXT,
	kind         TEXT,
	source_url   TEXT,
	source_rank  INTEGER,
	candidate    JSONB NOT NULL,
	record       JSONB,
	failure      JSONB,
	attempts     JSONB NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, candidate_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_outcomes_run_kind ON outcomes(run_id, kind);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = model.RunStatusRunning
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, schema_name, status, total, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Schema, string(run.Status), run.Total, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, total = $2, succeeded = $3, failed = $4, skipped = $5, cost = $6, finished_at = $7 WHERE id = $8`,
		string(run.Status), run.Total, run.Succeeded, run.Failed, run.Skipped, run.Cost, finished, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", run.ID)
	}
	run.FinishedAt = &finished
	return nil
}

const pgRunColumns = `id, schema_name, status, total, succeeded, failed, skipped, cost, created_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM runs WHERE id = $1`, runID)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	return r, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + pgRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

const pgSaveOutcome = `INSERT INTO outcomes (run_id, candidate_id, succeeded, stage, kind, source_url, source_rank,
	candidate, record, failure, attempts, started_at, finished_at)
 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
 ON CONFLICT (run_id, candidate_id) DO UPDATE SET
	succeeded = EXCLUDED.succeeded, stage = EXCLUDED.stage, kind = EXCLUDED.kind,
	source_url = EXCLUDED.source_url, source_rank = EXCLUDED.source_rank,
	candidate = EXCLUDED.candidate, record = EXCLUDED.record, failure = EXCLUDED.failure,
	attempts = EXCLUDED.attempts, started_at = EXCLUDED.started_at, finished_at = EXCLUDED.finished_at`

func (s *PostgresStore) SaveOutcome(ctx context.Context, o *model.PipelineOutcome) error {
	r, err := toRow(o)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, pgSaveOutcome,
		r.RunID, r.CandidateID, r.Succeeded, r.Stage, r.Kind, r.SourceURL, r.SourceRank,
		r.Candidate, r.Record, r.Failure, r.Attempts, r.StartedAt, r.FinishedAt,
	)
	return eris.Wrapf(err, "postgres: save outcome %s/%s", r.RunID, r.CandidateID)
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.PipelineOutcome, error) {
	query := `SELECT run_id, candidate_id, succeeded, candidate, record, failure, attempts, started_at, finished_at
		FROM outcomes WHERE run_id = $1`
	args := []any{filter.RunID}
	if len(filter.Kinds) > 0 {
		query += ` AND kind = ANY($2)`
		args = append(args, kindStrings(filter.Kinds))
	}
	query += ` ORDER BY finished_at, candidate_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var out []model.PipelineOutcome
	for rows.Next() {
		var r outcomeRow
		if err := rows.Scan(&r.RunID, &r.CandidateID, &r.Succeeded, &r.Candidate, &r.Record, &r.Failure,
			&r.Attempts, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		o, err := r.outcome()
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list outcomes iterate")
}

func (s *PostgresStore) FailureStats(ctx context.Context, runID string) ([]model.FailureStat, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM outcomes WHERE run_id = $1`, runID).Scan(&total); err != nil {
		return nil, eris.Wrap(err, "postgres: count outcomes")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT kind, COUNT(*) FROM outcomes WHERE run_id = $1 AND kind IS NOT NULL GROUP BY kind`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: failure stats")
	}
	defer rows.Close()

	counts := make(map[model.FailureKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure stat")
		}
		counts[model.FailureKind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: failure stats iterate")
	}
	return failureStats(counts, total), nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	err := row.Scan(&r.ID, &r.Schema, &status, &r.Total, &r.Succeeded, &r.Failed, &r.Skipped, &r.Cost,
		&r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}
