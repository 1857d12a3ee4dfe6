// Package store persists runs and per-candidate outcomes.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bioextract/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// OutcomeFilter selects outcomes of one run. Empty Kinds returns every
// outcome; otherwise only failures of those kinds.
type OutcomeFilter struct {
	RunID string
	Kinds []model.FailureKind
}

// Store defines the persistence interface for extraction runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Outcomes
	SaveOutcome(ctx context.Context, o *model.PipelineOutcome) error
	ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.PipelineOutcome, error)
	FailureStats(ctx context.Context, runID string) ([]model.FailureStat, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// outcomeRow is the flattened storage form of a PipelineOutcome.
type outcomeRow struct {
	RunID       string
	CandidateID string
	Succeeded   bool
	Stage       *string
	Kind        *string
	SourceURL   *string
	SourceRank  *int
	Candidate   []byte
	Record      []byte
	Failure     []byte
	Attempts    []byte
	StartedAt   time.Time
	FinishedAt  time.Time
}

func toRow(o *model.PipelineOutcome) (*outcomeRow, error) {
	if o.RunID == "" {
		return nil, eris.New("store: outcome has no run id")
	}
	if (o.Record == nil) == (o.Failure == nil) {
		return nil, eris.Errorf("store: outcome for %s must carry exactly one of record and failure", o.Candidate.ID)
	}

	r := &outcomeRow{
		RunID:       o.RunID,
		CandidateID: o.Candidate.ID,
		Succeeded:   o.Succeeded(),
		StartedAt:   o.StartedAt.UTC(),
		FinishedAt:  o.FinishedAt.UTC(),
	}

	var err error
	if r.Candidate, err = json.Marshal(o.Candidate); err != nil {
		return nil, eris.Wrap(err, "store: marshal candidate")
	}
	if r.Attempts, err = json.Marshal(o.Attempts); err != nil {
		return nil, eris.Wrap(err, "store: marshal attempts")
	}
	if o.Record != nil {
		if r.Record, err = json.Marshal(o.Record); err != nil {
			return nil, eris.Wrap(err, "store: marshal record")
		}
		r.SourceURL, r.SourceRank = &o.Record.SourceURL, &o.Record.SourceRank
	}
	if o.Failure != nil {
		if r.Failure, err = json.Marshal(o.Failure); err != nil {
			return nil, eris.Wrap(err, "store: marshal failure")
		}
		stage, kind := string(o.Failure.Stage), string(o.Failure.Kind)
		r.Stage, r.Kind = &stage, &kind
		if o.Failure.URL != "" {
			r.SourceURL, r.SourceRank = &o.Failure.URL, &o.Failure.Rank
		}
	}
	return r, nil
}

func (r *outcomeRow) outcome() (*model.PipelineOutcome, error) {
	o := &model.PipelineOutcome{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if err := json.Unmarshal(r.Candidate, &o.Candidate); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal candidate")
	}
	if len(r.Attempts) > 0 {
		if err := json.Unmarshal(r.Attempts, &o.Attempts); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal attempts")
		}
	}
	if len(r.Record) > 0 {
		o.Record = &model.ExtractionRecord{}
		if err := json.Unmarshal(r.Record, o.Record); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal record")
		}
	}
	if len(r.Failure) > 0 {
		o.Failure = &model.FailureReport{}
		if err := json.Unmarshal(r.Failure, o.Failure); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal failure")
		}
	}
	return o, nil
}

// failureStats turns per-kind counts into percentages of all outcomes, in
// reporting order, omitting kinds that never occurred.
func failureStats(counts map[model.FailureKind]int, total int) []model.FailureStat {
	out := []model.FailureStat{}
	for _, k := range model.AllFailureKinds() {
		n := counts[k]
		if n == 0 {
			continue
		}
		pct := 0.0
		if total > 0 {
			pct = float64(n) * 100 / float64(total)
		}
		out = append(out, model.FailureStat{Kind: k, Count: n, Percent: pct})
	}
	return out
}

func kindStrings(kinds []model.FailureKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
