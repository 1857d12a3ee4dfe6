package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bioextract/internal/model"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 4

// CandidateRunner produces the outcome for one candidate.
type CandidateRunner interface {
	Run(ctx context.Context, c model.Candidate) *model.PipelineOutcome
}

// OutcomeSink receives outcomes in completion order. Put is never called
// concurrently.
type OutcomeSink interface {
	Put(ctx context.Context, o *model.PipelineOutcome) error
}

// SinkFunc adapts a function to OutcomeSink.
type SinkFunc func(ctx context.Context, o *model.PipelineOutcome) error

func (f SinkFunc) Put(ctx context.Context, o *model.PipelineOutcome) error { return f(ctx, o) }

// Sinks fans an outcome out to several sinks, stopping at the first error.
type Sinks []OutcomeSink

func (s Sinks) Put(ctx context.Context, o *model.PipelineOutcome) error {
	for _, sink := range s {
		if err := sink.Put(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

// Summary counts the outcomes of a run.
type Summary struct {
	Total     int                       `json:"total"`
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	Skipped   int                       `json:"skipped"`
	ByKind    map[model.FailureKind]int `json:"by_kind"`
	Usage     model.TokenUsage          `json:"usage"`
	Cancelled bool                      `json:"cancelled"`
}

func (s *Summary) add(o *model.PipelineOutcome) {
	s.Usage.Add(o.Usage)
	if o.Succeeded() {
		s.Succeeded++
		return
	}
	s.Failed++
	s.ByKind[o.Failure.Kind]++
}

// Runner runs candidates on a bounded worker pool.
type Runner struct {
	coord            CandidateRunner
	runID            string
	concurrency      int
	candidateTimeout time.Duration
}

// NewRunner creates a Runner. Outcomes are stamped with runID.
func NewRunner(coord CandidateRunner, runID string, concurrency int, candidateTimeout time.Duration) *Runner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if candidateTimeout <= 0 {
		candidateTimeout = 10 * time.Minute
	}
	return &Runner{coord: coord, runID: runID, concurrency: concurrency, candidateTimeout: candidateTimeout}
}

// Run processes every candidate unless ctx is cancelled, in which case
// candidates already started finish on a detached context bounded by the
// candidate timeout and the rest are skipped. A candidate failure never
// stops the run; a sink error does and is returned.
func (r *Runner) Run(ctx context.Context, cands []model.Candidate, sink OutcomeSink) (*Summary, error) {
	summary := &Summary{Total: len(cands), ByKind: make(map[model.FailureKind]int)}

	zap.L().Info("pipeline: run starting",
		zap.String("run_id", r.runID),
		zap.Int("candidates", len(cands)),
		zap.Int("concurrency", r.concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var mu sync.Mutex
	skip := func(n int) {
		mu.Lock()
		summary.Skipped += n
		mu.Unlock()
	}

	for i, c := range cands {
		if gctx.Err() != nil {
			skip(len(cands) - i)
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				skip(1)
				return nil
			}

			cctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), r.candidateTimeout)
			defer cancel()

			out := r.coord.Run(cctx, c)
			out.RunID = r.runID

			mu.Lock()
			defer mu.Unlock()
			summary.add(out)
			logOutcome(out)
			if err := sink.Put(cctx, out); err != nil {
				return eris.Wrapf(err, "pipeline: deliver outcome for %s", c.ID)
			}
			return nil
		})
	}

	err := g.Wait()
	summary.Cancelled = ctx.Err() != nil

	fields := []zap.Field{
		zap.String("run_id", r.runID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Float64("cost_usd", summary.Usage.Cost),
	}
	for _, k := range model.AllFailureKinds() {
		if n := summary.ByKind[k]; n > 0 {
			fields = append(fields, zap.Int(string(k), n))
		}
	}
	if cause := context.Cause(ctx); cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	zap.L().Info("pipeline: run complete", fields...)

	return summary, err
}

func logOutcome(o *model.PipelineOutcome) {
	log := zap.L().With(
		zap.String("candidate", o.Candidate.ID),
		zap.Int("sources_tried", len(o.Attempts)),
		zap.Duration("elapsed", o.FinishedAt.Sub(o.StartedAt)),
	)
	if o.Succeeded() {
		log.Info("pipeline: record extracted",
			zap.String("url", o.Record.SourceURL),
			zap.Int("rank", o.Record.SourceRank),
			zap.Int("known_fields", o.Record.KnownCount()),
		)
		return
	}
	log.Info("pipeline: candidate failed",
		zap.String("stage", string(o.Failure.Stage)),
		zap.String("kind", string(o.Failure.Kind)),
	)
}
