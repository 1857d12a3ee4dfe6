package pipeline

import (
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/bioextract/internal/model"
)

var transitions = map[model.State][]model.State{
	model.StatePending:        {model.StateResolving},
	model.StateResolving:      {model.StateTryingSource, model.StateDoneFailure},
	model.StateTryingSource:   {model.StateFetchFailed, model.StatePromptRejected, model.StateInvokeFailed, model.StateParseFailed, model.StateDoneRecord},
	model.StateFetchFailed:    {model.StateTryingSource, model.StateDoneFailure},
	model.StatePromptRejected: {model.StateTryingSource, model.StateDoneFailure},
	model.StateInvokeFailed:   {model.StateTryingSource, model.StateDoneFailure},
	model.StateParseFailed:    {model.StateTryingSource, model.StateDoneFailure},
}

// failedStates is the trial state entered on a failure in each stage.
var failedStates = map[model.Stage]model.State{
	model.StageFetch:  model.StateFetchFailed,
	model.StagePrompt: model.StatePromptRejected,
	model.StageInvoke: model.StateInvokeFailed,
	model.StageParse:  model.StateParseFailed,
}

// machine tracks one candidate's state and builds its outcome.
type machine struct {
	state   model.State
	outcome *model.PipelineOutcome
	log     *zap.Logger
	now     func() time.Time
}

func newMachine(c model.Candidate, now func() time.Time) *machine {
	return &machine{
		state:   model.StatePending,
		outcome: &model.PipelineOutcome{Candidate: c, StartedAt: now(), Attempts: []model.Attempt{}},
		log:     zap.L().With(zap.String("candidate", c.ID)),
		now:     now,
	}
}

func (m *machine) to(next model.State) {
	if !slices.Contains(transitions[m.state], next) {
		m.log.DPanic("pipeline: illegal transition",
			zap.String("from", string(m.state)),
			zap.String("to", string(next)),
		)
	}
	m.log.Debug("pipeline: transition",
		zap.String("from", string(m.state)),
		zap.String("to", string(next)),
	)
	m.state = next
}

// trialFailed moves a source trial into the failure state for report.Stage.
func (m *machine) trialFailed(src model.SourceCandidate, report *model.FailureReport) {
	m.to(failedStates[report.Stage])
	m.outcome.Attempts = append(m.outcome.Attempts, model.Attempt{
		Rank: src.Rank, URL: src.URL, State: m.state, Kind: report.Kind,
	})
	m.log.Info("pipeline: source failed",
		zap.Int("rank", src.Rank),
		zap.String("url", src.URL),
		zap.String("stage", string(report.Stage)),
		zap.String("kind", string(report.Kind)),
		zap.String("error", report.Message),
	)
}

func (m *machine) succeed(src model.SourceCandidate, rec *model.ExtractionRecord) *model.PipelineOutcome {
	m.to(model.StateDoneRecord)
	m.outcome.Attempts = append(m.outcome.Attempts, model.Attempt{Rank: src.Rank, URL: src.URL, State: m.state})
	rec.Attempts = len(m.outcome.Attempts)
	m.outcome.Record = rec
	m.outcome.FinishedAt = m.now()
	return m.outcome
}

func (m *machine) fail(report *model.FailureReport) *model.PipelineOutcome {
	m.to(model.StateDoneFailure)
	m.outcome.Failure = report
	m.outcome.FinishedAt = m.now()
	return m.outcome
}
