package pipeline

import (
	"context"
	"time"

	"github.com/sells-group/bioextract/internal/extract"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/prompt"
	"github.com/sells-group/bioextract/internal/scrape"
)

// Resolver discovers ranked sources for a candidate.
type Resolver interface {
	Resolve(ctx context.Context, c model.Candidate) ([]model.SourceCandidate, error)
}

// Fetcher retrieves and normalizes one source.
type Fetcher interface {
	Fetch(ctx context.Context, src model.SourceCandidate) (*model.NormalizedContent, error)
}

// PromptBuilder renders the extraction prompt within the length limit.
type PromptBuilder interface {
	Build(c model.Candidate, content *model.NormalizedContent, schema *model.ExtractionSchema) (*prompt.Prompt, error)
}

// Invoker sends a prompt to the model.
type Invoker interface {
	Invoke(ctx context.Context, p *prompt.Prompt) (*extract.RawResponse, error)
}

// Parser turns a raw answer into a record.
type Parser interface {
	Parse(raw string) (*model.ExtractionRecord, error)
}

// Deps are the stage implementations a Coordinator drives.
type Deps struct {
	Resolver Resolver
	Fetcher  Fetcher
	Builder  PromptBuilder
	Invoker  Invoker
	Parser   Parser
	Schema   *model.ExtractionSchema

	// FocusWords narrows web text to a window around the candidate's
	// name. Zero sends the whole text.
	FocusWords int
}

// Coordinator produces exactly one outcome per candidate by trying its
// sources in rank order until one yields a record.
type Coordinator struct {
	deps Deps
	now  func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{deps: deps, now: time.Now}
}

// Run drives one candidate to a terminal state. It never returns nil.
func (co *Coordinator) Run(ctx context.Context, c model.Candidate) *model.PipelineOutcome {
	m := newMachine(c, co.now)

	m.to(model.StateResolving)
	sources, err := co.deps.Resolver.Resolve(ctx, c)
	if err != nil {
		return m.fail(&model.FailureReport{
			CandidateID: c.ID,
			Stage:       model.StageResolve,
			Kind:        Classify(model.StageResolve, err),
			Message:     err.Error(),
		})
	}
	if len(sources) == 0 {
		return m.fail(&model.FailureReport{
			CandidateID: c.ID,
			Stage:       model.StageResolve,
			Kind:        model.FailSearchEmpty,
			Message:     "search returned no usable sources",
		})
	}

	var (
		last  *model.FailureReport
		usage model.TokenUsage
	)
	for _, src := range sources {
		m.to(model.StateTryingSource)

		rec, report := co.try(ctx, c, src, &usage)
		if report == nil {
			rec.CandidateID = c.ID
			rec.SourceURL = src.URL
			rec.SourceRank = src.Rank
			rec.Usage = usage
			out := m.succeed(src, rec)
			out.Usage = usage
			return out
		}
		m.trialFailed(src, report)
		last = report
	}
	// Calls made for sources that later failed are still billed.
	out := m.fail(last)
	out.Usage = usage
	return out
}

// try runs fetch, prompt, invoke and parse for one source. Token usage is
// accumulated even when parsing fails.
func (co *Coordinator) try(ctx context.Context, c model.Candidate, src model.SourceCandidate, usage *model.TokenUsage) (*model.ExtractionRecord, *model.FailureReport) {
	failure := func(stage model.Stage, err error) *model.FailureReport {
		return &model.FailureReport{
			CandidateID: c.ID,
			Stage:       stage,
			Kind:        Classify(stage, err),
			URL:         src.URL,
			Rank:        src.Rank,
			Message:     err.Error(),
		}
	}

	content, err := co.deps.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, failure(model.StageFetch, err)
	}
	content, err = scrape.Focus(content, c, co.deps.FocusWords, src.Rank)
	if err != nil {
		return nil, failure(model.StageFetch, err)
	}

	p, err := co.deps.Builder.Build(c, content, co.deps.Schema)
	if err != nil {
		return nil, failure(model.StagePrompt, err)
	}

	raw, err := co.deps.Invoker.Invoke(ctx, p)
	if err != nil {
		return nil, failure(model.StageInvoke, err)
	}
	usage.Add(raw.Usage)

	rec, err := co.deps.Parser.Parse(raw.Text)
	if err != nil {
		return nil, failure(model.StageParse, err)
	}
	if !rec.Complete(co.deps.Schema) {
		return nil, failure(model.StageParse, &extract.ParseError{Reason: "record is missing schema fields"})
	}
	return rec, nil
}
