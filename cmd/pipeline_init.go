package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bioextract/internal/cost"
	"github.com/sells-group/bioextract/internal/extract"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/pipeline"
	"github.com/sells-group/bioextract/internal/prompt"
	"github.com/sells-group/bioextract/internal/resilience"
	"github.com/sells-group/bioextract/internal/resolve"
	"github.com/sells-group/bioextract/internal/scrape"
	anthropicpkg "github.com/sells-group/bioextract/pkg/anthropic"
	"github.com/sells-group/bioextract/pkg/google"
	"github.com/sells-group/bioextract/pkg/jina"
	openaipkg "github.com/sells-group/bioextract/pkg/openai"
)

// pipelineEnv holds the coordinator and the run-scoped budget built for one
// schema. Ctx is cancelled when the budget is exhausted.
type pipelineEnv struct {
	Ctx         context.Context
	Coordinator *pipeline.Coordinator
	Budget      *cost.Budget
	Schema      *model.ExtractionSchema
}

// Close releases the budget context.
func (pe *pipelineEnv) Close() {
	if pe.Budget != nil {
		pe.Budget.Release()
	}
}

// initPipeline builds the API clients, shared throttles and the
// coordinator for schema. Callers should defer env.Close().
func initPipeline(ctx context.Context, schema *model.ExtractionSchema) (*pipelineEnv, error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, err
	}

	parser, err := extract.NewParser(schema)
	if err != nil {
		return nil, err
	}

	provider, err := initSearchProvider()
	if err != nil {
		return nil, err
	}
	llm, err := initLLM()
	if err != nil {
		return nil, err
	}

	calc := cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))
	if !calc.Known(cfg.LLM.Model) {
		zap.L().Warn("no pricing for model, cost will read zero", zap.String("model", cfg.LLM.Model))
	}
	budgetCtx, budget := cost.NewBudget(ctx, cfg.Budget.MaxUSD)

	// One throttle per external service, shared by every worker.
	searchThrottle := resilience.NewThrottle("search", cfg.Search.RatePerSec, cfg.Search.Burst, cfg.Search.Concurrency)
	llmThrottle := resilience.NewThrottle("llm", cfg.LLM.RatePerSec, cfg.LLM.Burst, cfg.LLM.Concurrency)

	resolver := resolve.NewResolver(provider,
		resolve.WithThrottle(searchThrottle),
		resolve.WithPolicy(resilience.PolicyFromSeconds(cfg.Pipeline.RetryCount, cfg.Search.BackoffSecs, cfg.Search.MaxBackoffSecs)),
		resolve.WithMaxSources(cfg.Pipeline.MaxSourcesPerCandidate),
		resolve.WithFilter(resolve.NewFilter(cfg.Search.Exclude)),
		resolve.WithQueryHook(func() { budget.Charge(calc.SearchQuery()) }),
	)

	var reader jina.Client
	if cfg.Fetch.JinaFallback {
		reader = jina.NewClient(cfg.Fetch.JinaKey, jina.WithBaseURL(cfg.Fetch.JinaURL))
	}
	fetcher := scrape.NewFetcherFromConfig(cfg.Fetch, reader)

	invoker := extract.NewInvoker(llm,
		extract.Settings{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		},
		extract.WithThrottle(llmThrottle),
		extract.WithPolicy(resilience.PolicyFromSeconds(cfg.Pipeline.RetryCount, cfg.Pipeline.RetryBackoffSecs, cfg.Pipeline.RetryMaxBackoffSecs)),
		extract.WithBudget(calc, budget),
	)

	coord := pipeline.NewCoordinator(pipeline.Deps{
		Resolver:   resolver,
		Fetcher:    fetcher,
		Builder:    prompt.NewBuilder(cfg.Pipeline.MaxPromptLength, cfg.LLM.System),
		Invoker:    invoker,
		Parser:     parser,
		Schema:     schema,
		FocusWords: cfg.Pipeline.FocusWords,
	})

	zap.L().Info("pipeline initialized",
		zap.String("schema", schema.Name),
		zap.String("search", provider.Name()),
		zap.String("llm", llm.Name()),
		zap.String("model", cfg.LLM.Model),
		zap.Float64("budget_usd", cfg.Budget.MaxUSD),
	)

	return &pipelineEnv{Ctx: budgetCtx, Coordinator: coord, Budget: budget, Schema: schema}, nil
}

func initSearchProvider() (resolve.SearchProvider, error) {
	switch cfg.Search.Provider {
	case "google":
		opts := []google.Option{
			google.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Search.TimeoutSecs) * time.Second}),
		}
		if cfg.Search.GoogleURL != "" {
			opts = append(opts, google.WithBaseURL(cfg.Search.GoogleURL))
		}
		client := google.NewClient(cfg.Search.GoogleKey, cfg.Search.GoogleCX, opts...)
		return resolve.NewGoogleProvider(client, cfg.Search.Language, cfg.Search.Country), nil
	case "jina":
		opts := []jina.Option{
			jina.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Search.TimeoutSecs) * time.Second}),
		}
		if cfg.Search.JinaURL != "" {
			opts = append(opts, jina.WithSearchBaseURL(cfg.Search.JinaURL))
		}
		return resolve.NewJinaProvider(jina.NewClient(cfg.Search.JinaKey, opts...), cfg.Search.Site), nil
	default:
		return nil, eris.Errorf("unsupported search provider: %s", cfg.Search.Provider)
	}
}

func initLLM() (extract.LLM, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return extract.NewOpenAI(openaipkg.NewClient(cfg.LLM.OpenAIKey, openaipkg.WithBaseURL(cfg.LLM.OpenAIURL))), nil
	case "anthropic":
		var opts []anthropicpkg.Option
		if cfg.LLM.AnthropicURL != "" {
			opts = append(opts, anthropicpkg.WithBaseURL(cfg.LLM.AnthropicURL))
		}
		return extract.NewAnthropic(anthropicpkg.NewClient(cfg.LLM.AnthropicKey, opts...)), nil
	default:
		return nil, eris.Errorf("unsupported llm provider: %s", cfg.LLM.Provider)
	}
}
