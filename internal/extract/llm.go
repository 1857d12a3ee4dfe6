package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bioextract/internal/resilience"
	"github.com/sells-group/bioextract/pkg/anthropic"
	"github.com/sells-group/bioextract/pkg/openai"
)

// Completion is one single-turn model request.
type Completion struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// CompletionResult is the model answer with its token usage.
type CompletionResult struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// LLM is a text completion provider.
type LLM interface {
	Complete(ctx context.Context, req Completion) (*CompletionResult, error)
	Name() string
}

// OpenAI adapts the OpenAI chat completions client.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI creates an LLM backed by OpenAI chat completions.
func NewOpenAI(client openai.Client) *OpenAI {
	return &OpenAI{client: client}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) Complete(ctx context.Context, req Completion) (*CompletionResult, error) {
	temp := req.Temperature
	resp, err := o.client.Complete(ctx, openai.ChatRequest{
		Model:       req.Model,
		System:      req.System,
		User:        req.Prompt,
		Temperature: &temp,
		MaxTokens:   int64(req.MaxTokens),
	})
	if err != nil {
		return nil, providerError("openai", openai.StatusCode(err), err)
	}
	return &CompletionResult{
		Text:         resp.Content,
		Model:        resp.Model,
		InputTokens:  int(resp.PromptTokens),
		OutputTokens: int(resp.CompletionTokens),
	}, nil
}

// Anthropic adapts the Anthropic messages client.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates an LLM backed by Anthropic messages.
func NewAnthropic(client anthropic.Client) *Anthropic {
	return &Anthropic{client: client}
}

func (a *Anthropic) Name() string { return "anthropic" }

func (a *Anthropic) Complete(ctx context.Context, req Completion) (*CompletionResult, error) {
	temp := req.Temperature
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   int64(req.MaxTokens),
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, providerError("anthropic", anthropic.StatusCode(err), err)
	}
	return &CompletionResult{
		Text:         resp.Text(),
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// providerError keeps the HTTP status of SDK errors visible to the retry
// and throttle logic.
func providerError(service string, status int, err error) error {
	var te *resilience.TransientError
	if errors.As(err, &te) {
		return err
	}
	wrapped := eris.Wrapf(err, "%s: complete", service)
	if status > 0 && resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(wrapped, status)
	}
	return wrapped
}
