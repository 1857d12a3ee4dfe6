// Package openai wraps the OpenAI chat completions API for single-turn
// extraction prompts.
package openai

import (
	"context"
	"errors"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rotisserie/eris"
)

// Client is the chat completion surface the pipeline uses.
type Client interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single system + user exchange.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature *float64
	MaxTokens   int64
}

// ChatResponse is the first choice of a completion.
type ChatResponse struct {
	ID               string
	Model            string
	Content          string
	FinishReason     string
	PromptTokens     int64
	CompletionTokens int64
}

type config struct {
	opts []option.RequestOption
}

// Option configures the client.
type Option func(*config)

// WithBaseURL points the client at a compatible API host.
func WithBaseURL(url string) Option {
	return func(c *config) {
		if url != "" {
			c.opts = append(c.opts, option.WithBaseURL(url))
		}
	}
}

type sdkClient struct {
	client sdk.Client
}

// NewClient creates a client backed by the official SDK. SDK-level retries
// are disabled; callers own the retry budget.
func NewClient(apiKey string, opts ...Option) Client {
	cfg := &config{opts: []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}}
	for _, o := range opts {
		o(cfg)
	}
	return &sdkClient{client: sdk.NewClient(cfg.opts...)}
}

func (c *sdkClient) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, sdk.SystemMessage(req.System))
	}
	messages = append(messages, sdk.UserMessage(req.User))

	params := sdk.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openai: chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("openai: no choices in response")
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		ID:               resp.ID,
		Model:            resp.Model,
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// StatusCode returns the HTTP status of an API error, or 0.
func StatusCode(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
