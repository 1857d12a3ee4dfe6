// Package extract invokes the model on a prompt and strictly parses its
// answer into an ExtractionRecord.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bioextract/internal/cost"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/prompt"
	"github.com/sells-group/bioextract/internal/resilience"
)

var errEmptyCompletion = eris.New("llm: empty completion")

// TransportError is any failure to obtain a model answer, after retries.
type TransportError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Kind returns the failure kind reported for transport errors.
func (e *TransportError) Kind() model.FailureKind { return model.FailTransport }

// RawResponse is the unparsed model answer.
type RawResponse struct {
	Text     string
	Model    string
	Usage    model.TokenUsage
	Attempts int
}

// Settings are the decoding parameters sent with every request.
type Settings struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration // per attempt; zero means none
}

// Invoker sends prompts to an LLM with shared throttling, bounded retries
// and cost accounting.
type Invoker struct {
	llm      LLM
	settings Settings
	throttle *resilience.Throttle
	policy   resilience.Policy
	calc     *cost.Calculator
	budget   *cost.Budget
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithThrottle shares an LLM throttle across workers.
func WithThrottle(t *resilience.Throttle) InvokerOption {
	return func(i *Invoker) { i.throttle = t }
}

// WithPolicy sets the retry policy.
func WithPolicy(p resilience.Policy) InvokerOption {
	return func(i *Invoker) { i.policy = p }
}

// WithBudget prices usage with calc and charges it to budget.
func WithBudget(calc *cost.Calculator, budget *cost.Budget) InvokerOption {
	return func(i *Invoker) {
		i.calc = calc
		i.budget = budget
	}
}

// NewInvoker creates an Invoker.
func NewInvoker(llm LLM, settings Settings, opts ...InvokerOption) *Invoker {
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = 400
	}
	inv := &Invoker{
		llm:      llm,
		settings: settings,
		policy:   resilience.NewPolicy(0, 0, 0),
	}
	for _, o := range opts {
		o(inv)
	}
	return inv
}

// Invoke sends the prompt and returns the raw answer. Every error is a
// *TransportError.
func (inv *Invoker) Invoke(ctx context.Context, p *prompt.Prompt) (*RawResponse, error) {
	policy := inv.policy
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.RetryLogger(inv.llm.Name(), "complete")
	}

	attempts := 0
	res, err := resilience.DoVal(ctx, policy, func(ctx context.Context) (*CompletionResult, error) {
		attempts++
		return resilience.Call(ctx, inv.throttle, func(ctx context.Context) (*CompletionResult, error) {
			return inv.complete(ctx, p)
		})
	})
	if err != nil {
		return nil, &TransportError{Attempts: attempts, StatusCode: resilience.StatusCode(err), Err: err}
	}

	usage := model.TokenUsage{InputTokens: res.InputTokens, OutputTokens: res.OutputTokens}
	if inv.calc != nil {
		name := res.Model
		if !inv.calc.Known(name) {
			name = inv.settings.Model
		}
		usage.Cost = inv.calc.LLM(name, res.InputTokens, res.OutputTokens)
		inv.budget.Charge(usage.Cost)
	}

	zap.L().Debug("extract: completion received",
		zap.String("provider", inv.llm.Name()),
		zap.String("model", res.Model),
		zap.Int("attempts", attempts),
		zap.Int("input_tokens", res.InputTokens),
		zap.Int("output_tokens", res.OutputTokens),
	)

	return &RawResponse{Text: res.Text, Model: res.Model, Usage: usage, Attempts: attempts}, nil
}

func (inv *Invoker) complete(ctx context.Context, p *prompt.Prompt) (*CompletionResult, error) {
	if inv.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.settings.Timeout)
		defer cancel()
	}

	res, err := inv.llm.Complete(ctx, Completion{
		Model:       inv.settings.Model,
		System:      p.System,
		Prompt:      p.Text,
		Temperature: inv.settings.Temperature,
		MaxTokens:   inv.settings.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	if res == nil || strings.TrimSpace(res.Text) == "" {
		return nil, errEmptyCompletion
	}
	return res, nil
}
