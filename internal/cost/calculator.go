// Package cost prices API usage and enforces the run budget.
package cost

import (
	"github.com/sells-group/bioextract/internal/config"
)

// Rates holds pricing for every billed service.
type Rates struct {
	Models         map[string]ModelRate
	SearchPerQuery float64
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Input  float64
	Output float64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// LLM computes the cost of one completion. Unknown models cost 0.
func (c *Calculator) LLM(model string, input, output int) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// SearchQuery returns the flat cost of one search request.
func (c *Calculator) SearchQuery() float64 {
	return c.rates.SearchPerQuery
}

// Known reports whether the model has a rate.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates.Models[model]
	return ok
}

// DefaultRates returns the built-in pricing table.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"gpt-3.5-turbo-0125":         {Input: 0.50, Output: 1.50},
			"gpt-3.5-turbo":              {Input: 0.50, Output: 1.50},
			"gpt-4o-mini":                {Input: 0.15, Output: 0.60},
			"gpt-4o":                     {Input: 2.50, Output: 10.00},
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		SearchPerQuery: 0.005,
	}
}

// RatesFromConfig overlays configured prices on the built-in table.
func RatesFromConfig(cfg config.PricingConfig) Rates {
	rates := DefaultRates()
	for _, m := range cfg.Models {
		rates.Models[m.Model] = ModelRate{Input: m.Input, Output: m.Output}
	}
	if cfg.Search.PerQuery > 0 {
		rates.SearchPerQuery = cfg.Search.PerQuery
	}
	return rates
}
