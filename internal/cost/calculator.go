// Package cost prices backend token usage.
package cost

import "github.com/sells-group/company-aggregator/internal/model"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    map[string]ModelRate `yaml:"openai" mapstructure:"openai"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Usage prices one backend call. Local models and unknown models cost zero.
func (c *Calculator) Usage(u model.TokenUsage) float64 {
	var table map[string]ModelRate
	switch u.Provider {
	case model.ProviderAnthropic:
		table = c.rates.Anthropic
	case model.ProviderOpenAI:
		table = c.rates.OpenAI
	default:
		return 0
	}
	rate, ok := table[u.Model]
	if !ok {
		return 0
	}
	return (float64(u.InputTokens)/1e6)*rate.Input + (float64(u.OutputTokens)/1e6)*rate.Output
}

// Total prices a set of calls.
func (c *Calculator) Total(usage []model.TokenUsage) float64 {
	var sum float64
	for _, u := range usage {
		sum += c.Usage(u)
	}
	return sum
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-sonnet-4-20250514":  {Input: 3.00, Output: 15.00},
			"claude-haiku-4-5-20251001": {Input: 0.80, Output: 4.00},
		},
		OpenAI: map[string]ModelRate{
			"gpt-4o-mini":   {Input: 0.15, Output: 0.60},
			"gpt-4o":        {Input: 2.50, Output: 10.00},
			"gpt-3.5-turbo": {Input: 0.50, Output: 1.50},
		},
	}
}
