package model

import (
	"encoding/json"
	"slices"
)

// CompanyFacts is the structured record produced by each fact fetcher and by
// the merge engine.
type CompanyFacts struct {
	CompanyName   string   `json:"companyName" yaml:"companyName" validate:"required"`
	Founded       string   `json:"founded" yaml:"founded"`
	Ticker        string   `json:"ticker" yaml:"ticker"`
	MarketCap     string   `json:"marketCap" yaml:"marketCap"`
	Employees     string   `json:"employees" yaml:"employees"`
	BusinessAreas []string `json:"businessAreas" yaml:"businessAreas"`
	Competitors   []string `json:"competitors" yaml:"competitors"`
}

// companyFactsJSON avoids MarshalJSON recursion.
type companyFactsJSON CompanyFacts

// MarshalJSON always emits the array fields as arrays, never null.
func (f CompanyFacts) MarshalJSON() ([]byte, error) {
	out := companyFactsJSON(f)
	if out.BusinessAreas == nil {
		out.BusinessAreas = []string{}
	}
	if out.Competitors == nil {
		out.Competitors = []string{}
	}
	return json.Marshal(out)
}

// Clone returns a deep copy so callers never alias another stage's slices.
func (f CompanyFacts) Clone() CompanyFacts {
	out := f
	out.BusinessAreas = cloneStrings(f.BusinessAreas)
	out.Competitors = cloneStrings(f.Competitors)
	return out
}

// Equal reports whether two records hold the same values. Nil and empty
// array fields compare equal.
func (f CompanyFacts) Equal(o CompanyFacts) bool {
	return f.CompanyName == o.CompanyName &&
		f.Founded == o.Founded &&
		f.Ticker == o.Ticker &&
		f.MarketCap == o.MarketCap &&
		f.Employees == o.Employees &&
		slices.Equal(f.BusinessAreas, o.BusinessAreas) &&
		slices.Equal(f.Competitors, o.Competitors)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Result is the caller-facing output of a successful run.
type Result struct {
	CompanyInfo    CompanyFacts `json:"companyInfo" yaml:"companyInfo"`
	Classification string       `json:"classification" yaml:"classification"`
}

// Backend providers as recorded in TokenUsage.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// TokenUsage tracks LLM token consumption for one backend call.
type TokenUsage struct {
	Provider     string `json:"provider"`
	Model        string `json:"model"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}
