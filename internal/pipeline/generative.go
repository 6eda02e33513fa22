package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-aggregator/internal/extract"
	"github.com/sells-group/company-aggregator/internal/model"
)

// generativeAttempts is how many model merges are tried before falling
// back to MergeFacts.
const generativeAttempts = 2

// GenerativeMerger asks a model to merge the records and checks the answer
// with VerifyMerge. Rejected or failed answers fall back to MergeFacts, so
// the result is always complete.
type GenerativeMerger struct {
	client *extract.Client[model.CompanyFacts]
}

// NewGenerativeMerger builds a merger on backend, usually the local model.
func NewGenerativeMerger(backend extract.Backend, opts ...extract.Option) *GenerativeMerger {
	return &GenerativeMerger{client: extract.New[model.CompanyFacts](backend, FactsSchema, opts...)}
}

// Merge implements Merger.
func (m *GenerativeMerger) Merge(ctx context.Context, a, b *model.CompanyFacts) (model.CompanyFacts, model.TokenUsage, error) {
	if a == nil || b == nil {
		return model.CompanyFacts{}, model.TokenUsage{}, mergeError(eris.New("pipeline: merge input missing"))
	}

	fallback, err := MergeFacts(*a, *b)
	if err != nil {
		return model.CompanyFacts{}, model.TokenUsage{}, err
	}

	input1, err := json.Marshal(a)
	if err != nil {
		return model.CompanyFacts{}, model.TokenUsage{}, mergeError(eris.Wrap(err, "pipeline: encode input1"))
	}
	input2, err := json.Marshal(b)
	if err != nil {
		return model.CompanyFacts{}, model.TokenUsage{}, mergeError(eris.Wrap(err, "pipeline: encode input2"))
	}
	vars := map[string]string{"input1": string(input1), "input2": string(input2)}

	backend := m.client.Backend()
	usage := model.TokenUsage{Provider: backend.Name(), Model: backend.Model()}
	log := zap.L().With(zap.String("backend", backend.Name()), zap.String("model", backend.Model()))

	for attempt := 1; attempt <= generativeAttempts; attempt++ {
		res, err := m.client.Extract(ctx, MergeTemplate, vars)
		usage.InputTokens += res.Usage.InputTokens
		usage.OutputTokens += res.Usage.OutputTokens

		if err == nil {
			err = VerifyMerge(*a, *b, res.Value)
		}
		if err == nil {
			return res.Value.Clone(), usage, nil
		}
		if ctx.Err() != nil {
			return model.CompanyFacts{}, usage, mergeError(eris.Wrap(ctx.Err(), "pipeline: generative merge"))
		}
		log.Warn("pipeline: generative merge rejected",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}

	log.Warn("pipeline: falling back to deterministic merge")
	return fallback, usage, nil
}
