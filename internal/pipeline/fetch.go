package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-aggregator/internal/extract"
	"github.com/sells-group/company-aggregator/internal/model"
)

// FactFetcher retrieves CompanyFacts for a resolved name from one provider.
type FactFetcher interface {
	Name() string
	Fetch(ctx context.Context, companyName string) (*model.CompanyFacts, model.TokenUsage, error)
}

// ExtractFetcher fetches facts through a structured extraction client.
type ExtractFetcher struct {
	client *extract.Client[model.CompanyFacts]
}

// NewExtractFetcher builds a fetcher on backend.
func NewExtractFetcher(backend extract.Backend, opts ...extract.Option) *ExtractFetcher {
	return &ExtractFetcher{client: extract.New[model.CompanyFacts](backend, FactsSchema, opts...)}
}

// Name returns the backend name.
func (f *ExtractFetcher) Name() string { return f.client.Backend().Name() }

// Fetch implements FactFetcher. Failures are *extract.ExtractionError.
func (f *ExtractFetcher) Fetch(ctx context.Context, companyName string) (*model.CompanyFacts, model.TokenUsage, error) {
	res, err := f.client.Extract(ctx, FactsTemplate, map[string]string{"companyName": companyName})
	if err != nil {
		return nil, res.Usage, err
	}
	facts := res.Value.Clone()
	return &facts, res.Usage, nil
}

// gathered is the joined output of both fetchers.
type gathered struct {
	a, b   *model.CompanyFacts
	usageA model.TokenUsage
	usageB model.TokenUsage
}

// gatherFacts runs both fetchers concurrently and waits for both. The first
// failure cancels the sibling and is returned as an extraction error.
func gatherFacts(ctx context.Context, fa, fb FactFetcher, companyName string) (gathered, error) {
	var out gathered
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		facts, usage, err := fa.Fetch(gCtx, companyName)
		out.usageA = usage
		if err != nil {
			return eris.Wrapf(err, "pipeline: fetch facts from %s", fa.Name())
		}
		out.a = facts
		return nil
	})

	g.Go(func() error {
		facts, usage, err := fb.Fetch(gCtx, companyName)
		out.usageB = usage
		if err != nil {
			return eris.Wrapf(err, "pipeline: fetch facts from %s", fb.Name())
		}
		out.b = facts
		return nil
	})

	if err := g.Wait(); err != nil {
		return out, extractionError(err)
	}
	if out.a == nil || out.b == nil {
		return out, extractionError(eris.New("pipeline: fetcher returned no facts"))
	}
	return out, nil
}
