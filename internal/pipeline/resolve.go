package pipeline

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-aggregator/internal/extract"
	"github.com/sells-group/company-aggregator/internal/model"
)

// MaxInputRunes bounds the accepted user input.
const MaxInputRunes = 512

type companyNameResult struct {
	CompanyName string `json:"companyName"`
}

// NameResolver turns free-form user input into a canonical company name.
type NameResolver interface {
	Resolve(ctx context.Context, userInput string) (string, model.TokenUsage, error)
}

// BuildResolverQuery rewrites single-token input (usually a ticker or a
// bare name) into a question. Input containing whitespace is returned
// trimmed but otherwise verbatim.
func BuildResolverQuery(userInput string) string {
	q := strings.TrimSpace(userInput)
	if strings.IndexFunc(q, unicode.IsSpace) < 0 {
		return "What is the full company name for this value: " + q + "?"
	}
	return q
}

// ExtractResolver resolves names through a structured extraction client.
type ExtractResolver struct {
	client *extract.Client[companyNameResult]
}

// NewExtractResolver builds a resolver on backend, usually the local model.
func NewExtractResolver(backend extract.Backend, opts ...extract.Option) *ExtractResolver {
	return &ExtractResolver{client: extract.New[companyNameResult](backend, NameSchema, opts...)}
}

// Resolve implements NameResolver. Every failure is a resolution error.
func (r *ExtractResolver) Resolve(ctx context.Context, userInput string) (string, model.TokenUsage, error) {
	input := strings.TrimSpace(userInput)
	if input == "" {
		return "", model.TokenUsage{}, resolutionError(eris.New("pipeline: empty input"))
	}
	if utf8.RuneCountInString(input) > MaxInputRunes {
		return "", model.TokenUsage{}, resolutionError(eris.Errorf("pipeline: input longer than %d characters", MaxInputRunes))
	}

	query := BuildResolverQuery(input)
	if query != input {
		zap.L().Debug("pipeline: rewrote resolver query", zap.String("query", query))
	}

	res, err := r.client.Extract(ctx, ResolveTemplate, map[string]string{"userInput": query})
	if err != nil {
		return "", res.Usage, resolutionError(eris.Wrap(err, "pipeline: resolve name"))
	}

	name := strings.TrimSpace(res.Value.CompanyName)
	if name == "" {
		return "", res.Usage, resolutionError(eris.New("pipeline: resolver returned an empty name"))
	}
	return name, res.Usage, nil
}
