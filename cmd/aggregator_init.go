package main

import (
	"net/http"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/company-aggregator/internal/classify"
	"github.com/sells-group/company-aggregator/internal/config"
	"github.com/sells-group/company-aggregator/internal/cost"
	"github.com/sells-group/company-aggregator/internal/extract"
	"github.com/sells-group/company-aggregator/internal/model"
	"github.com/sells-group/company-aggregator/internal/monitoring"
	"github.com/sells-group/company-aggregator/internal/pipeline"
	"github.com/sells-group/company-aggregator/internal/resilience"
	anthropicpkg "github.com/sells-group/company-aggregator/pkg/anthropic"
	"github.com/sells-group/company-aggregator/pkg/ollama"
	openaipkg "github.com/sells-group/company-aggregator/pkg/openai"
)

// backendClients are the raw model clients the pipeline is built on.
type backendClients struct {
	Anthropic anthropicpkg.Client
	OpenAI    openaipkg.Client
	Ollama    ollama.Client
}

// aggregatorEnv holds everything the lookup and serve commands need.
type aggregatorEnv struct {
	Pipeline   *pipeline.Pipeline
	Classifier classify.Classifier
	Breakers   *resilience.ServiceBreakers
	Collector  *monitoring.Collector
	Checker    *monitoring.Checker
	Registry   *prometheus.Registry
}

// MetricsHandler serves the env's registry.
func (e *aggregatorEnv) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(e.Registry, promhttp.HandlerOpts{Registry: e.Registry})
}

// initAggregator validates c for mode and builds the pipeline on the real
// SDK clients.
func initAggregator(c *config.Config, mode string) (*aggregatorEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	var openaiOpts []option.RequestOption
	if c.OpenAI.BaseURL != "" {
		openaiOpts = append(openaiOpts, option.WithBaseURL(c.OpenAI.BaseURL))
	}

	clients := backendClients{
		Anthropic: anthropicpkg.NewClient(c.Anthropic.Key),
		OpenAI:    openaipkg.NewClient(c.OpenAI.Key, openaiOpts...),
		Ollama:    ollama.NewClient(ollama.WithBaseURL(c.Ollama.BaseURL), ollama.WithModel(c.Ollama.Model)),
	}
	return buildAggregator(c, clients), nil
}

// buildAggregator wires clients into a Pipeline. Each backend gets its own
// limiter and circuit breaker; the resolver and the generative merger
// share Ollama's.
func buildAggregator(c *config.Config, clients backendClients) *aggregatorEnv {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := monitoring.NewCollector(reg)

	cbCfg := resilience.FromCircuitConfig(c.Circuit.FailureThreshold, c.Circuit.ResetTimeoutSecs)
	cbCfg.ShouldTrip = resilience.IsTransient
	breakers := resilience.NewServiceBreakers(cbCfg, collector.ObserveCircuit)

	retry := resilience.FromRetryConfig(
		c.Retry.MaxAttempts,
		c.Retry.InitialBackoffMs,
		c.Retry.MaxBackoffMs,
		c.Retry.Multiplier,
		c.Retry.JitterFraction,
	)
	callTimeout := time.Duration(c.Pipeline.CallTimeoutSecs) * time.Second

	extractOpts := func(name string, limiter *rate.Limiter, maxTokens int64) []extract.Option {
		return []extract.Option{
			extract.WithMaxTokens(maxTokens),
			extract.WithTimeout(callTimeout),
			extract.WithLimiter(limiter),
			extract.WithBreaker(breakers.Get(name)),
			extract.WithRetry(retry),
			extract.WithObserver(collector),
		}
	}

	openaiBackend := extract.NewOpenAIBackend(clients.OpenAI, c.OpenAI.Model)
	anthropicBackend := extract.NewAnthropicBackend(clients.Anthropic, c.Anthropic.Model)
	ollamaBackend := extract.NewOllamaBackend(clients.Ollama, c.Ollama.Model)
	ollamaLimiter := newLimiter(model.ProviderOllama, c.Ollama.RPS)

	resolver := pipeline.NewExtractResolver(ollamaBackend,
		extractOpts(model.ProviderOllama, ollamaLimiter, c.Ollama.ResolveMaxTokens)...)
	factsA := pipeline.NewExtractFetcher(openaiBackend,
		extractOpts(model.ProviderOpenAI, newLimiter(model.ProviderOpenAI, c.OpenAI.RPS), c.OpenAI.MaxTokens)...)
	factsB := pipeline.NewExtractFetcher(anthropicBackend,
		extractOpts(model.ProviderAnthropic, newLimiter(model.ProviderAnthropic, c.Anthropic.RPS), c.Anthropic.MaxTokens)...)

	var merger pipeline.Merger = pipeline.DeterministicMerger{}
	if c.Pipeline.MergeStrategy == config.MergeGenerative {
		merger = pipeline.NewGenerativeMerger(ollamaBackend,
			extractOpts(model.ProviderOllama, ollamaLimiter, c.Ollama.MergeMaxTokens)...)
	}

	classifier := newClassifier(c, retry)

	p := pipeline.New(resolver, factsA, factsB, merger, classifier,
		pipeline.WithRecorder(collector),
		pipeline.WithCostCalculator(cost.NewCalculator(ratesFrom(c.Pricing))),
		pipeline.WithRunTimeout(time.Duration(c.Pipeline.RunTimeoutSecs)*time.Second),
	)

	zap.L().Info("aggregator initialized",
		zap.String("provider_a", openaiBackend.Model()),
		zap.String("provider_b", anthropicBackend.Model()),
		zap.String("resolver", ollamaBackend.Model()),
		zap.String("merge_strategy", c.Pipeline.MergeStrategy),
		zap.Bool("remote_classifier", c.Classifier.Endpoint != ""),
	)

	return &aggregatorEnv{
		Pipeline:   p,
		Classifier: classifier,
		Breakers:   breakers,
		Collector:  collector,
		Checker: monitoring.NewChecker(breakers,
			model.ProviderOllama, model.ProviderOpenAI, model.ProviderAnthropic),
		Registry: reg,
	}
}

// newClassifier returns the remote classifier when an endpoint is
// configured, else the in-process policy.
func newClassifier(c *config.Config, retry resilience.RetryConfig) classify.Classifier {
	if c.Classifier.Endpoint == "" {
		return classify.Local{}
	}
	return classify.NewHTTPClient(c.Classifier.Endpoint,
		time.Duration(c.Classifier.TimeoutSecs)*time.Second,
		classify.WithRetry(retry),
	)
}

// newLimiter returns nil (unlimited) for a non-positive rate.
func newLimiter(name string, rps float64) *rate.Limiter {
	if rps <= 0 {
		zap.L().Debug("rate limit disabled", zap.String("backend", name))
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// ratesFrom layers configured prices over the built-in table.
func ratesFrom(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for name, mp := range p.Anthropic {
		rates.Anthropic[name] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
	}
	for name, mp := range p.OpenAI {
		rates.OpenAI[name] = cost.ModelRate{Input: mp.Input, Output: mp.Output}
	}
	return rates
}
