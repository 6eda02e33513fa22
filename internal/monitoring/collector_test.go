package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-aggregator/internal/model"
	"github.com/sells-group/company-aggregator/internal/resilience"
)

func TestCollector_RunsAndStages(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveRun("success", 2*time.Second)
	c.ObserveRun("success", time.Second)
	c.ObserveRun("failed", time.Second)
	c.ObserveStage("merge", model.StageStatusComplete, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.stageDuration))
}

func TestCollector_BackendCalls(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveBackendCall("openai", "gpt-4o-mini", nil, time.Second, model.TokenUsage{InputTokens: 100, OutputTokens: 20})
	c.ObserveBackendCall("openai", "gpt-4o-mini", errors.New("503"), time.Second, model.TokenUsage{})
	c.ObserveBackendCall("anthropic", "claude", nil, time.Second, model.TokenUsage{InputTokens: 7})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.backendCalls.WithLabelValues("openai", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.backendCalls.WithLabelValues("openai", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.tokens.WithLabelValues("openai", "input")))
	assert.Equal(t, 20.0, testutil.ToFloat64(c.tokens.WithLabelValues("openai", "output")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.tokens.WithLabelValues("anthropic", "input")))
}

func TestCollector_Cost(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObserveCost("anthropic", 0.25)
	c.ObserveCost("anthropic", 0.5)
	c.ObserveCost("ollama", 0)

	assert.InDelta(t, 0.75, testutil.ToFloat64(c.cost.WithLabelValues("anthropic")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(c.cost))
}

func TestCollector_CircuitHook(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	sb := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, c.ObserveCircuit)

	cb := sb.Get("openai")
	_, err := resilience.ExecuteVal(context.Background(), cb, func(context.Context) (struct{}, error) {
		return struct{}{}, resilience.NewTransientError(errors.New("down"), 503)
	})
	require.Error(t, err)

	assert.Equal(t, float64(resilience.CircuitOpen), testutil.ToFloat64(c.circuitState.WithLabelValues("openai")))
}

func TestCollector_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
