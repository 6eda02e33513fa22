package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/company-aggregator/internal/resilience"
)

func TestChecker_AllClosed(t *testing.T) {
	sb := resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig(), nil)
	sb.Get("openai")

	report := NewChecker(sb, "openai", "anthropic", "ollama").Check()
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, map[string]string{"openai": "closed", "anthropic": "closed", "ollama": "closed"}, report.Backends)
	assert.False(t, report.CheckedAt.IsZero())
}

func TestChecker_OpenBreakerDegrades(t *testing.T) {
	sb := resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}, nil)
	_, _ = resilience.ExecuteVal(context.Background(), sb.Get("anthropic"), func(context.Context) (struct{}, error) {
		return struct{}{}, resilience.NewTransientError(errors.New("overloaded"), 529)
	})

	report := NewChecker(sb, "openai", "anthropic").Check()
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "open", report.Backends["anthropic"])
	assert.Equal(t, "closed", report.Backends["openai"])
}

func TestChecker_NilBreakers(t *testing.T) {
	report := NewChecker(nil, "ollama").Check()
	assert.Equal(t, StatusOK, report.Status)
	assert.Equal(t, "closed", report.Backends["ollama"])
}
