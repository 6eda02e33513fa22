package monitoring

import (
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/company-aggregator/internal/resilience"
)

// Health statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// HealthReport is the body served by /health.
type HealthReport struct {
	Status    string            `json:"status"`
	Backends  map[string]string `json:"backends"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Checker derives service health from the backend circuit breakers.
type Checker struct {
	breakers *resilience.ServiceBreakers
	backends []string
}

// NewChecker reports on breakers. backends lists the names that should
// always appear in the report, even before their first call.
func NewChecker(breakers *resilience.ServiceBreakers, backends ...string) *Checker {
	return &Checker{breakers: breakers, backends: backends}
}

// Check builds a report. Any breaker that is not closed degrades the
// service.
func (c *Checker) Check() HealthReport {
	report := HealthReport{
		Status:    StatusOK,
		Backends:  make(map[string]string, len(c.backends)),
		CheckedAt: time.Now().UTC(),
	}
	for _, name := range c.backends {
		report.Backends[name] = resilience.CircuitClosed.String()
	}
	if c.breakers == nil {
		return report
	}

	for _, name := range c.breakers.Names() {
		state := c.breakers.Get(name).State()
		report.Backends[name] = state.String()
		if state != resilience.CircuitClosed {
			report.Status = StatusDegraded
		}
	}
	if report.Status == StatusDegraded {
		zap.L().Warn("monitoring: service degraded", zap.Any("backends", report.Backends))
	}
	return report
}
