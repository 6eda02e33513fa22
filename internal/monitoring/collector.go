package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sells-group/company-aggregator/internal/model"
	"github.com/sells-group/company-aggregator/internal/resilience"
)

// Collector records pipeline, backend and breaker metrics in Prometheus.
// It satisfies pipeline.Recorder and extract.Observer.
type Collector struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	stageDuration *prometheus.HistogramVec
	backendCalls  *prometheus.CounterVec
	backendTime   *prometheus.HistogramVec
	tokens        *prometheus.CounterVec
	cost          *prometheus.CounterVec
	circuitState  *prometheus.GaugeVec
}

// NewCollector registers all metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_runs_total",
				Help: "Lookup runs by outcome",
			},
			[]string{"status"},
		),
		runDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aggregator_run_duration_seconds",
				Help:    "End-to-end lookup duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregator_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stage", "status"},
		),
		backendCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_backend_calls_total",
				Help: "Model backend calls by outcome",
			},
			[]string{"backend", "status"},
		),
		backendTime: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aggregator_backend_call_duration_seconds",
				Help:    "Model backend call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"backend"},
		),
		tokens: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_tokens_total",
				Help: "Tokens consumed by backend and direction",
			},
			[]string{"backend", "direction"},
		),
		cost: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aggregator_cost_usd_total",
				Help: "Estimated spend in USD by backend",
			},
			[]string{"backend"},
		),
		circuitState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "aggregator_circuit_state",
				Help: "Breaker state by backend (0 closed, 1 open, 2 half-open)",
			},
			[]string{"backend"},
		),
	}
}

// ObserveRun implements pipeline.Recorder.
func (c *Collector) ObserveRun(status string, d time.Duration) {
	c.runs.WithLabelValues(status).Inc()
	c.runDuration.Observe(d.Seconds())
}

// ObserveStage implements pipeline.Recorder.
func (c *Collector) ObserveStage(stage string, status model.StageStatus, d time.Duration) {
	c.stageDuration.WithLabelValues(stage, string(status)).Observe(d.Seconds())
}

// ObserveCost implements pipeline.Recorder.
func (c *Collector) ObserveCost(backend string, usd float64) {
	if usd <= 0 {
		return
	}
	c.cost.WithLabelValues(backend).Add(usd)
}

// ObserveBackendCall implements extract.Observer.
func (c *Collector) ObserveBackendCall(backend, _ string, err error, d time.Duration, usage model.TokenUsage) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.backendCalls.WithLabelValues(backend, status).Inc()
	c.backendTime.WithLabelValues(backend).Observe(d.Seconds())
	if usage.InputTokens > 0 {
		c.tokens.WithLabelValues(backend, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		c.tokens.WithLabelValues(backend, "output").Add(float64(usage.OutputTokens))
	}
}

// ObserveCircuit matches the resilience.NewServiceBreakers change hook.
func (c *Collector) ObserveCircuit(backend string, _, to resilience.CircuitState) {
	c.circuitState.WithLabelValues(backend).Set(float64(to))
}
