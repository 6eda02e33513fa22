package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-aggregator/internal/classify"
	"github.com/sells-group/company-aggregator/internal/cost"
	"github.com/sells-group/company-aggregator/internal/model"
)

// Stage names as recorded in StageResult and metrics.
const (
	StageResolveName = "resolve_name"
	StageGatherFacts = "gather_facts"
	StageMerge       = "merge"
	StageClassify    = "classify"
)

// Run outcomes reported to the Recorder.
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// Recorder receives run and stage observations. monitoring.Collector is
// the production implementation.
type Recorder interface {
	ObserveStage(stage string, status model.StageStatus, d time.Duration)
	ObserveRun(status string, d time.Duration)
	ObserveCost(backend string, usd float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStage(string, model.StageStatus, time.Duration) {}
func (nopRecorder) ObserveRun(string, time.Duration)                      {}
func (nopRecorder) ObserveCost(string, float64)                           {}

// Pipeline runs resolve, fetch, merge and classify for one query at a
// time per Invoke call. A Pipeline holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	resolver   NameResolver
	factsA     FactFetcher
	factsB     FactFetcher
	merger     Merger
	classifier classify.Classifier
	costCalc   *cost.Calculator
	recorder   Recorder
	runTimeout time.Duration
	newRunID   func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder reports stage and run metrics to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithCostCalculator prices token usage with c.
func WithCostCalculator(c *cost.Calculator) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.costCalc = c
		}
	}
}

// WithRunTimeout bounds a whole run. Zero means no run-level deadline.
func WithRunTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.runTimeout = d }
}

// New creates a Pipeline. factsA and factsB are provider A and B.
func New(
	resolver NameResolver,
	factsA FactFetcher,
	factsB FactFetcher,
	merger Merger,
	classifier classify.Classifier,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		resolver:   resolver,
		factsA:     factsA,
		factsB:     factsB,
		merger:     merger,
		classifier: classifier,
		costCalc:   cost.NewCalculator(cost.DefaultRates()),
		recorder:   nopRecorder{},
		newRunID:   uuid.NewString,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Invoke runs the full lookup for userInput. It always returns the run's
// state; on failure the state is in StageFailed and the error is a
// *pipeline.Error naming the failing stage family.
func (p *Pipeline) Invoke(ctx context.Context, userInput string) (*model.PipelineState, error) {
	state := model.NewPipelineState(p.newRunID(), userInput)
	log := zap.L().With(zap.String("run_id", state.RunID))
	log.Info("pipeline: starting lookup", zap.String("input", userInput))

	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	r := &run{p: p, state: state, log: log}
	err := r.execute(ctx)

	state.CostUSD = p.costCalc.Total(state.Usage)
	for _, u := range state.Usage {
		p.recorder.ObserveCost(u.Provider, p.costCalc.Usage(u))
	}
	elapsed := time.Since(state.StartedAt)

	if err != nil {
		state.Err = err
		if advErr := r.advance(model.StageFailed); advErr != nil {
			log.Error("pipeline: cannot mark run failed", zap.Error(advErr))
		}
		p.recorder.ObserveRun(RunStatusFailed, elapsed)
		log.Error("pipeline: lookup failed",
			zap.String("kind", string(KindOf(err))),
			zap.Duration("duration", elapsed),
			zap.Error(err),
		)
		return state, err
	}

	p.recorder.ObserveRun(RunStatusSuccess, elapsed)
	log.Info("pipeline: lookup complete",
		zap.String("company", state.ResolvedName),
		zap.String("classification", state.Classification),
		zap.Int64("tokens", state.TotalTokens()),
		zap.Float64("cost_usd", state.CostUSD),
		zap.Duration("duration", elapsed),
	)
	return state, nil
}

// run is the state machine for a single Invoke.
type run struct {
	p     *Pipeline
	state *model.PipelineState
	log   *zap.Logger
}

func (r *run) execute(ctx context.Context) error {
	// Start -> NameResolved
	var name string
	err := r.trackStage(StageResolveName, func() ([]model.TokenUsage, error) {
		resolved, usage, err := r.p.resolver.Resolve(ctx, r.state.UserInput)
		if err != nil {
			return []model.TokenUsage{usage}, ensureKind(err, resolutionError)
		}
		name = resolved
		return []model.TokenUsage{usage}, nil
	})
	if err != nil {
		return err
	}
	if err := r.state.SetResolvedName(name); err != nil {
		return resolutionError(err)
	}
	if err := r.advance(model.StageNameResolved); err != nil {
		return err
	}

	// NameResolved -> FactsGathered
	var facts gathered
	err = r.trackStage(StageGatherFacts, func() ([]model.TokenUsage, error) {
		var err error
		facts, err = gatherFacts(ctx, r.p.factsA, r.p.factsB, name)
		return []model.TokenUsage{facts.usageA, facts.usageB}, err
	})
	if err != nil {
		return err
	}
	if err := r.state.SetProviderFacts(*facts.a, *facts.b); err != nil {
		return extractionError(err)
	}
	if err := r.advance(model.StageFactsGathered); err != nil {
		return err
	}

	// FactsGathered -> Merged
	var merged model.CompanyFacts
	err = r.trackStage(StageMerge, func() ([]model.TokenUsage, error) {
		m, usage, err := r.p.merger.Merge(ctx, r.state.FactsProviderA, r.state.FactsProviderB)
		if err != nil {
			return []model.TokenUsage{usage}, ensureKind(err, mergeError)
		}
		merged = m
		return []model.TokenUsage{usage}, nil
	})
	if err != nil {
		return err
	}
	if err := r.state.SetMergedFacts(merged); err != nil {
		return mergeError(err)
	}
	r.log.Debug("pipeline: provider agreement",
		zap.Float64("agreement", Agreement(BuildProvenance(*r.state.FactsProviderA, *r.state.FactsProviderB))),
	)
	if err := r.advance(model.StageMerged); err != nil {
		return err
	}

	// Merged -> Classified
	var tier classify.Tier
	err = r.trackStage(StageClassify, func() ([]model.TokenUsage, error) {
		t, err := r.p.classifier.Classify(ctx, &merged.Employees, &merged.MarketCap)
		if err != nil {
			return nil, classificationError(eris.Wrap(err, "pipeline: classify"))
		}
		tier = t
		return nil, nil
	})
	if err != nil {
		return err
	}
	if err := r.state.SetClassification(tier.String()); err != nil {
		return classificationError(err)
	}
	return r.advance(model.StageClassified)
}

// advance moves the state machine forward, refusing anything but the
// next stage or Failed.
func (r *run) advance(next model.Stage) error {
	if !r.state.Stage.CanAdvance(next) {
		return eris.Errorf("pipeline: illegal transition %s -> %s", r.state.Stage, next)
	}
	r.log.Debug("pipeline: transition",
		zap.String("from", string(r.state.Stage)),
		zap.String("to", string(next)),
	)
	r.state.Stage = next
	return nil
}

// trackStage runs fn and records its outcome on the state, the log and
// the recorder. Usage is kept even when fn fails.
func (r *run) trackStage(name string, fn func() ([]model.TokenUsage, error)) error {
	start := time.Now()
	usage, fnErr := fn()
	elapsed := time.Since(start)

	result := model.StageResult{
		Name:     name,
		Duration: elapsed.Milliseconds(),
	}
	for _, u := range usage {
		if u.Total() == 0 {
			continue
		}
		result.Usage = append(result.Usage, u)
	}
	r.state.AddUsage(result.Usage...)

	if fnErr != nil {
		result.Status = model.StageStatusFailed
		result.Error = fnErr.Error()
		r.log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", result.Duration),
			zap.Error(fnErr),
		)
	} else {
		result.Status = model.StageStatusComplete
		r.log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", result.Duration),
		)
	}

	r.state.Stages = append(r.state.Stages, result)
	r.p.recorder.ObserveStage(name, result.Status, elapsed)
	return fnErr
}

// ensureKind tags errors from custom stage implementations that did not
// classify themselves.
func ensureKind(err error, wrap func(error) *Error) error {
	if KindOf(err) != "" {
		return err
	}
	return wrap(err)
}
