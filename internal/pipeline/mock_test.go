package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/company-aggregator/internal/classify"
	"github.com/sells-group/company-aggregator/internal/extract"
	"github.com/sells-group/company-aggregator/internal/model"
)

// anyCtx matches the derived contexts the pipeline passes down.
var anyCtx = mock.Anything

// --- Stage mocks ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, userInput string) (string, model.TokenUsage, error) {
	args := m.Called(ctx, userInput)
	return args.String(0), args.Get(1).(model.TokenUsage), args.Error(2)
}

type mockFetcher struct {
	mock.Mock
	name string
}

func (m *mockFetcher) Name() string { return m.name }

func (m *mockFetcher) Fetch(ctx context.Context, companyName string) (*model.CompanyFacts, model.TokenUsage, error) {
	args := m.Called(ctx, companyName)
	if args.Get(0) == nil {
		return nil, args.Get(1).(model.TokenUsage), args.Error(2)
	}
	return args.Get(0).(*model.CompanyFacts), args.Get(1).(model.TokenUsage), args.Error(2)
}

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Classify(ctx context.Context, employees, marketCap *string) (classify.Tier, error) {
	args := m.Called(ctx, employees, marketCap)
	return args.Get(0).(classify.Tier), args.Error(1)
}

// funcFetcher adapts a function for fork/join timing tests.
type funcFetcher struct {
	name string
	fn   func(ctx context.Context, companyName string) (*model.CompanyFacts, model.TokenUsage, error)
}

func (f funcFetcher) Name() string { return f.name }

func (f funcFetcher) Fetch(ctx context.Context, companyName string) (*model.CompanyFacts, model.TokenUsage, error) {
	return f.fn(ctx, companyName)
}

// --- Backend fake ---

// fakeBackend answers every Generate call with reply and records requests.
type fakeBackend struct {
	name  string
	model string
	reply func(n int, req extract.Request) (string, error)

	mu       sync.Mutex
	requests []extract.Request
}

func newFakeBackend(name string, reply func(n int, req extract.Request) (string, error)) *fakeBackend {
	return &fakeBackend{name: name, model: name + "-model", reply: reply}
}

func (f *fakeBackend) Name() string  { return f.name }
func (f *fakeBackend) Model() string { return f.model }

func (f *fakeBackend) Generate(_ context.Context, req extract.Request) (*extract.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	text, err := f.reply(n, req)
	if err != nil {
		return nil, err
	}
	return &extract.Response{
		Text:  text,
		Usage: model.TokenUsage{Provider: f.name, Model: f.model, InputTokens: 100, OutputTokens: 20},
	}, nil
}

func (f *fakeBackend) calls() []extract.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]extract.Request(nil), f.requests...)
}

// --- Recorder fake ---

type recordedStage struct {
	name   string
	status model.StageStatus
}

type fakeRecorder struct {
	mu     sync.Mutex
	stages []recordedStage
	runs   []string
	cost   map[string]float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{cost: map[string]float64{}}
}

func (r *fakeRecorder) ObserveStage(stage string, status model.StageStatus, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, recordedStage{name: stage, status: status})
}

func (r *fakeRecorder) ObserveRun(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, status)
}

func (r *fakeRecorder) ObserveCost(backend string, usd float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cost[backend] += usd
}
