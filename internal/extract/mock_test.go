package extract

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/company-aggregator/internal/model"
	"github.com/sells-group/company-aggregator/pkg/anthropic"
	"github.com/sells-group/company-aggregator/pkg/ollama"
	"github.com/sells-group/company-aggregator/pkg/openai"
)

type mockBackend struct {
	mock.Mock
	name  string
	model string
}

func newMockBackend() *mockBackend {
	return &mockBackend{name: "fake", model: "fake-1"}
}

func (m *mockBackend) Name() string  { return m.name }
func (m *mockBackend) Model() string { return m.model }

func (m *mockBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Response), args.Error(1)
}

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockOpenAIClient struct {
	mock.Mock
}

func (m *mockOpenAIClient) CreateChatCompletion(ctx context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*openai.ChatResponse), args.Error(1)
}

type mockOllamaClient struct {
	mock.Mock
}

func (m *mockOllamaClient) Chat(ctx context.Context, req ollama.ChatRequest) (*ollama.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ollama.ChatResponse), args.Error(1)
}

type recordedCall struct {
	backend string
	err     error
	usage   model.TokenUsage
}

type recordingObserver struct {
	calls []recordedCall
}

func (r *recordingObserver) ObserveBackendCall(backend, _ string, err error, _ time.Duration, usage model.TokenUsage) {
	r.calls = append(r.calls, recordedCall{backend: backend, err: err, usage: usage})
}
