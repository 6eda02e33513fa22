package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"

	"github.com/sells-group/company-aggregator/internal/config"
	"github.com/sells-group/company-aggregator/pkg/anthropic"
	"github.com/sells-group/company-aggregator/pkg/ollama"
	"github.com/sells-group/company-aggregator/pkg/openai"
)

const (
	openaiFacts = `{"companyName":"Microsoft","founded":"1975","ticker":"MSFT","marketCap":"3 trillion",` +
		`"employees":"220000","businessAreas":["Software","Cloud"],"competitors":["Apple"]}`
	claudeFacts = `{"companyName":"Microsoft Corporation","founded":"1975","ticker":"MSFT","marketCap":"3 trillion",` +
		`"employees":"221000","businessAreas":["Cloud","Gaming"],"competitors":["Google"]}`
)

type stubOllama struct {
	content string
	err     error
	calls   atomic.Int32
}

func (s *stubOllama) Chat(_ context.Context, req ollama.ChatRequest) (*ollama.ChatResponse, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &ollama.ChatResponse{
		Model:           req.Model,
		Message:         ollama.Message{Role: "assistant", Content: s.content},
		Done:            true,
		PromptEvalCount: 40,
		EvalCount:       8,
	}, nil
}

type stubOpenAI struct {
	content string
	err     error
}

func (s *stubOpenAI) CreateChatCompletion(_ context.Context, req openai.ChatRequest) (*openai.ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &openai.ChatResponse{
		Model:        req.Model,
		Content:      s.content,
		FinishReason: "stop",
		Usage:        openai.TokenUsage{PromptTokens: 120, CompletionTokens: 60},
	}, nil
}

type stubAnthropic struct {
	input string
}

func (s *stubAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	name := ""
	if req.Tool != nil {
		name = req.Tool.Name
	}
	return &anthropic.MessageResponse{
		Model:      req.Model,
		StopReason: "tool_use",
		Content: []anthropic.ContentBlock{
			{Type: "tool_use", Name: name, Input: json.RawMessage(s.input)},
		},
		Usage: anthropic.TokenUsage{InputTokens: 200, OutputTokens: 80},
	}, nil
}

func stubClients() (backendClients, *stubOllama) {
	ol := &stubOllama{content: `{"companyName":"Microsoft"}`}
	return backendClients{
		Anthropic: &stubAnthropic{input: claudeFacts},
		OpenAI:    &stubOpenAI{content: openaiFacts},
		Ollama:    ol,
	}, ol
}

// testConfig mirrors the loaded defaults with retries kept short.
func testConfig() *config.Config {
	c := &config.Config{}
	c.Anthropic.Key = "sk-ant-test"
	c.Anthropic.Model = "claude-sonnet-4-20250514"
	c.Anthropic.MaxTokens = 512
	c.OpenAI.Key = "sk-test"
	c.OpenAI.Model = "gpt-4o-mini"
	c.OpenAI.MaxTokens = 512
	c.Ollama.BaseURL = "http://localhost:11434"
	c.Ollama.Model = "llama3.2"
	c.Ollama.ResolveMaxTokens = 256
	c.Ollama.MergeMaxTokens = 512
	c.Pipeline.MergeStrategy = config.MergeDeterministic
	c.Pipeline.RunTimeoutSecs = 10
	c.Pipeline.CallTimeoutSecs = 5
	c.Retry.MaxAttempts = 1
	c.Circuit.FailureThreshold = 5
	c.Circuit.ResetTimeoutSecs = 30
	c.Classifier.TimeoutSecs = 5
	c.Server.Port = 8080
	c.Server.CORSOrigins = []string{"*"}
	return c
}

var errStub = errors.New("stub failure")

// withConfig installs c as the command config for the test.
func withConfig(t interface{ Cleanup(func()) }, c *config.Config) {
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}
