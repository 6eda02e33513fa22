package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-aggregator/internal/model"
	"github.com/sells-group/company-aggregator/pkg/anthropic"
	"github.com/sells-group/company-aggregator/pkg/ollama"
	"github.com/sells-group/company-aggregator/pkg/openai"
)

// Backend is one model provider able to answer a system+user prompt,
// optionally constrained by a schema. Implementations must be safe for
// concurrent use.
type Backend interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Request is a single structured-generation call.
type Request struct {
	System      string
	User        string
	Schema      *Schema
	Temperature float64
	MaxTokens   int64
}

// Response is the raw text reply plus token usage.
type Response struct {
	Text  string
	Usage model.TokenUsage
}

// AnthropicBackend calls Claude with the schema offered as a forced tool.
type AnthropicBackend struct {
	client anthropic.Client
	model  string
}

// NewAnthropicBackend wraps an Anthropic client for model.
func NewAnthropicBackend(client anthropic.Client, model string) *AnthropicBackend {
	return &AnthropicBackend{client: client, model: model}
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return model.ProviderAnthropic }

// Model implements Backend.
func (b *AnthropicBackend) Model() string { return b.model }

// Generate implements Backend.
func (b *AnthropicBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	temp := req.Temperature
	mreq := anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    []anthropic.Message{{Role: "user", Content: req.User}},
		Temperature: &temp,
	}
	if req.Schema != nil {
		mreq.Tool = &anthropic.Tool{
			Name:        req.Schema.Name,
			Description: req.Schema.Description,
			Properties:  req.Schema.Properties(),
			Required:    req.Schema.Required(),
		}
	}

	resp, err := b.client.CreateMessage(ctx, mreq)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, withStatus(err, apiErr.StatusCode)
		}
		return nil, err
	}

	text := resp.Text()
	if req.Schema != nil {
		if input, ok := resp.ToolInput(req.Schema.Name); ok {
			text = string(input)
		}
	}
	if text == "" {
		return nil, eris.Wrapf(ErrEmptyResponse, "anthropic: stop reason %s", resp.StopReason)
	}

	return &Response{
		Text: text,
		Usage: model.TokenUsage{
			Provider:     model.ProviderAnthropic,
			Model:        b.model,
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// OpenAIBackend calls Chat Completions with a strict json_schema format.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackend wraps an OpenAI client for model.
func NewOpenAIBackend(client openai.Client, model string) *OpenAIBackend {
	return &OpenAIBackend{client: client, model: model}
}

// Name implements Backend.
func (b *OpenAIBackend) Name() string { return model.ProviderOpenAI }

// Model implements Backend.
func (b *OpenAIBackend) Model() string { return b.model }

// Generate implements Backend.
func (b *OpenAIBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	temp := req.Temperature
	creq := openai.ChatRequest{
		Model:       b.model,
		System:      req.System,
		User:        req.User,
		Temperature: &temp,
		MaxTokens:   req.MaxTokens,
	}
	if req.Schema != nil {
		creq.Schema = &openai.JSONSchema{
			Name:        req.Schema.Name,
			Description: req.Schema.Description,
			Schema:      req.Schema.JSONSchema(),
			Strict:      true,
		}
	}

	resp, err := b.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, withStatus(err, apiErr.StatusCode)
		}
		return nil, err
	}
	if resp.Refusal != "" {
		return nil, eris.Wrapf(ErrEmptyResponse, "openai: refused: %s", resp.Refusal)
	}
	if resp.Content == "" {
		return nil, eris.Wrapf(ErrEmptyResponse, "openai: finish reason %s", resp.FinishReason)
	}

	return &Response{
		Text: resp.Content,
		Usage: model.TokenUsage{
			Provider:     model.ProviderOpenAI,
			Model:        b.model,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// OllamaBackend calls a local Ollama server, passing the schema as the
// response format.
type OllamaBackend struct {
	client ollama.Client
	model  string
}

// NewOllamaBackend wraps an Ollama client for model.
func NewOllamaBackend(client ollama.Client, model string) *OllamaBackend {
	return &OllamaBackend{client: client, model: model}
}

// Name implements Backend.
func (b *OllamaBackend) Name() string { return model.ProviderOllama }

// Model implements Backend.
func (b *OllamaBackend) Model() string { return b.model }

// Generate implements Backend.
func (b *OllamaBackend) Generate(ctx context.Context, req Request) (*Response, error) {
	temp := req.Temperature
	creq := ollama.ChatRequest{
		Model:   b.model,
		Options: &ollama.Options{Temperature: &temp, NumPredict: int(req.MaxTokens)},
		Format:  "json",
	}
	if req.System != "" {
		creq.Messages = append(creq.Messages, ollama.Message{Role: "system", Content: req.System})
	}
	creq.Messages = append(creq.Messages, ollama.Message{Role: "user", Content: req.User})
	if req.Schema != nil {
		creq.Format = req.Schema.JSONSchema()
	}

	resp, err := b.client.Chat(ctx, creq)
	if err != nil {
		var apiErr *ollama.Error
		if errors.As(err, &apiErr) {
			return nil, withStatus(err, apiErr.StatusCode)
		}
		return nil, err
	}
	if resp.Message.Content == "" {
		return nil, eris.Wrapf(ErrEmptyResponse, "ollama: done reason %s", resp.DoneReason)
	}

	return &Response{
		Text: resp.Message.Content,
		Usage: model.TokenUsage{
			Provider:     model.ProviderOllama,
			Model:        b.model,
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
	}, nil
}
