// Package openai wraps the OpenAI Chat Completions API behind a small
// interface with structured-output support.
package openai

import (
	"context"
	"errors"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Client defines the OpenAI operations used by the aggregator.
type Client interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a single system+user turn.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature *float64
	MaxTokens   int64

	// Schema, when set, constrains the reply with response_format json_schema.
	Schema *JSONSchema
}

// JSONSchema is a named JSON schema for structured output.
type JSONSchema struct {
	Name        string
	Description string
	Schema      map[string]any
	Strict      bool
}

// ChatResponse is our own response type.
type ChatResponse struct {
	ID           string
	Model        string
	Content      string
	Refusal      string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Error is returned for failed API calls and carries the HTTP status when
// the API answered.
type Error struct {
	StatusCode int
	Err        error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

type sdkClient struct {
	client sdk.Client
}

// NewClient creates a Client backed by openai-go. SDK-level retries are
// disabled; callers wrap calls in their own retry policy.
func NewClient(apiKey string, opts ...option.RequestOption) Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &sdkClient{client: sdk.NewClient(append(base, opts...)...)}
}

func (c *sdkClient) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(req.Model),
		Messages: buildMessages(req),
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = sdk.Int(req.MaxTokens)
	}
	if req.Schema != nil {
		schema := sdk.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   req.Schema.Name,
			Schema: req.Schema.Schema,
			Strict: sdk.Bool(req.Schema.Strict),
		}
		if req.Schema.Description != "" {
			schema.Description = sdk.String(req.Schema.Description)
		}
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &sdk.ResponseFormatJSONSchemaParam{JSONSchema: schema},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, &Error{StatusCode: statusOf(err), Err: eris.Wrap(err, "openai: create chat completion")}
	}
	if len(completion.Choices) == 0 {
		return nil, eris.New("openai: no choices in response")
	}

	choice := completion.Choices[0]
	resp := &ChatResponse{
		ID:           completion.ID,
		Model:        completion.Model,
		Content:      choice.Message.Content,
		Refusal:      choice.Message.Refusal,
		FinishReason: string(choice.FinishReason),
		Usage: TokenUsage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
		},
	}

	zap.L().Debug("openai usage",
		zap.String("model", resp.Model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
	)
	return resp, nil
}

func buildMessages(req ChatRequest) []sdk.ChatCompletionMessageParamUnion {
	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		msgs = append(msgs, sdk.SystemMessage(req.System))
	}
	return append(msgs, sdk.UserMessage(req.User))
}

func statusOf(err error) int {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
