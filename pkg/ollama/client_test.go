package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantStatus int
		wantText   string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{"model":"llama3.2","message":{"role":"assistant","content":"{\"companyName\":\"Microsoft\"}"},
				"done":true,"done_reason":"stop","prompt_eval_count":26,"eval_count":9}`,
			wantText: `{"companyName":"Microsoft"}`,
		},
		{
			name:       "model_not_found",
			status:     http.StatusNotFound,
			body:       `{"error":"model \"llama9\" not found"}`,
			wantErr:    `unexpected status 404: model "llama9" not found`,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "server_error_raw_body",
			status:     http.StatusInternalServerError,
			body:       `boom`,
			wantErr:    "unexpected status 500: boom",
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{not json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/chat", r.URL.Path)
				assert.Empty(t, r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(WithBaseURL(srv.URL))
			resp, err := c.Chat(context.Background(), ChatRequest{
				Messages: []Message{{Role: "user", Content: "MSFT"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				if tt.wantStatus != 0 {
					var oe *Error
					require.True(t, errors.As(err, &oe))
					assert.Equal(t, tt.wantStatus, oe.StatusCode)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Message.Content)
			assert.Equal(t, int64(26), resp.PromptEvalCount)
			assert.Equal(t, int64(9), resp.EvalCount)
		})
	}
}

func TestChat_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		assert.Equal(t, "qwen2.5", body["model"])
		assert.Equal(t, false, body["stream"])
		format, _ := body["format"].(map[string]any)
		assert.Equal(t, "object", format["type"])
		opts, _ := body["options"].(map[string]any)
		assert.Equal(t, 0.0, opts["temperature"])
		assert.Equal(t, float64(256), opts["num_predict"])

		_, _ = w.Write([]byte(`{"model":"qwen2.5","message":{"role":"assistant","content":"{}"},"done":true}`))
	}))
	defer srv.Close()

	temp := 0.0
	c := NewClient(WithBaseURL(srv.URL), WithModel("qwen2.5"))
	_, err := c.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "system", Content: "json only"}, {Role: "user", Content: "x"}},
		Stream:   true,
		Format:   map[string]any{"type": "object"},
		Options:  &Options{Temperature: &temp, NumPredict: 256},
	})
	require.NoError(t, err)
}

func TestChat_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(WithBaseURL(srv.URL)).Chat(ctx, ChatRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestOptions_IgnoreEmpty(t *testing.T) {
	c := NewClient(WithBaseURL(""), WithModel("")).(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, defaultModel, c.model)

	hc := &http.Client{}
	c = NewClient(WithHTTPClient(hc)).(*httpClient)
	assert.Same(t, hc, c.http)
}
