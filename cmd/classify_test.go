package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-aggregator/internal/classify"
	"github.com/sells-group/company-aggregator/internal/resilience"
)

func strPtr(s string) *string { return &s }

func TestRunClassify_Local(t *testing.T) {
	tests := []struct {
		name                 string
		employees, marketCap *string
		want                 string
	}{
		{"trillion", strPtr("220000"), strPtr("3 trillion"), "High"},
		{"billion", strPtr("5000"), strPtr("12 billion"), "Medium"},
		{"million", strPtr("80"), strPtr("900 million"), "Low"},
		{"no employees", nil, strPtr("3 trillion"), "Unknown"},
		{"blank market cap", strPtr("80"), strPtr("  "), "NotSure"},
		{"unparseable", strPtr("80"), strPtr("a lot"), "NotSure"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, runClassify(context.Background(), classify.Local{}, tt.employees, tt.marketCap, &out))

			var got classifyOutput
			require.NoError(t, json.Unmarshal(out.Bytes(), &got))
			assert.Equal(t, tt.want, got.Classification)
		})
	}
}

func TestRunClassify_Remote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req classify.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(classify.Response{Classification: "Medium"})
	}))
	defer srv.Close()

	c := testConfig()
	c.Classifier.Endpoint = srv.URL
	client := newClassifier(c, resilience.RetryConfig{MaxAttempts: 1})
	require.IsType(t, &classify.HTTPClient{}, client)

	var out bytes.Buffer
	require.NoError(t, runClassify(context.Background(), client, strPtr("1"), strPtr("1 billion"), &out))
	assert.Contains(t, out.String(), `"Medium"`)
}

func TestRunClassify_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testConfig()
	c.Classifier.Endpoint = srv.URL
	err := runClassify(context.Background(), newClassifier(c, resilience.RetryConfig{MaxAttempts: 1}), nil, nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classify")
}

func TestNewClassifier_DefaultsToLocal(t *testing.T) {
	assert.Equal(t, classify.Local{}, newClassifier(testConfig(), resilience.RetryConfig{}))
}
