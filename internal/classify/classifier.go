package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-aggregator/internal/resilience"
)

// Classifier assigns a size tier. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Classify(ctx context.Context, employees, marketCap *string) (Tier, error)
}

// Local runs the policy in-process.
type Local struct{}

// Classify implements Classifier. It never returns an error.
func (Local) Classify(_ context.Context, employees, marketCap *string) (Tier, error) {
	return Classify(employees, marketCap), nil
}

// Request is the body accepted by a classifier endpoint.
type Request struct {
	Employees *string `json:"employees"`
	MarketCap *string `json:"marketCap"`
}

// Response is the body returned by a classifier endpoint.
type Response struct {
	Classification string `json:"classification"`
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets the underlying http.Client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.http = hc }
}

// WithRetry sets the retry policy for transient endpoint failures.
func WithRetry(cfg resilience.RetryConfig) HTTPOption {
	return func(c *HTTPClient) { c.retry = cfg }
}

// HTTPClient posts to a remote classifier service.
type HTTPClient struct {
	endpoint string
	http     *http.Client
	retry    resilience.RetryConfig
}

// NewHTTPClient creates a client for endpoint. timeout bounds each attempt.
func NewHTTPClient(endpoint string, timeout time.Duration, opts ...HTTPOption) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &HTTPClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("classifier", "classify")
	}
	return c
}

// Classify implements Classifier.
func (c *HTTPClient) Classify(ctx context.Context, employees, marketCap *string) (Tier, error) {
	body, err := json.Marshal(Request{Employees: employees, MarketCap: marketCap})
	if err != nil {
		return "", eris.Wrap(err, "classify: marshal request")
	}

	resp, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (*Response, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return "", err
	}

	tier, err := ParseTier(resp.Classification)
	if err != nil {
		return "", eris.Wrap(err, "classify: malformed response")
	}
	zap.L().Debug("classify: remote classification",
		zap.String("endpoint", c.endpoint),
		zap.String("tier", tier.String()),
	)
	return tier, nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "classify: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "classify: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "classify: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resilience.FromStatus(
			eris.Errorf("classify: unexpected status %d: %s", resp.StatusCode, string(respBody)),
			resp.StatusCode,
		)
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, eris.Wrap(err, "classify: unmarshal response")
	}
	return &out, nil
}
