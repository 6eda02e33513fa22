package extract

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/company-aggregator/internal/model"
	"github.com/sells-group/company-aggregator/internal/resilience"
)

const (
	defaultMaxTokens   = 512
	defaultCallTimeout = 60 * time.Second
)

// Observer receives one event per backend call, successful or not.
type Observer interface {
	ObserveBackendCall(backend, model string, err error, d time.Duration, usage model.TokenUsage)
}

// Result is a validated value plus the usage of the call that produced it.
type Result[T any] struct {
	Value T
	Usage model.TokenUsage
}

// Client extracts values of type T from one backend. It holds no per-call
// state, so one Client may serve concurrent runs.
type Client[T any] struct {
	backend   Backend
	schema    Schema
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	observer  Observer
	validate  *validator.Validate
}

// Option configures a Client.
type Option func(*options)

type options struct {
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
	retry     *resilience.RetryConfig
	observer  Observer
}

// WithMaxTokens bounds the output-token budget per call.
func WithMaxTokens(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithTimeout sets the deadline applied to every backend attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLimiter throttles calls through l. Clients sharing a backend should
// share its limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithBreaker gates calls through cb.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(o *options) { o.breaker = cb }
}

// WithRetry retries transient backend failures per cfg.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *options) { o.retry = &cfg }
}

// WithObserver reports every backend call to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

var sharedValidator = validator.New()

// New creates a Client for backend that validates replies against schema.
// Without WithRetry a failed call is not retried.
func New[T any](backend Backend, schema Schema, opts ...Option) *Client[T] {
	o := options{maxTokens: defaultMaxTokens, timeout: defaultCallTimeout}
	for _, fn := range opts {
		fn(&o)
	}

	retry := resilience.RetryConfig{MaxAttempts: 1}
	if o.retry != nil {
		retry = *o.retry
		if retry.OnRetry == nil {
			retry.OnRetry = resilience.RetryLogger(backend.Name(), schema.Name)
		}
	}

	return &Client[T]{
		backend:   backend,
		schema:    schema,
		maxTokens: o.maxTokens,
		timeout:   o.timeout,
		limiter:   o.limiter,
		breaker:   o.breaker,
		retry:     retry,
		observer:  o.observer,
		validate:  sharedValidator,
	}
}

// Backend returns the backend this client calls.
func (c *Client[T]) Backend() Backend { return c.backend }

// Extract renders tmpl with vars, calls the backend at temperature 0 and
// returns the validated value. Every failure is an *ExtractionError.
func (c *Client[T]) Extract(ctx context.Context, tmpl Template, vars map[string]string) (Result[T], error) {
	system, user, err := tmpl.Render(vars)
	if err != nil {
		return Result[T]{}, c.fail(KindPrompt, err)
	}

	req := Request{
		System:      joinPrompt(c.schema.Instruction(), system),
		User:        user,
		Schema:      &c.schema,
		Temperature: 0,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.call(ctx, req)
	if err != nil {
		return Result[T]{}, c.fail(kindOf(err), err)
	}

	value, kind, err := c.decode(resp.Text)
	if err != nil {
		zap.L().Debug("extract: rejected backend reply",
			zap.String("backend", c.backend.Name()),
			zap.String("schema", c.schema.Name),
			zap.String("reply", resp.Text),
		)
		return Result[T]{}, c.fail(kind, err)
	}
	return Result[T]{Value: value, Usage: resp.Usage}, nil
}

// call runs one guarded backend call: limiter, breaker, retry, and a
// deadline per attempt.
func (c *Client[T]) call(ctx context.Context, req Request) (*Response, error) {
	attempt := func(ctx context.Context) (*Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "rate limiter")
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		start := time.Now()
		resp, err := c.backend.Generate(callCtx, req)
		if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = eris.Wrapf(context.DeadlineExceeded, "%s: no reply within %s", c.backend.Name(), c.timeout)
		}
		if c.observer != nil {
			var usage model.TokenUsage
			if resp != nil {
				usage = resp.Usage
			}
			c.observer.ObserveBackendCall(c.backend.Name(), c.backend.Model(), err, time.Since(start), usage)
		}
		return resp, err
	}

	if c.breaker != nil {
		return resilience.Call(ctx, c.breaker, c.retry, attempt)
	}
	return resilience.DoVal(ctx, c.retry, attempt)
}

func (c *Client[T]) decode(text string) (T, ErrorKind, error) {
	var zero T

	cleaned := cleanJSON(text)
	if !json.Valid([]byte(cleaned)) {
		return zero, KindMalformed, eris.New("reply is not valid JSON")
	}
	if err := c.schema.Validate([]byte(cleaned)); err != nil {
		return zero, KindSchema, err
	}

	var value T
	if err := json.Unmarshal([]byte(cleaned), &value); err != nil {
		return zero, KindSchema, eris.Wrap(err, "decode reply")
	}
	if err := c.validate.Struct(&value); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return zero, KindSchema, eris.Wrap(err, "validate reply")
		}
	}
	return value, "", nil
}

func (c *Client[T]) fail(kind ErrorKind, err error) *ExtractionError {
	return &ExtractionError{
		Backend: c.backend.Name(),
		Model:   c.backend.Model(),
		Kind:    kind,
		Err:     err,
	}
}

func joinPrompt(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += p
	}
	return out
}
