package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// RetryPolicy controls how Retrying backs off.
type RetryPolicy struct {
	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	ExpBase      float64
	StatusCodes  []int
}

// DefaultRetryPolicy retries rate limits and transient server errors five
// times, waiting 1s, 7s, 49s, then capping at a minute.
var DefaultRetryPolicy = RetryPolicy{
	Attempts:     5,
	InitialDelay: time.Second,
	MaxDelay:     time.Minute,
	ExpBase:      7,
	StatusCodes:  []int{429, 500, 503, 504},
}

// Delay returns the wait before retry number n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.ExpBase, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Retryable reports whether err carries one of the policy's status codes.
func (p RetryPolicy) Retryable(err error) bool {
	code := 0
	var se *StatusError
	var apiErr genai.APIError
	switch {
	case errors.As(err, &se):
		code = se.Code
	case errors.As(err, &apiErr):
		code = apiErr.Code
	default:
		return false
	}
	for _, c := range p.StatusCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Retrying wraps a Model with status-code based retries.
type Retrying struct {
	next     Model
	policy   RetryPolicy
	logger   *zap.Logger
	observer Observer
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
}

// RetryOption configures Retrying.
type RetryOption func(*Retrying)

// WithRetryLogger sets the logger.
func WithRetryLogger(l *zap.Logger) RetryOption {
	return func(r *Retrying) { r.logger = l }
}

// WithRetryObserver reports every attempt to o.
func WithRetryObserver(o Observer) RetryOption {
	return func(r *Retrying) { r.observer = o }
}

// WithSleep replaces the context-aware sleep, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) RetryOption {
	return func(r *Retrying) { r.sleep = fn }
}

// NewRetrying wraps next. A policy with fewer than one attempt is treated
// as a single attempt.
func NewRetrying(next Model, policy RetryPolicy, opts ...RetryOption) *Retrying {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	r := &Retrying{
		next:   next,
		policy: policy,
		logger: zap.NewNop(),
		sleep:  sleepCtx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "llm"), zap.String("model", next.Name()))
	return r
}

// Name returns the wrapped model's name.
func (r *Retrying) Name() string { return r.next.Name() }

// Generate calls the wrapped model, retrying retryable failures.
func (r *Retrying) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		start := r.now()
		resp, err := r.next.Generate(ctx, req)
		r.observe(err, r.now().Sub(start))
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if attempt == r.policy.Attempts || !r.policy.Retryable(err) {
			break
		}
		wait := r.policy.Delay(attempt)
		r.logger.Warn("model call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := r.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *Retrying) observe(err error, d time.Duration) {
	if r.observer == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.observer.LLMRequest(r.next.Name(), status, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
