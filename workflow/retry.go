package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/agentgraph/types"
)

// ExecutionConfig controls retries, timeouts and fan-out failure policy.
// It is read from state["execution_config"] on every agent call and fan-out.
type ExecutionConfig struct {
	TimeoutSeconds    float64 `json:"timeout_seconds" yaml:"timeout_seconds"`
	RetryCount        int     `json:"retry_count" yaml:"retry_count"`
	BackoffBase       float64 `json:"backoff_base" yaml:"backoff_base"`
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	CancelOnFailure   bool    `json:"cancel_on_failure" yaml:"cancel_on_failure"`

	// after waits out the backoff delay; time.After when nil.
	after func(time.Duration) <-chan time.Time
}

// DefaultExecutionConfig returns the engine defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		TimeoutSeconds:    120,
		RetryCount:        3,
		BackoffBase:       1.0,
		BackoffMultiplier: 2.0,
		CancelOnFailure:   true,
	}
}

// Timeout returns the per-attempt timeout; zero disables it.
func (c ExecutionConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// ToMap renders the config in its state representation.
func (c ExecutionConfig) ToMap() map[string]any {
	return map[string]any{
		"timeout_seconds":    c.TimeoutSeconds,
		"retry_count":        c.RetryCount,
		"backoff_base":       c.BackoffBase,
		"backoff_multiplier": c.BackoffMultiplier,
		"cancel_on_failure":  c.CancelOnFailure,
	}
}

// ExecutionConfigFrom reads state["execution_config"], filling every
// missing key with its default.
func ExecutionConfigFrom(state *State) ExecutionConfig {
	if state == nil {
		return DefaultExecutionConfig()
	}
	v, _ := state.Get(KeyExecutionConfig)
	return ParseExecutionConfig(v)
}

// ParseExecutionConfig accepts an ExecutionConfig value, a pointer to one,
// or a loosely typed map.
func ParseExecutionConfig(v any) ExecutionConfig {
	cfg := DefaultExecutionConfig()
	switch t := v.(type) {
	case ExecutionConfig:
		return t
	case *ExecutionConfig:
		if t != nil {
			return *t
		}
	case map[string]any:
		if f, ok := toFloat(t["timeout_seconds"]); ok {
			cfg.TimeoutSeconds = f
		}
		if i, ok := toInt(t["retry_count"]); ok && i >= 0 {
			cfg.RetryCount = i
		}
		if f, ok := toFloat(t["backoff_base"]); ok {
			cfg.BackoffBase = f
		}
		if f, ok := toFloat(t["backoff_multiplier"]); ok {
			cfg.BackoffMultiplier = f
		}
		if b, ok := t["cancel_on_failure"].(bool); ok {
			cfg.CancelOnFailure = b
		}
	}
	return cfg
}

// Retry runs fn up to RetryCount+1 times. The delay before retry n is
// BackoffBase*BackoffMultiplier^n seconds. Each attempt gets its own
// timeout. Cancellation of ctx is returned immediately and never retried.
func Retry[T any](ctx context.Context, cfg ExecutionConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	delay := time.Duration(cfg.BackoffBase * float64(time.Second))
	after := cfg.after
	if after == nil {
		after = time.After
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := runAttempt(ctx, cfg.Timeout(), fn)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return zero, err
		}
		if attempt >= cfg.RetryCount {
			return zero, err
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-after(delay):
			}
		}
		delay = time.Duration(float64(delay) * cfg.BackoffMultiplier)
	}
}

// runAttempt runs one attempt in its own goroutine so the timeout holds
// even when fn ignores its context.
func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return safeCall(ctx, fn)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := safeCall(attemptCtx, fn)
		done <- outcome{v: v, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return o.v, timeoutError(timeout, o.err)
		}
		return o.v, o.err
	case <-attemptCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, timeoutError(timeout, attemptCtx.Err())
	}
}

func timeoutError(timeout time.Duration, cause error) error {
	return types.Errorf(types.ErrTimeout, "attempt timed out after %s", timeout).
		WithCause(cause).
		WithRetryable(true)
}

func safeCall[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
