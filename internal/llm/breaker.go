package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerFailures uint32        = 3
	defaultBreakerTimeout  time.Duration = 30 * time.Second
	defaultBreakerInterval time.Duration = 60 * time.Second
)

// BreakerClient fails fast once the provider has failed repeatedly, so an
// unreachable Ollama does not stall every analysis for the full HTTP timeout.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker[Result]
}

func NewBreakerClient(inner Client, cfg Config, logger *slog.Logger) *BreakerClient {
	if logger == nil {
		logger = slog.Default()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = defaultBreakerFailures
	}
	timeout := cfg.BreakerTimeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        "llm:" + cfg.Provider,
		MaxRequests: 1,
		Interval:    defaultBreakerInterval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// A caller hanging up is not the provider's fault.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerClient{inner: inner, breaker: cb}
}

func (c *BreakerClient) Generate(ctx context.Context, req Request) (Result, error) {
	res, err := c.breaker.Execute(func() (Result, error) {
		return c.inner.Generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Result{}, fmt.Errorf("llm circuit open: %w", err)
		}
		return Result{}, err
	}
	return res, nil
}

func (c *BreakerClient) State() gobreaker.State { return c.breaker.State() }

func (c *BreakerClient) Counts() gobreaker.Counts { return c.breaker.Counts() }

var _ Client = (*BreakerClient)(nil)
