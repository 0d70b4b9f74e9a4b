// Package retry re-runs storage reads that failed because the repository was
// temporarily unavailable.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"MediaRadar/internal/domain"
)

// Policy bounds the retries of a single read.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          *slog.Logger
}

// DefaultPolicy retries three times starting at 50ms.
func DefaultPolicy() Policy {
	return Policy{MaxTries: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}
}

// Do runs op until it succeeds, fails with a non-retryable error or the policy
// is exhausted. Only domain.ErrRepositoryUnavailable is retried.
func Do[T any](ctx context.Context, p Policy, name string, op func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxTries == 0 {
		p.MaxTries = 1
	}
	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}

	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, domain.ErrRepositoryUnavailable) {
			return res, backoff.Permanent(err)
		}
		if p.Logger != nil {
			p.Logger.Warn("repository read failed", "op", name, "attempt", attempt, "error", err)
		}
		return res, err
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(p.MaxTries),
	)
}
