package iam

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	idmerrors "github.com/tendant/identity-core/pkg/errors"
)

// RetryPolicy retries an operation with exponential backoff, but only while
// it fails with the RetryOn error code
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
	RetryOn         idmerrors.ErrorCode
}

// CreateUserGrantRetry absorbs conflicts on a freshly created user while its
// initial roles are granted
var CreateUserGrantRetry = RetryPolicy{
	MaxAttempts:     5,
	InitialInterval: 100 * time.Millisecond,
	Multiplier:      2,
	RetryOn:         idmerrors.ErrCodeConcurrentModification,
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do runs op until it succeeds, fails with a non-retryable error or the
// attempts are used up. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && !idmerrors.IsCode(err, p.RetryOn) {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, next time.Duration) {
		logger.WarnContext(ctx, "Retrying after conflict", "attempt", attempt, "max_attempts", p.MaxAttempts, "next", next, "error", err)
	})
}
