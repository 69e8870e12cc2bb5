package feed

import (
	"context"
	"time"

	clierr "github.com/gustavo/advisor-cli/internal/errors"
)

// Policy describes how a fetch against an unreliable feed is retried.
// Rate-limit responses wait RateLimitDelay and do not consume the attempt
// budget; every other failure consumes one of MaxAttempts after RetryDelay.
// MaxRateLimitWait bounds the total time spent waiting on rate limits so a
// permanently throttled upstream cannot stall a caller forever.
type Policy struct {
	MaxAttempts      int
	RetryDelay       time.Duration
	RateLimitDelay   time.Duration
	MaxRateLimitWait time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		RetryDelay:       1 * time.Second,
		RateLimitDelay:   2 * time.Second,
		MaxRateLimitWait: 2 * time.Minute,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = 1 * time.Second
	}
	if p.RateLimitDelay <= 0 {
		p.RateLimitDelay = 2 * time.Second
	}
	if p.MaxRateLimitWait <= 0 {
		p.MaxRateLimitWait = 2 * time.Minute
	}
	return p
}

// FetchWithRetry runs fn under the policy and returns its first successful
// result, or a FeedUnavailable error carrying the last underlying cause.
func FetchWithRetry[T any](ctx context.Context, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p := policy.normalized()

	attemptsLeft := p.MaxAttempts
	rateLimitWaited := time.Duration(0)
	var lastErr error

	for {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if clierr.Is(err, clierr.CodeRateLimited) {
			rateLimitWaited += p.RateLimitDelay
			if rateLimitWaited > p.MaxRateLimitWait {
				return zero, clierr.Wrap(clierr.CodeFeedUnavailable, "feed rate limit wait budget exhausted", lastErr)
			}
			if err := sleep(ctx, p.RateLimitDelay); err != nil {
				return zero, err
			}
			continue
		}

		attemptsLeft--
		if attemptsLeft <= 0 {
			return zero, clierr.Wrap(clierr.CodeFeedUnavailable, "feed fetch attempts exhausted", lastErr)
		}
		if err := sleep(ctx, p.RetryDelay); err != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return clierr.Wrap(clierr.CodeFeedUnavailable, "feed fetch cancelled", ctx.Err())
	case <-timer.C:
		return nil
	}
}
