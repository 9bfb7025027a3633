package transfer

import (
	"context"
	"fmt"
)

const DefaultMaxAttempts = 3

// RetryPolicy runs a single fallible part operation up to MaxAttempts times.
// Attempts are made back to back; there is no backoff.
type RetryPolicy struct {
	MaxAttempts int

	// OnRetry, when set, is called after a failed attempt that will be retried.
	OnRetry func(index, attempt int, err error)
}

// NewRetryPolicy builds a policy that allows maxRetries re-attempts after the first one.
func NewRetryPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxRetries + 1}
}

// Do invokes op until it succeeds or the attempts are used up. The attempt
// number handed to op starts at 0. Exhaustion yields a *ChunkTransferExhaustedError.
func (p RetryPolicy) Do(ctx context.Context, index int, op func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &ChunkTransferExhaustedError{
				Index:    index,
				Attempts: attempt,
				Err:      fmt.Errorf("chunk %d cancelled: %w", index, err),
			}
		}

		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if attempt+1 < maxAttempts && p.OnRetry != nil {
			p.OnRetry(index, attempt, lastErr)
		}
	}

	return &ChunkTransferExhaustedError{Index: index, Attempts: maxAttempts, Err: lastErr}
}
