package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/textsearch/pkg/errors"
)

// TimeoutError reports an operation abandoned after Limit. It matches both
// apperrors.ErrTimeout and context.DeadlineExceeded.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %v", e.Op, e.Limit)
}

func (e *TimeoutError) Is(target error) bool {
	return target == apperrors.ErrTimeout || target == context.DeadlineExceeded
}

// WithTimeout bounds fn to limit. fn gets a context that expires with it,
// but the call returns at the deadline even if fn keeps running; its late
// result is discarded. Cancellation of ctx itself is returned wrapped, not
// as a TimeoutError. A non-positive limit runs fn on ctx directly.
func WithTimeout(ctx context.Context, limit time.Duration, op string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(bounded) }()

	select {
	case err := <-result:
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &TimeoutError{Op: op, Limit: limit}
		}
		return err
	case <-bounded.Done():
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &TimeoutError{Op: op, Limit: limit}
}
