package resilience

import (
	"context"
	"fmt"
	"time"
)

// CallWithTimeout runs fn under a deadline derived from ctx and returns its
// value. It returns as soon as the deadline passes even if fn does not watch
// its context; fn's late result is discarded.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(timeoutCtx)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-timeoutCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return zero, fmt.Errorf("%s: %w (limit %v)", name, context.DeadlineExceeded, timeout)
	}
}
