package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTransportTimeout reports that a remote call did not finish in time.
var ErrTransportTimeout = errors.New("coordinator: transport timeout")

// WithTimeout runs fn and abandons it when d elapses first. fn receives a context
// cancelled at the deadline so a well-behaved call stops promptly.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return fn(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := fn(callCtx)
		done <- outcome{val: val, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-callCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %s", ErrTransportTimeout, d)
	}
}

// Typed wraps a typed call for the untyped coordinator entry points.
func Typed[T any](fn func(ctx context.Context) (T, error)) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		val, err := fn(ctx)
		return val, err
	}
}

// As converts a coordinator result back to T.
func As[T any](val any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if val == nil {
		return zero, nil
	}
	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("coordinator: unexpected result type %T", val)
	}
	return typed, nil
}
