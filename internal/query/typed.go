package query

import (
	"context"
	"fmt"
)

// Fetch is Client.Fetch for a statically typed value.
func Fetch[T any](ctx context.Context, c *Client, key Key, fn func(ctx context.Context) (T, error), opts ...FetchOption) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, &FetchError{Key: key.Clone(), Err: fmt.Errorf("cached value is %T, want %T", v, zero)}
	}
	return t, nil
}

// Data returns the typed value carried by a State.
func Data[T any](st State) (T, bool) {
	if !st.HasData {
		var zero T
		return zero, false
	}
	t, ok := st.Data.(T)
	return t, ok
}
