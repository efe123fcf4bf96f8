package attribute

import (
	"context"
	"fmt"
	"sync"
)

type result struct {
	value interface{}
	err   error
}

// adaptAsync normalizes a callback-style retriever into the synchronous
// shape. The buffered completion channel is the single suspension point the
// rest of the engine sees; it also honors cancellation of ctx.
func adaptAsync(fn AsyncFunc) Func {
	return func(ctx context.Context, key string, reqCtx interface{}) (interface{}, error) {
		done := make(chan result, 1)
		var once sync.Once
		complete := func(value interface{}, err error) {
			once.Do(func() {
				done <- result{value: value, err: err}
			})
		}
		if err := startAsync(ctx, fn, key, reqCtx, complete); err != nil {
			return nil, err
		}
		select {
		case res := <-done:
			return res.value, res.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// startAsync invokes fn, capturing a panic thrown before it hands off to the
// completion callback
func startAsync(ctx context.Context, fn AsyncFunc, key string, reqCtx interface{}, complete func(interface{}, error)) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("retriever panicked before completion: %v", p)
		}
	}()
	fn(ctx, key, reqCtx, complete)
	return nil
}
