package engine

import (
	"context"
	"sync"

	"github.com/verdict-engine/go-core/pkg/types"
)

// BatchItem pairs a policy tree with the attribute context to evaluate it
// against.
type BatchItem struct {
	Node  *types.Node
	Scope types.AttributeSource
}

// EvaluateBatch evaluates independent items concurrently on the engine's
// worker pool. Verdicts are positional. The first error discards all
// results.
func (e *Engine) EvaluateBatch(ctx context.Context, items []BatchItem) ([]types.Verdict, error) {
	verdicts := make([]types.Verdict, len(items))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, item := range items {
		wg.Add(1)
		i, item := i, item

		e.pool.Submit(func() {
			defer wg.Done()

			verdict, err := e.EvaluatePolicy(ctx, item.Node, item.Scope)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}

			verdicts[i] = verdict
		})
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return verdicts, nil
}
