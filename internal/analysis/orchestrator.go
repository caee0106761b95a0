// Package analysis fans media analysis out over a bounded number of
// goroutines and assembles the visual description of a post.
package analysis

import (
	"context"
	"fmt"
	"sync"
)

// DefaultConcurrency is used when no limit is configured.
const DefaultConcurrency = 3

// Result is the outcome for one item. Placeholder is set when Err is non-nil;
// callers render a stand-in text for it instead of dropping the slot.
type Result[R any] struct {
	Value       R
	Err         error
	Placeholder bool
}

// AnalyzeAll runs fn over items with at most limit calls in flight (limit <= 0
// means 1). results[i] always corresponds to items[i]. A failing or panicking
// item yields a placeholder and never cancels its siblings; items still
// waiting for a slot when ctx ends get ctx.Err() as their error.
func AnalyzeAll[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, index int, item T) (R, error), limit int) []Result[R] {
	if limit <= 0 {
		limit = 1
	}

	results := make([]Result[R], len(items))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()

			select {
			case sem <- struct{}{}: // Acquire semaphore
			case <-ctx.Done():
				results[i] = Result[R]{Err: ctx.Err(), Placeholder: true}
				return
			}
			defer func() { <-sem }() // Release semaphore

			value, err := runItem(ctx, i, item, fn)
			if err != nil {
				results[i] = Result[R]{Err: err, Placeholder: true}
				return
			}
			results[i] = Result[R]{Value: value}
		}(i, item)
	}

	wg.Wait()
	return results
}

func runItem[T, R any](ctx context.Context, i int, item T, fn func(context.Context, int, T) (R, error)) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis of item %d panicked: %v", i, r)
		}
	}()
	return fn(ctx, i, item)
}
