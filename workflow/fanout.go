package workflow

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of concurrent work.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome holds the result of one gathered task. Err is set instead of
// Value when the task failed.
type Outcome[T any] struct {
	Value T
	Err   error
}

// Gather runs tasks concurrently and returns their outcomes in task order.
//
// With cancelOnFailure the first failure cancels the context handed to the
// remaining tasks, Gather waits for all of them to return and then reports
// that first error. Without it every task runs to completion, failures are
// reported inline and the returned error is always nil.
func Gather[T any](ctx context.Context, tasks []Task[T], cancelOnFailure bool) ([]Outcome[T], error) {
	outcomes := make([]Outcome[T], len(tasks))
	if len(tasks) == 0 {
		return outcomes, nil
	}

	if !cancelOnFailure {
		var wg sync.WaitGroup
		for i, task := range tasks {
			wg.Add(1)
			go func(i int, task Task[T]) {
				defer wg.Done()
				v, err := safeCall[T](ctx, task)
				outcomes[i] = Outcome[T]{Value: v, Err: err}
			}(i, task)
		}
		wg.Wait()
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		g.Go(func() error {
			v, err := safeCall[T](gctx, task)
			outcomes[i] = Outcome[T]{Value: v, Err: err}
			return err
		})
	}
	err := g.Wait()
	return outcomes, err
}
