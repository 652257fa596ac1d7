// Package workerpool provides simple concurrent processing utilities.
package workerpool

import (
	"context"
	"sync"
)

// Process runs a worker pool over the provided work items, invoking process for each.
// If process returns an error, the pool cancels the context and stops further work.
func Process[T any](
	ctx context.Context,
	workerCount int,
	items []T,
	process func(context.Context, T) error,
	onCancel func(),
) error {
	if workerCount < 1 {
		workerCount = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan T, workerCount)
	errs := make(chan error, workerCount)
	wg := sync.WaitGroup{}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-tasks:
					if !ok {
						return
					}
					if err := process(ctx, item); err != nil {
						select {
						case errs <- err:
						default:
						}
						if onCancel != nil {
							onCancel()
						}
						cancel()
						return
					}
				}
			}
		}()
	}

	go feed(ctx, items, tasks)

	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}

	return ctx.Err()
}

// Collect maps items through produce on workerCount goroutines and hands each
// result to consume on the calling goroutine, so consume never runs
// concurrently with itself. Results arrive in completion order. An error from
// consume cancels the remaining work and is returned.
func Collect[T, R any](
	ctx context.Context,
	workerCount int,
	items []T,
	produce func(context.Context, T) R,
	consume func(R) error,
) error {
	if workerCount < 1 {
		workerCount = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan T, workerCount)
	results := make(chan R, workerCount)
	wg := sync.WaitGroup{}
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-tasks:
					if !ok {
						return
					}
					r := produce(ctx, item)
					select {
					case <-ctx.Done():
						return
					case results <- r:
					}
				}
			}
		}()
	}

	go feed(ctx, items, tasks)
	go func() {
		wg.Wait()
		close(results)
	}()

	var consumeErr error
	for r := range results {
		if consumeErr != nil {
			continue // drain
		}
		if err := consume(r); err != nil {
			consumeErr = err
			cancel()
		}
	}

	if consumeErr != nil {
		return consumeErr
	}
	return ctx.Err()
}

func feed[T any](ctx context.Context, items []T, tasks chan<- T) {
	defer close(tasks)
	for _, item := range items {
		select {
		case <-ctx.Done():
			return
		case tasks <- item:
		}
	}
}
