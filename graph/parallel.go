package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Settled is the outcome of one FanOutSettled branch.
type Settled[R any] struct {
	Value R
	Err   error
}

// FanOut runs fn for every item concurrently and waits for all of them.
// The first error cancels the shared context and is returned. Results keep input order.
func FanOut[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]R, len(items))

	for i, item := range items {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("panic in branch %d: %v", i, p)
				}
			}()
			r, err := fn(gctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// FanOutSettled runs fn for every item concurrently and collects each branch's
// value or error. One failing branch does not cancel the others.
func FanOutSettled[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error)) []Settled[R] {
	var g errgroup.Group
	results := make([]Settled[R], len(items))

	for i, item := range items {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					results[i] = Settled[R]{Err: fmt.Errorf("panic in branch %d: %v", i, p)}
				}
			}()
			v, err := fn(ctx, item)
			results[i] = Settled[R]{Value: v, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
