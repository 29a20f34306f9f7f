package workflow

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Branch is one concurrently executed unit. It must only read state and
// returns an apply func that performs its writes after the join.
type Branch[S any] struct {
	Name string
	Run  func(ctx context.Context, state *S) (apply func(*S), err error)
}

// Parallel fans branches out with errgroup and applies their writes serially
// in declaration order once every branch returned. A failing branch does not
// cancel its siblings; its error is joined into the result and the writes of
// successful branches are still applied.
func Parallel[S any](nodeID string, branches ...Branch[S]) NodeFunc[S] {
	return func(ctx context.Context, state *S) error {
		applies := make([]func(*S), len(branches))
		errs := make([]error, len(branches))

		var g errgroup.Group
		for i, br := range branches {
			g.Go(func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						errs[i] = fmt.Errorf("branch %s panicked: %v", br.Name, r)
					}
				}()
				apply, err := br.Run(ctx, state)
				if err != nil {
					errs[i] = fmt.Errorf("branch %s: %w", br.Name, err)
					return nil
				}
				applies[i] = apply
				EmitProgress(ctx, nodeID, br.Name+" complete", nil)
				return nil
			})
		}
		_ = g.Wait()

		for _, apply := range applies {
			if apply != nil {
				apply(state)
			}
		}
		return errors.Join(errs...)
	}
}

// ForEach runs fn for every item concurrently (bounded by limit when > 0)
// and returns results aligned with items by index.
func ForEach[T, R any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) R) []R {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out
	}
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		g.Go(func() error {
			out[i] = fn(gctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
