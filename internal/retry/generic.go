package retry

import "context"

// DoWithResult is a type-safe wrapper around Retryer.Do that keeps the value
// produced by the last successful attempt.
//
//	page, err := retry.DoWithResult(ctx, r, func(ctx context.Context) (string, error) {
//	    return client.Scrape(ctx, url)
//	})
func DoWithResult[T any](ctx context.Context, r Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
