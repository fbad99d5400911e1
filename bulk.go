package ddd

import (
	"context"
	"errors"
	"sync"
)

// BulkWrite fires one write per item, then waits for all of them. A slow or
// failing write does not hold back the others. All failures are joined.
func BulkWrite[T any](ctx context.Context, items []T, write func(context.Context, T) error) error {
	errs := make([]error, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			errs[i] = write(ctx, item)
		}(i, item)
	}
	wg.Wait()
	return errors.Join(errs...)
}
