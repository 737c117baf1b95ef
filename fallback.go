package cache

import (
	"context"
	"errors"
)

// Chain combines fetch functions into an ordered fallback sequence.
//
// Sources are tried in order and the first success short-circuits the rest,
// e.g. live endpoint, then mirror, then static defaults. When every source
// fails, the joined failures are returned so that each one stays reachable
// with errors.Is and errors.As.
func Chain[V any](sources ...FetchFunc[V]) FetchFunc[V] {
	return func(ctx context.Context) (V, error) {
		var zero V

		if len(sources) == 0 {
			return zero, ErrNoSources
		}

		errs := make([]error, 0, len(sources))

		for _, fetch := range sources {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)

				break
			}

			v, err := fetch(ctx)
			if err == nil {
				return v, nil
			}

			errs = append(errs, err)
		}

		return zero, errors.Join(errs...)
	}
}
