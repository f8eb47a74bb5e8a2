package strata

import "go.uber.org/zap"

// Push adds a new topmost layer seeded with a copy of the current resolver
// chain and returns it. The layer sees the registrations below it.
func (r *Repository) Push() *Registry {
	layer := newLayer(r.Current().Resolvers(), r.logger, r.stack, r.Current())
	r.layers = append(r.layers, layer)

	r.logger.Debug("pushed scope", zap.Int("depth", len(r.layers)))

	return layer
}

// Pop removes the topmost layer and returns it. The base layer is permanent:
// popping it fails with ErrBaseLayer and leaves it in place.
func (r *Repository) Pop() (*Registry, error) {
	if len(r.layers) <= 1 {
		return nil, ErrBaseLayer
	}

	layer := r.layers[len(r.layers)-1]
	r.layers[len(r.layers)-1] = nil
	r.layers = r.layers[:len(r.layers)-1]

	r.logger.Debug("popped scope", zap.Int("depth", len(r.layers)))

	return layer, nil
}

// Scope runs fn inside a new layer. The layer, and any layer fn left pushed
// above it, is removed when fn returns or panics.
//
// Example:
//
//	err := repo.Scope(func(repo *strata.Repository) error {
//	    if err := repo.Add(requestUser); err != nil {
//	        return err
//	    }
//	    handler, err := strata.Get[*Handler](repo)
//	    ...
//	})
func (r *Repository) Scope(fn func(*Repository) error) error {
	r.Push()
	depth := len(r.layers)

	defer func() {
		for len(r.layers) >= depth {
			if _, err := r.Pop(); err != nil {
				return
			}
		}
	}()

	return fn(r)
}
