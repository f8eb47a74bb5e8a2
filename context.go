package strata

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx carrying repo.
func NewContext(ctx context.Context, repo *Repository) context.Context {
	return context.WithValue(ctx, contextKey{}, repo)
}

// FromContext returns the repository carried by ctx, if any.
func FromContext(ctx context.Context) (*Repository, bool) {
	repo, ok := ctx.Value(contextKey{}).(*Repository)
	return repo, ok && repo != nil
}
