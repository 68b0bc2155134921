package database

import "context"

type DBPool = dbPool

// WithNewPool overrides how the underlying connection pool is created.
func WithNewPool(f func(ctx context.Context, dsn string) (DBPool, error)) Options {
	return func(o *options) {
		o.newPool = f
	}
}
