// Package repo defines a generic keyed Repository and its Neo4j implementation.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the requested id.
var ErrNotFound = errors.New("repo: not found")

// Repository is a keyed store with overwrite-by-id semantics.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	Put(ctx context.Context, entity T) error
	DeleteAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}
