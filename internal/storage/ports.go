// Package storage persists expenses. Each backend satisfies Repository and
// reports missing rows as core.ErrNotFound.
package storage

import (
	"context"

	"expenses/internal/core"
)

// Repository is the persistence contract shared by every backend.
type Repository interface {
	// List returns the expenses matching f, newest date first, then newest
	// creation first.
	List(ctx context.Context, f core.Filter) ([]core.Expense, error)
	Get(ctx context.Context, id int64) (core.Expense, error)
	Create(ctx context.Context, f core.ExpenseFields) (core.Expense, error)
	// Update replaces all four mutable fields of an existing record.
	Update(ctx context.Context, id int64, f core.ExpenseFields) (core.Expense, error)
	// Delete removes the record and returns it as it was before removal.
	Delete(ctx context.Context, id int64) (core.Expense, error)
	Ping(ctx context.Context) error
	Close() error
}
