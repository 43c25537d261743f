// Package memory is a process-local expense store used for development and
// tests. Its contents vanish on restart.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"expenses/internal/core"
)

type Store struct {
	mu     sync.Mutex
	items  []core.Expense
	nextID int64
	now    func() time.Time
}

func New() *Store {
	return &Store{nextID: 1, now: time.Now}
}

// WithClock replaces the creation timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *Store) List(_ context.Context, f core.Filter) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Expense, 0, len(s.items))
	for _, e := range s.items {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b core.Expense) int {
		if c := b.Date.Compare(a.Date.Time); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) Get(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.index(id); i >= 0 {
		return s.items[i], nil
	}
	return core.Expense{}, core.ErrNotFound
}

// Create stores the expense under the next id.
func (s *Store) Create(_ context.Context, f core.ExpenseFields) (core.Expense, error) {
	if err := f.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := core.Expense{
		ID:          s.nextID,
		Description: f.Description,
		Amount:      f.Amount,
		Category:    f.Category,
		Date:        f.Date,
		CreatedAt:   s.now().UTC(),
	}
	s.nextID++
	s.items = append(s.items, e)
	return e, nil
}

func (s *Store) Update(_ context.Context, id int64, f core.ExpenseFields) (core.Expense, error) {
	if err := f.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return core.Expense{}, core.ErrNotFound
	}
	e := &s.items[i]
	e.Description = f.Description
	e.Amount = f.Amount
	e.Category = f.Category
	e.Date = f.Date
	return *e, nil
}

func (s *Store) Delete(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return core.Expense{}, core.ErrNotFound
	}
	e := s.items[i]
	s.items = slices.Delete(s.items, i, i+1)
	return e, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) index(id int64) int {
	return slices.IndexFunc(s.items, func(e core.Expense) bool { return e.ID == id })
}
