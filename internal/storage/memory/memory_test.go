package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"expenses/internal/core"
	"expenses/internal/storage"
)

var _ storage.Repository = (*Store)(nil)

func fields(desc string, cents int64, cat string, d core.Date) core.ExpenseFields {
	return core.ExpenseFields{Description: desc, Amount: core.Money{Cents: cents}, Category: cat, Date: d}
}

func fixedClock() func() time.Time {
	t := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	e, err := s.Create(ctx, fields("Coffee", 450, "Food", core.NewDate(2024, 1, 15)))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.ID != 1 || e.CreatedAt.IsZero() {
		t.Fatalf("unexpected record: %+v", e)
	}

	got, err := s.Get(ctx, e.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != e {
		t.Fatalf("Get = %+v, want %+v", got, e)
	}

	if _, err := s.Create(ctx, fields("", 450, "Food", core.NewDate(2024, 1, 15))); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestStore_ListOrderAndFilter(t *testing.T) {
	s := New().WithClock(fixedClock())
	ctx := context.Background()

	mustCreate := func(desc, cat string, d core.Date) int64 {
		e, err := s.Create(ctx, fields(desc, 100, cat, d))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		return e.ID
	}
	old := mustCreate("old", "Food", core.NewDate(2024, 1, 1))
	newer1 := mustCreate("newer1", "Bills", core.NewDate(2024, 2, 1))
	newer2 := mustCreate("newer2", "Food", core.NewDate(2024, 2, 1))

	all, _ := s.List(ctx, core.Filter{})
	want := []int64{newer2, newer1, old}
	if len(all) != len(want) {
		t.Fatalf("List len = %d", len(all))
	}
	for i, id := range want {
		if all[i].ID != id {
			t.Fatalf("List[%d].ID = %d, want %d", i, all[i].ID, id)
		}
	}

	food, _ := s.List(ctx, core.Filter{Category: "Food"})
	if len(food) != 2 || food[0].ID != newer2 || food[1].ID != old {
		t.Fatalf("filtered list = %+v", food)
	}

	none, _ := s.List(ctx, core.Filter{Category: "Travel"})
	if none == nil || len(none) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", none)
	}
}

func TestStore_UpdateAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	e, _ := s.Create(ctx, fields("Coffee", 450, "Food", core.NewDate(2024, 1, 15)))

	upd, err := s.Update(ctx, e.ID, fields("Tea", 300, "Drinks", core.NewDate(2024, 1, 16)))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if upd.Description != "Tea" || upd.Amount.Cents != 300 || upd.Category != "Drinks" || upd.Date.String() != "2024-01-16" {
		t.Fatalf("unexpected update result: %+v", upd)
	}
	if !upd.CreatedAt.Equal(e.CreatedAt) || upd.ID != e.ID {
		t.Fatalf("update must keep id and created_at")
	}

	if _, err := s.Update(ctx, 99, fields("x", 1, "y", core.NewDate(2024, 1, 1))); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Update missing = %v", err)
	}

	del, err := s.Delete(ctx, e.ID)
	if err != nil || del.ID != e.ID {
		t.Fatalf("Delete = %+v, %v", del, err)
	}
	if _, err := s.Get(ctx, e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("Get after delete = %v", err)
	}
	if _, err := s.Delete(ctx, e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second Delete = %v", err)
	}

	// ids are never reused
	next, _ := s.Create(ctx, fields("Bread", 200, "Food", core.NewDate(2024, 1, 17)))
	if next.ID == e.ID {
		t.Fatalf("id %d reused", next.ID)
	}
}
