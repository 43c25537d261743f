package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/storage"
)

// EventPublisher is the part of the AMQP client the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, id int64, e *core.Expense) error
	Close() error
}

const (
	defaultEventBuffer = 256
	drainTimeout       = 10 * time.Second
)

// ExpenseService validates requests, persists them through a Repository and
// announces successful mutations. Publishing is best effort: the stored
// record is the source of truth. Events go through a bounded queue drained
// by one background goroutine, so a slow broker never delays a response.
type ExpenseService struct {
	storage   storage.Repository
	publisher EventPublisher
	timeout   time.Duration
	logger    *log.Logger

	eventBuffer int
	eventsMu    sync.RWMutex
	events      chan pendingEvent
	eventsDone  chan struct{}
	closed      bool
}

type pendingEvent struct {
	ctx       context.Context
	eventType string
	expense   core.Expense
}

type Option func(*ExpenseService)

// WithPublisher enables event publishing.
func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

// WithTimeout bounds every storage call.
func WithTimeout(d time.Duration) Option {
	return func(s *ExpenseService) { s.timeout = d }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ExpenseService) { s.logger = l }
}

// WithEventBuffer sets how many events may wait for the publisher. Events
// beyond that are dropped and logged.
func WithEventBuffer(n int) Option {
	return func(s *ExpenseService) { s.eventBuffer = n }
}

func NewExpenseService(repo storage.Repository, opts ...Option) *ExpenseService {
	s := &ExpenseService{storage: repo, eventBuffer: defaultEventBuffer}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentExpense)

	if s.publisher != nil {
		s.events = make(chan pendingEvent, max(s.eventBuffer, 1))
		s.eventsDone = make(chan struct{})
		go s.runPublisher()
	}
	return s
}

func (s *ExpenseService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// List returns expenses matching f in display order.
func (s *ExpenseService) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	items, err := s.storage.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return items, nil
}

func (s *ExpenseService) Get(ctx context.Context, id int64) (core.Expense, error) {
	if id <= 0 {
		return core.Expense{}, core.ErrNotFound
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	e, err := s.storage.Get(ctx, id)
	if err != nil {
		return core.Expense{}, wrap("get expense", err)
	}
	return e, nil
}

// Create validates in and stores a new expense.
func (s *ExpenseService) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	fields, err := in.Fields()
	if err != nil {
		return core.Expense{}, err
	}

	sctx, cancel := s.withTimeout(ctx)
	e, err := s.storage.Create(sctx, fields)
	cancel()
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense created",
		log.NewFields().WithOperation(log.OpCreate).WithExpense(e.ID, e.Category, e.Amount.String()).ToSlice()...)
	s.publish(ctx, amqp.EventExpenseCreated, e)
	return e, nil
}

// Update replaces all four fields of the expense with id.
func (s *ExpenseService) Update(ctx context.Context, id int64, in core.ExpenseInput) (core.Expense, error) {
	fields, err := in.Fields()
	if err != nil {
		return core.Expense{}, err
	}
	if id <= 0 {
		return core.Expense{}, core.ErrNotFound
	}

	sctx, cancel := s.withTimeout(ctx)
	e, err := s.storage.Update(sctx, id, fields)
	cancel()
	if err != nil {
		return core.Expense{}, wrap("update expense", err)
	}

	s.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().WithOperation(log.OpUpdate).WithExpense(e.ID, e.Category, e.Amount.String()).ToSlice()...)
	s.publish(ctx, amqp.EventExpenseUpdated, e)
	return e, nil
}

// Delete removes the expense and returns what was removed.
func (s *ExpenseService) Delete(ctx context.Context, id int64) (core.Expense, error) {
	if id <= 0 {
		return core.Expense{}, core.ErrNotFound
	}
	sctx, cancel := s.withTimeout(ctx)
	e, err := s.storage.Delete(sctx, id)
	cancel()
	if err != nil {
		return core.Expense{}, wrap("delete expense", err)
	}

	s.logger.InfoContext(ctx, "Expense deleted",
		log.NewFields().WithOperation(log.OpDelete).WithExpense(e.ID, e.Category, e.Amount.String()).ToSlice()...)
	s.publish(ctx, amqp.EventExpenseDeleted, e)
	return e, nil
}

// Ping checks the storage connection.
func (s *ExpenseService) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.storage.Ping(ctx)
}

// publish queues the event without blocking. A full queue drops the event.
func (s *ExpenseService) publish(ctx context.Context, eventType string, e core.Expense) {
	if s.events == nil {
		return
	}
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	if s.closed {
		return
	}
	// detached so a client disconnect does not drop the event
	ev := pendingEvent{ctx: context.WithoutCancel(ctx), eventType: eventType, expense: e}
	select {
	case s.events <- ev:
	default:
		s.logger.WarnContext(ctx, "Event queue full, dropping expense event",
			log.FieldEvent, eventType,
			log.FieldExpenseID, e.ID,
			log.FieldOperation, log.OpPublish)
	}
}

func (s *ExpenseService) runPublisher() {
	defer close(s.eventsDone)
	for ev := range s.events {
		if err := s.publisher.Publish(ev.ctx, ev.eventType, ev.expense.ID, &ev.expense); err != nil {
			s.logger.ErrorContext(ev.ctx, "Failed to publish expense event",
				log.NewFields().
					WithOperation(log.OpPublish).
					WithError(err).
					WithErrorType(log.ErrorTypeNetwork).
					ToSlice()...,
			)
		}
	}
}

// stopPublisher closes the queue and waits up to drainTimeout for queued
// events to go out.
func (s *ExpenseService) stopPublisher() {
	if s.events == nil {
		return
	}
	s.eventsMu.Lock()
	if s.closed {
		s.eventsMu.Unlock()
		return
	}
	s.closed = true
	close(s.events)
	s.eventsMu.Unlock()

	select {
	case <-s.eventsDone:
	case <-time.After(drainTimeout):
		s.logger.Warn("Timed out draining expense events", log.FieldOperation, log.OpShutdown)
	}
}

// wrap keeps ErrNotFound recognisable while adding context to everything else.
func wrap(op string, err error) error {
	if errors.Is(err, core.ErrNotFound) {
		return core.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close drains pending events, then closes storage and publisher connections.
func (s *ExpenseService) Close() error {
	s.stopPublisher()

	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %w", errors.Join(errs...))
	}
	return nil
}
