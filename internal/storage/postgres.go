package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"expenses/internal/core"
)

// The amount column is DECIMAL(10,2); the conversion to and from cents
// happens in SQL so no float ever touches the value.
const pgColumns = `id, description, (amount * 100)::bigint, category, date, created_at`

// PostgresOptions tunes the connection pool.
type PostgresOptions struct {
	MaxConns         int32
	StatementTimeout time.Duration
}

// PostgresStore keeps expenses in the PostgreSQL expenses table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore runs the embedded migrations against dsn and opens a pool.
func NewPostgresStore(ctx context.Context, dsn string, opts PostgresOptions) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.StatementTimeout > 0 {
		cfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}

	if err := RunPostgresMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	query := `SELECT ` + pgColumns + ` FROM expenses`
	var args []any
	if f.Category != "" {
		query += ` WHERE category = $1`
		args = append(args, f.Category)
	}
	query += ` ORDER BY date DESC, created_at DESC, id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanPgExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (core.Expense, error) {
	if !serialID(id) {
		return core.Expense{}, core.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM expenses WHERE id = $1`, id)
	e, err := scanPgExpense(row)
	if err != nil {
		return core.Expense{}, pgErr("get expense", err)
	}
	return e, nil
}

func (s *PostgresStore) Create(ctx context.Context, f core.ExpenseFields) (core.Expense, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO expenses (description, amount, category, date)
		 VALUES ($1, $2::bigint / 100.0, $3, $4::date)
		 RETURNING `+pgColumns,
		f.Description, f.Amount.Cents, f.Category, f.Date.String())
	e, err := scanPgExpense(row)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) Update(ctx context.Context, id int64, f core.ExpenseFields) (core.Expense, error) {
	if !serialID(id) {
		return core.Expense{}, core.ErrNotFound
	}
	row := s.pool.QueryRow(ctx,
		`UPDATE expenses
		 SET description = $1, amount = $2::bigint / 100.0, category = $3, date = $4::date
		 WHERE id = $5
		 RETURNING `+pgColumns,
		f.Description, f.Amount.Cents, f.Category, f.Date.String(), id)
	e, err := scanPgExpense(row)
	if err != nil {
		return core.Expense{}, pgErr("update expense", err)
	}
	return e, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) (core.Expense, error) {
	if !serialID(id) {
		return core.Expense{}, core.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `DELETE FROM expenses WHERE id = $1 RETURNING `+pgColumns, id)
	e, err := scanPgExpense(row)
	if err != nil {
		return core.Expense{}, pgErr("delete expense", err)
	}
	return e, nil
}

// serialID reports whether id fits the SERIAL primary key.
func serialID(id int64) bool {
	return id > 0 && id <= math.MaxInt32
}

func scanPgExpense(row pgx.Row) (core.Expense, error) {
	var (
		e         core.Expense
		date      time.Time
		createdAt *time.Time
	)
	if err := row.Scan(&e.ID, &e.Description, &e.Amount.Cents, &e.Category, &date, &createdAt); err != nil {
		return core.Expense{}, err
	}
	e.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	if createdAt != nil {
		e.CreatedAt = createdAt.UTC()
	}
	return e, nil
}

func pgErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
