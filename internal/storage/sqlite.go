package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"expenses/internal/core"

	_ "modernc.org/sqlite"
)

const sqlitePragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

const sqliteColumns = `id, description, amount_cents, category, date, created_at`

// SQLiteStore keeps expenses in a single SQLite file. Amounts are stored as
// integer cents.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and runs
// the embedded migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + sqlitePragmas
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunSQLiteMigrations(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) List(ctx context.Context, f core.Filter) ([]core.Expense, error) {
	query := `SELECT ` + sqliteColumns + ` FROM expenses`
	var args []any
	if f.Category != "" {
		query += ` WHERE category = ?`
		args = append(args, f.Category)
	}
	query += ` ORDER BY date DESC, created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanSQLiteExpense(rows)
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

func (s *SQLiteStore) Get(ctx context.Context, id int64) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM expenses WHERE id = ?`, id)
	e, err := scanSQLiteExpense(row)
	if err != nil {
		return core.Expense{}, sqliteErr("get expense", err)
	}
	return e, nil
}

func (s *SQLiteStore) Create(ctx context.Context, f core.ExpenseFields) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO expenses (description, amount_cents, category, date)
		 VALUES (?, ?, ?, ?)
		 RETURNING `+sqliteColumns,
		f.Description, f.Amount.Cents, f.Category, f.Date.String())
	e, err := scanSQLiteExpense(row)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	return e, nil
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, f core.ExpenseFields) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE expenses
		 SET description = ?, amount_cents = ?, category = ?, date = ?
		 WHERE id = ?
		 RETURNING `+sqliteColumns,
		f.Description, f.Amount.Cents, f.Category, f.Date.String(), id)
	e, err := scanSQLiteExpense(row)
	if err != nil {
		return core.Expense{}, sqliteErr("update expense", err)
	}
	return e, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) (core.Expense, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM expenses WHERE id = ? RETURNING `+sqliteColumns, id)
	e, err := scanSQLiteExpense(row)
	if err != nil {
		return core.Expense{}, sqliteErr("delete expense", err)
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteExpense(row rowScanner) (core.Expense, error) {
	var (
		e         core.Expense
		date      string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.Description, &e.Amount.Cents, &e.Category, &date, &createdAt); err != nil {
		return core.Expense{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	e.Date = d
	if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return core.Expense{}, fmt.Errorf("stored created_at %q: %w", createdAt, err)
	}
	return e, nil
}

func sqliteErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
