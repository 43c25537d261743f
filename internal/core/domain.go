package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the wire and storage format of an expense date.
const DateLayout = "2006-01-02"

const (
	MaxDescriptionLength = 255
	MaxCategoryLength    = 50
)

type (
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// Expense is one persisted record.
	Expense struct {
		ID          int64     `json:"id"`
		Description string    `json:"description"`
		Amount      Money     `json:"amount"`
		Category    string    `json:"category"`
		Date        Date      `json:"date"`
		CreatedAt   time.Time `json:"created_at"`
	}

	// ExpenseFields are the four mutable attributes shared by create and replace.
	ExpenseFields struct {
		Description string
		Amount      Money
		Category    string
		Date        Date
	}

	// ExpenseInput is the raw request shape, before validation.
	ExpenseInput struct {
		Description string `json:"description"`
		Amount      string `json:"amount"`
		Category    string `json:"category"`
		Date        string `json:"date"`
	}

	// Filter narrows a listing. The zero value matches every record.
	Filter struct {
		Category string
	}
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("expense not found")
)

// InputError is an ErrInvalidInput carrying a message safe to show to callers.
type InputError struct {
	Msg string
}

func (e *InputError) Error() string { return e.Msg }

func (e *InputError) Is(target error) bool { return target == ErrInvalidInput }

var (
	ErrMissingFields      = &InputError{Msg: "All fields are required"}
	ErrInvalidAmount      = &InputError{Msg: "Amount must be a number with at most two decimals"}
	ErrAmountOutOfRange   = &InputError{Msg: "Amount is out of range"}
	ErrInvalidDate        = &InputError{Msg: "Date must be formatted as YYYY-MM-DD"}
	ErrDescriptionTooLong = &InputError{Msg: "Description is too long (max 255 characters)"}
	ErrCategoryTooLong    = &InputError{Msg: "Category is too long (max 50 characters)"}
	ErrInvalidID          = &InputError{Msg: "Invalid expense id"}
	ErrInvalidBody        = &InputError{Msg: "Invalid request body"}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingFields
	}
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a plain date or a full RFC 3339 timestamp, keeping
// only the calendar part.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if len(s) > len(DateLayout) {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*d = NewDate(t.Year(), int(t.Month()), t.Day())
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (m Money) Validate() error {
	if m.Cents == 0 {
		return ErrMissingFields
	}
	if m.Cents > MaxAmountCents || m.Cents < -MaxAmountCents {
		return ErrAmountOutOfRange
	}
	return nil
}

func (f ExpenseFields) Validate() error {
	if f.Description == "" || f.Category == "" {
		return ErrMissingFields
	}
	if err := f.Date.Validate(); err != nil {
		return err
	}
	if err := f.Amount.Validate(); err != nil {
		return err
	}
	if utf8.RuneCountInString(f.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if utf8.RuneCountInString(f.Category) > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	return nil
}

// Fields checks presence of every field and converts the input into typed
// values. Presence is checked first so that a request missing any field always
// reports ErrMissingFields. Description and category are free text: only the
// empty string is missing, whitespace is kept as sent.
func (in ExpenseInput) Fields() (ExpenseFields, error) {
	if in.Description == "" ||
		strings.TrimSpace(in.Amount) == "" ||
		in.Category == "" ||
		strings.TrimSpace(in.Date) == "" {
		return ExpenseFields{}, ErrMissingFields
	}

	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return ExpenseFields{}, err
	}
	date, err := ParseDate(in.Date)
	if err != nil {
		return ExpenseFields{}, err
	}

	f := ExpenseFields{
		Description: in.Description,
		Amount:      amount,
		Category:    in.Category,
		Date:        date,
	}
	if err := f.Validate(); err != nil {
		return ExpenseFields{}, err
	}
	return f, nil
}

// Fields returns the mutable attributes of a stored record.
func (e Expense) Fields() ExpenseFields {
	return ExpenseFields{
		Description: e.Description,
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
	}
}

// Matches reports whether the expense passes the filter.
func (f Filter) Matches(e Expense) bool {
	return f.Category == "" || e.Category == f.Category
}

// Sum returns the total amount of the given expenses.
func Sum(expenses []Expense) Money {
	var total int64
	for _, e := range expenses {
		total += e.Amount.Cents
	}
	return Money{Cents: total}
}
