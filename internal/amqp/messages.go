package amqp

import (
	"encoding/json"
	"time"

	"expenses/internal/core"
)

// Event types published after a successful mutation.
const (
	EventExpenseCreated = "expense.created"
	EventExpenseUpdated = "expense.updated"
	EventExpenseDeleted = "expense.deleted"
)

// ExpenseEvent notifies downstream consumers that a record changed. Expense
// holds the record after the change, or the removed record for deletions.
type ExpenseEvent struct {
	Type      string        `json:"type"`
	ID        int64         `json:"id"`
	Expense   *core.Expense `json:"expense,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

func NewExpenseEvent(eventType string, id int64, e *core.Expense) *ExpenseEvent {
	return &ExpenseEvent{
		Type:      eventType,
		ID:        id,
		Expense:   e,
		Timestamp: time.Now().UTC(),
	}
}

func (m *ExpenseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseEventFromJSON(data []byte) (*ExpenseEvent, error) {
	var msg ExpenseEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
