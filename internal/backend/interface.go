package backend

import (
	"context"
	"time"

	"expenses/internal/services"
)

// CleanupFunc releases backend resources
type CleanupFunc func() error

// BackendResult contains the service built for the backend and its cleanup.
type BackendResult struct {
	Service *services.ExpenseService
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// PostgreSQL
	PostgresDSN      string
	MaxConns         int32
	StatementTimeout time.Duration

	// SQLite
	SQLiteDBPath string

	// AMQP publishing, optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	PostgresBackend BackendType = "postgres"
	SQLiteBackend   BackendType = "sqlite"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case PostgresBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
