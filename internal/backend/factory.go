package backend

import (
	"context"
	"fmt"

	"expenses/internal/amqp"
	"expenses/internal/log"
	"expenses/internal/services"
	"expenses/internal/storage"
	"expenses/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the configured store, attaches the optional publisher
// and wraps both in an ExpenseService.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	repo, err := f.openRepository(ctx, config)
	if err != nil {
		return nil, err
	}

	opts := []services.Option{
		services.WithLogger(f.logger),
		services.WithTimeout(config.StatementTimeout),
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(ctx, amqp.Options{
			URL:             config.AMQPURL,
			Exchange:        config.AMQPExchange,
			Queue:           config.AMQPQueue,
			ConnectAttempts: 3,
		}, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events", log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			opts = append(opts, services.WithPublisher(client))
		}
	}

	svc := services.NewExpenseService(repo, opts...)
	return &BackendResult{Service: svc, Cleanup: svc.Close}, nil
}

func (f *DefaultFactory) openRepository(ctx context.Context, config Config) (storage.Repository, error) {
	switch config.Type {
	case PostgresBackend:
		store, err := storage.NewPostgresStore(ctx, config.PostgresDSN, storage.PostgresOptions{
			MaxConns:         config.MaxConns,
			StatementTimeout: config.StatementTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
		}
		f.logger.Info("Initialized PostgreSQL backend", "max_conns", config.MaxConns)
		return store, nil
	case SQLiteBackend:
		store, err := storage.NewSQLiteStore(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return store, nil
	case MemoryBackend:
		f.logger.Warn("Using in-memory backend, data will not survive a restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
