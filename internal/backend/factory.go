package backend

import (
	"context"
	"fmt"

	"dompet/internal/adapters"
	"dompet/internal/amqp"
	"dompet/internal/assistant"
	"dompet/internal/log"
	"dompet/internal/memory"
	"dompet/internal/remote"
	"dompet/internal/services"
	"dompet/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case RemoteBackend:
		return f.createRemoteBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) assistantOptions(config Config) []assistant.Option {
	opts := []assistant.Option{
		assistant.WithLogger(f.logger.Logger.With(log.FieldComponent, log.ComponentAssistant)),
		assistant.WithFallback(assistant.StaticGenerator{}),
	}
	if config.Location != nil {
		opts = append(opts, assistant.WithLocation(config.Location))
	}
	return opts
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; without it the worker's sweep still exports rows.
	var publisher services.Publisher
	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			publisher = client
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewTransactionService(sqliteRepo, publisher, f.logger)
	ai := assistant.NewService(svc, svc, config.Generator, f.assistantOptions(config)...)

	f.logger.InfoContext(ctx, "Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Backend: adapters.NewLocal(svc, ai, svc.Ping),
		Cleanup: svc.Close,
	}, nil
}

func (f *DefaultFactory) createRemoteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	opts := []remote.Option{remote.WithLogger(f.logger)}
	if config.FinanceAPIToken != "" {
		opts = append(opts, remote.WithToken(config.FinanceAPIToken))
	}
	client, err := remote.New(config.FinanceAPIURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize remote backend: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized remote backend", "url", config.FinanceAPIURL)

	return &BackendResult{Backend: client}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	var store *memory.Store
	if config.DataDirectory != "" {
		store = memory.NewFromFiles(config.DataDirectory)
	} else {
		store = memory.New()
	}
	ai := assistant.NewService(store, store, config.Generator, f.assistantOptions(config)...)

	f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", config.DataDirectory)

	return &BackendResult{
		Backend: adapters.NewLocal(store, ai, nil),
	}, nil
}
