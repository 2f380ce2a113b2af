package backend

import (
	"context"
	"errors"
	"fmt"

	"faturas/internal/gateway"
	"faturas/internal/gateway/memory"
	applog "faturas/internal/log"
	"faturas/internal/queue"
	"faturas/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		gw       gateway.Gateway
		local    *storage.Repository
		cleanups []CleanupFunc
	)
	cleanup := func() error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			errs = append(errs, cleanups[i]())
		}
		return errors.Join(errs...)
	}

	switch config.Type {
	case MemoryBackend:
		gw = memory.New()
		f.logger.Info("Initialized memory backend")
	case SQLiteBackend:
		repo, err := storage.OpenSQLite(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		gw, local = repo, repo
		cleanups = append(cleanups, repo.Close)
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case PostgresBackend:
		repo, err := storage.OpenPostgres(config.PostgresDSN, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		gw = repo
		cleanups = append(cleanups, repo.Close)
		f.logger.Info("Initialized Postgres backend")
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	slot, err := f.queueSlot(config, &local, &cleanups)
	if err != nil {
		cleanup()
		return nil, err
	}
	q, err := queue.Open(ctx, slot, queue.WithLogger(f.logger))
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open offline queue: %w", err)
	}

	f.logger.Info("Initialized offline queue",
		"queue", config.Queue,
		applog.FieldPending, q.Len())

	return &BackendResult{
		Gateway: gw,
		Queue:   q,
		Cleanup: cleanup,
	}, nil
}

// queueSlot picks the queue persistence. A sqlite queue reuses the sqlite
// gateway's file when there is one.
func (f *DefaultFactory) queueSlot(config Config, local **storage.Repository, cleanups *[]CleanupFunc) (queue.Slot, error) {
	switch config.Queue {
	case MemoryQueue:
		f.logger.Warn("Offline queue is not persisted")
		return queue.NewMemorySlot(), nil
	case FileQueue:
		slot, err := queue.NewFileSlot(config.QueueFile)
		if err != nil {
			return nil, fmt.Errorf("open queue file: %w", err)
		}
		return slot, nil
	case SQLiteQueue:
		if *local == nil {
			repo, err := storage.OpenSQLite(config.SQLiteDBPath, f.logger)
			if err != nil {
				return nil, fmt.Errorf("open local queue database: %w", err)
			}
			*local = repo
			*cleanups = append(*cleanups, repo.Close)
		}
		return (*local).QueueSlot(storage.DefaultQueueSlot), nil
	}
	return nil, fmt.Errorf("unsupported queue type: %s", config.Queue)
}
