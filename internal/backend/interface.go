package backend

import (
	"context"

	"faturas/internal/gateway"
	"faturas/internal/queue"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the gateway and queue built for a config, plus
// the cleanup releasing their connections.
type BackendResult struct {
	Gateway gateway.Gateway
	Queue   *queue.Store
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite file, used by the sqlite gateway and the sqlite queue
	SQLiteDBPath string

	// Postgres specific
	PostgresDSN string

	Queue     QueueType
	QueueFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// QueueType selects where the offline queue is persisted.
type QueueType string

const (
	FileQueue   QueueType = "file"
	SQLiteQueue QueueType = "sqlite"
	MemoryQueue QueueType = "memory"
)

func (qt QueueType) IsValid() bool {
	switch qt {
	case FileQueue, SQLiteQueue, MemoryQueue:
		return true
	default:
		return false
	}
}
