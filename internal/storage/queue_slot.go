package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultQueueSlot is the row name holding the offline mutation queue.
const DefaultQueueSlot = "offline_mutation_queue"

// QueueSlot stores the serialized queue in one queue_state row. It
// satisfies queue.Slot.
type QueueSlot struct {
	repo *Repository
	name string
}

func (r *Repository) QueueSlot(name string) *QueueSlot {
	if name == "" {
		name = DefaultQueueSlot
	}
	return &QueueSlot{repo: r, name: name}
}

func (s *QueueSlot) Load(ctx context.Context) ([]byte, error) {
	var data string
	err := s.repo.db.QueryRowContext(ctx, s.repo.rebind("SELECT data FROM queue_state WHERE name = ?"), s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load queue slot %s: %w", s.name, err)
	}
	return []byte(data), nil
}

func (s *QueueSlot) Save(ctx context.Context, data []byte) error {
	_, err := s.repo.db.ExecContext(ctx, s.repo.rebind(`INSERT INTO queue_state (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`),
		s.name, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save queue slot %s: %w", s.name, err)
	}
	return nil
}
