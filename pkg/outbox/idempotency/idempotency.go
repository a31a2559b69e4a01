package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store is the subset of the redis client the ledger needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	IdempotencyKey(scope, id string) string
}

// Manager remembers which event IDs a worker already delivered, so a row
// re-fetched after a failed bookkeeping write is not published twice.
// Keys look like certify:idempotency:evt:<worker>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Delivered reports whether worker already recorded eventID.
func (m *Manager) Delivered(ctx context.Context, worker string, eventID uuid.UUID) (bool, error) {
	key, err := m.key(worker, eventID)
	if err != nil {
		return false, err
	}
	if _, err := m.store.Get(ctx, key); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkDelivered records eventID once the broker acknowledged it.
func (m *Manager) MarkDelivered(ctx context.Context, worker string, eventID uuid.UUID) error {
	key, err := m.key(worker, eventID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
}

func (m *Manager) key(worker string, eventID uuid.UUID) (string, error) {
	if worker == "" {
		return "", errors.New("worker name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey(fmt.Sprintf("evt:%s", worker), eventID.String()), nil
}
