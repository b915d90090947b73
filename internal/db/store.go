package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"examprephub/internal/config"
	"examprephub/internal/logger"
)

// ErrNotFound is returned by Get for a key that was never written or was deleted.
var ErrNotFound = errors.New("document not found")

// Store keeps whole JSON documents by key. Writes replace the previous value
// (last write wins); there are no partial updates.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open connects the backend selected by cfg.StorageDriver.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (Store, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn("Using in-memory storage; all learner data is lost on restart")
		return NewMemoryStore(), nil
	case config.StorageSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath, log)
	case config.StoragePostgres:
		return NewDB(ctx, cfg.DatabaseURL, log)
	case config.StorageRedis:
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPrefix, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// MemoryStore is a process-local Store, used in tests and when STORAGE_DRIVER=memory.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
