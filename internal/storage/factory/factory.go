package factory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/internal/storage"
	storageredis "github.com/docsentry/backend/internal/storage/redis"
	storagesqlite "github.com/docsentry/backend/internal/storage/sqlite"
	"github.com/docsentry/backend/pkg/logger"
)

// Open builds a backend from the given settings without activating it.
func Open(ctx context.Context, s settings.StorageSettings, sqlitePath string) (storage.Backend, error) {
	switch s.Backend {
	case settings.BackendSQLite:
		return storagesqlite.NewClient(sqlitePath)
	case settings.BackendRedis:
		return storageredis.NewClient(ctx, s.Redis)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", s.Backend)
	}
}

// Manager owns the active backend. Switching is fail-closed: the candidate
// must open and pass a health check before it replaces the current backend,
// so a bad switch leaves the old backend serving.
type Manager struct {
	mu         sync.RWMutex
	backend    storage.Backend
	sqlitePath string
}

func NewManager(ctx context.Context, s settings.StorageSettings, sqlitePath string) (*Manager, error) {
	backend, err := Open(ctx, s, sqlitePath)
	if err != nil {
		return nil, err
	}
	return &Manager{backend: backend, sqlitePath: sqlitePath}, nil
}

func (m *Manager) Backend() storage.Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend
}

func (m *Manager) Switch(ctx context.Context, s settings.StorageSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil && m.backend.Name() == s.Backend {
		// Same backend kind; for redis the connection parameters may have
		// changed, so rebuild anyway.
		if s.Backend == settings.BackendSQLite {
			return nil
		}
	}

	candidate, err := Open(ctx, s, m.sqlitePath)
	if err != nil {
		return fmt.Errorf("failed to open %s backend: %w", s.Backend, err)
	}
	if health := candidate.Ping(ctx); !health.Healthy {
		candidate.Close()
		return fmt.Errorf("%s backend failed health check: %s", s.Backend, health.Message)
	}

	old := m.backend
	m.backend = candidate
	if old != nil {
		if err := old.Close(); err != nil {
			logger.Warn("Failed to close previous storage backend",
				zap.String("backend", old.Name()), zap.Error(err))
		}
	}

	logger.Info("Storage backend switched", zap.String("backend", s.Backend))
	return nil
}

// TestRedis checks connectivity with the given parameters without touching
// the active backend.
func TestRedis(ctx context.Context, cfg settings.RedisSettings) storage.HealthStatus {
	client, err := storageredis.NewClient(ctx, cfg)
	if err != nil {
		return storage.HealthStatus{Backend: "redis", Healthy: false, Message: err.Error()}
	}
	defer client.Close()
	return client.Ping(ctx)
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backend == nil {
		return nil
	}
	err := m.backend.Close()
	m.backend = nil
	return err
}
