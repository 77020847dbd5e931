package settings

import (
	"fmt"
	"sync"

	"github.com/docsentry/backend/pkg/config"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type RedisSettings struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	Password            string `json:"password,omitempty"`
	DB                  int    `json:"db"`
	MaxConnections      int    `json:"max_connections"`
	MinIdleConnections  int    `json:"min_idle_connections"`
	ConnTimeoutSec      int    `json:"connection_timeout"`
	SocketTimeoutSec    int    `json:"socket_timeout"`
	HealthCheckInterval int    `json:"health_check_interval"`
}

type StorageSettings struct {
	Backend string        `json:"backend"`
	Redis   RedisSettings `json:"redis_config"`
}

type ThreadingSettings struct {
	Enabled    bool `json:"enabled"`
	MaxWorkers int  `json:"max_workers"`
	BatchSize  int  `json:"batch_size"`
}

func (t ThreadingSettings) Validate() error {
	if t.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be at least 1, got %d", t.MaxWorkers)
	}
	if t.BatchSize < 1 {
		return fmt.Errorf("batch_size must be at least 1, got %d", t.BatchSize)
	}
	return nil
}

func (s StorageSettings) Validate() error {
	if s.Backend != BackendSQLite && s.Backend != BackendRedis {
		return fmt.Errorf("unknown storage backend: %q", s.Backend)
	}
	if s.Backend == BackendRedis {
		if s.Redis.Host == "" {
			return fmt.Errorf("redis host must not be empty")
		}
		if s.Redis.Port < 1 || s.Redis.Port > 65535 {
			return fmt.Errorf("invalid redis port: %d", s.Redis.Port)
		}
	}
	return nil
}

// StorageStore owns the selected backend identifier and its connection
// parameters. Activation of a new backend is committed by the storage
// manager only after the candidate passes a health check.
type StorageStore struct {
	mu        sync.RWMutex
	storage   StorageSettings
	threading ThreadingSettings
}

func NewStorageStore(cfg *config.Config) *StorageStore {
	return &StorageStore{
		storage: StorageSettings{
			Backend: cfg.Storage.Backend,
			Redis: RedisSettings{
				Host:                cfg.Redis.Host,
				Port:                cfg.Redis.Port,
				Password:            cfg.Redis.Password,
				DB:                  cfg.Redis.DB,
				MaxConnections:      cfg.Redis.Pool.MaxConnections,
				MinIdleConnections:  cfg.Redis.Pool.MinIdleConnections,
				ConnTimeoutSec:      cfg.Redis.Pool.ConnTimeoutSec,
				SocketTimeoutSec:    cfg.Redis.Pool.SocketTimeoutSec,
				HealthCheckInterval: cfg.Redis.Pool.HealthCheckInterval,
			},
		},
		threading: ThreadingSettings{
			Enabled:    cfg.Threading.Enabled,
			MaxWorkers: cfg.Threading.MaxWorkers,
			BatchSize:  cfg.Threading.BatchSize,
		},
	}
}

func (s *StorageStore) Storage() StorageSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storage
}

func (s *StorageStore) SetStorage(settings StorageSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.storage = settings
	s.mu.Unlock()
	return nil
}

func (s *StorageStore) Threading() ThreadingSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threading
}

func (s *StorageStore) SetThreading(settings ThreadingSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.threading = settings
	s.mu.Unlock()
	return nil
}
