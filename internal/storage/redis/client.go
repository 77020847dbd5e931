package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/metrics"
	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/internal/storage"
	"github.com/docsentry/backend/internal/vector"
	"github.com/docsentry/backend/pkg/logger"
	"github.com/docsentry/backend/pkg/retry"
)

// Key layout:
//
//	file:<id>             JSON-encoded IndexedFile
//	filepath:<path>       id owning that path
//	filehash:<hash>       set of ids sharing the fingerprint
//	files                 set of all file ids
//	result:<scan>:<id>    JSON-encoded ScanResult
//	scanresults:<scan>    list of result ids in insertion order
//	scans                 set of scan ids
//	op:<id>               JSON-encoded Operation
//	ops                   set of operation ids
const (
	keyFiles = "files"
	keyScans = "scans"
	keyOps   = "ops"
)

func fileKey(id string) string          { return "file:" + id }
func pathKey(path string) string        { return "filepath:" + path }
func hashKey(hash string) string        { return "filehash:" + hash }
func resultKey(scan, id string) string  { return "result:" + scan + ":" + id }
func scanResultsKey(scan string) string { return "scanresults:" + scan }
func opKey(id string) string            { return "op:" + id }

type Client struct {
	rdb *redis.Client
}

func NewClient(ctx context.Context, cfg settings.RedisSettings) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: cfg.MinIdleConnections,
		DialTimeout:  time.Duration(cfg.ConnTimeoutSec) * time.Second,
		ReadTimeout:  time.Duration(cfg.SocketTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.SocketTimeoutSec) * time.Second,
	})

	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = logger.Log
	err := retry.Do(ctx, retryCfg, func() error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis backend initialized",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)
	return &Client{rdb: rdb}, nil
}

func (c *Client) Name() string {
	return "redis"
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func observe(op string, start time.Time) {
	metrics.StorageRequestDuration.WithLabelValues("redis", op).Observe(time.Since(start).Seconds())
}

// storedFile is the wire form, carrying the fields the API-facing struct hides.
type storedFile struct {
	storage.IndexedFile
	Content string              `json:"content"`
	Vector  vector.SparseVector `json:"vector"`
}

func encodeFile(f *storage.IndexedFile) ([]byte, error) {
	return json.Marshal(storedFile{IndexedFile: *f, Content: f.Content, Vector: f.Vector})
}

func decodeFile(data []byte) (*storage.IndexedFile, error) {
	var sf storedFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal indexed file: %w", err)
	}
	f := sf.IndexedFile
	f.Content = sf.Content
	f.Vector = sf.Vector
	if f.Vector == nil {
		f.Vector = vector.SparseVector{}
	}
	return &f, nil
}

func (c *Client) UpsertIndexedFile(ctx context.Context, f *storage.IndexedFile) error {
	defer observe("upsert_file", time.Now())

	// A path that was indexed before keeps its id; the fingerprint mapping
	// for the previous content is dropped in the same transaction.
	existingID, err := c.rdb.Get(ctx, pathKey(f.Path)).Result()
	var oldHash string
	if err == nil {
		f.ID = existingID
		if data, err := c.rdb.Get(ctx, fileKey(existingID)).Bytes(); err == nil {
			if old, err := decodeFile(data); err == nil {
				oldHash = old.FileHash
			}
		}
	} else if err != redis.Nil {
		return fmt.Errorf("failed to resolve path mapping: %w", err)
	}

	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.IndexedAt.IsZero() {
		f.IndexedAt = time.Now().UTC()
	}

	data, err := encodeFile(f)
	if err != nil {
		return fmt.Errorf("failed to marshal indexed file: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, fileKey(f.ID), data, 0)
	pipe.Set(ctx, pathKey(f.Path), f.ID, 0)
	pipe.SAdd(ctx, keyFiles, f.ID)
	if oldHash != "" && oldHash != f.FileHash {
		pipe.SRem(ctx, hashKey(oldHash), f.ID)
	}
	pipe.SAdd(ctx, hashKey(f.FileHash), f.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert indexed file: %w", err)
	}
	return nil
}

func (c *Client) getFile(ctx context.Context, id string) (*storage.IndexedFile, error) {
	data, err := c.rdb.Get(ctx, fileKey(id)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get indexed file: %w", err)
	}
	return decodeFile(data)
}

func (c *Client) GetIndexedFileByPath(ctx context.Context, path string) (*storage.IndexedFile, error) {
	defer observe("get_file", time.Now())
	id, err := c.rdb.Get(ctx, pathKey(path)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path mapping: %w", err)
	}
	return c.getFile(ctx, id)
}

func (c *Client) GetIndexedFileByID(ctx context.Context, id string) (*storage.IndexedFile, error) {
	defer observe("get_file", time.Now())
	return c.getFile(ctx, id)
}

func (c *Client) FindByHash(ctx context.Context, hash string) (*storage.IndexedFile, error) {
	defer observe("find_by_hash", time.Now())

	ids, err := c.rdb.SMembers(ctx, hashKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to look up fingerprint: %w", err)
	}
	if len(ids) == 0 {
		return nil, storage.ErrNotFound
	}
	sort.Strings(ids)
	return c.getFile(ctx, ids[0])
}

func (c *Client) ListIndexedFiles(ctx context.Context) ([]storage.IndexedFile, error) {
	defer observe("list_files", time.Now())

	ids, err := c.rdb.SMembers(ctx, keyFiles).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}

	files := make([]storage.IndexedFile, 0, len(ids))
	for _, id := range ids {
		f, err := c.getFile(ctx, id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (c *Client) CountIndexedFiles(ctx context.Context) (int, error) {
	n, err := c.rdb.SCard(ctx, keyFiles).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count indexed files: %w", err)
	}
	return int(n), nil
}

func (c *Client) DeleteIndexedFiles(ctx context.Context, ids []string) (int, error) {
	defer observe("delete_files", time.Now())

	if len(ids) == 0 {
		var err error
		ids, err = c.rdb.SMembers(ctx, keyFiles).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to list indexed files: %w", err)
		}
	}

	deleted := 0
	for _, id := range ids {
		f, err := c.getFile(ctx, id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return deleted, err
		}

		pipe := c.rdb.TxPipeline()
		pipe.Del(ctx, fileKey(id))
		pipe.Del(ctx, pathKey(f.Path))
		pipe.SRem(ctx, hashKey(f.FileHash), id)
		pipe.SRem(ctx, keyFiles, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return deleted, fmt.Errorf("failed to delete indexed file: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

func (c *Client) UpdateVectors(ctx context.Context, updates map[string]storage.VectorUpdate) error {
	defer observe("update_vectors", time.Now())

	for id, update := range updates {
		f, err := c.getFile(ctx, id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}

		f.Vector = update.Vector
		f.VectorVersion = update.Version
		data, err := encodeFile(f)
		if err != nil {
			return fmt.Errorf("failed to marshal indexed file: %w", err)
		}
		if err := c.rdb.Set(ctx, fileKey(id), data, 0).Err(); err != nil {
			return fmt.Errorf("failed to update vector: %w", err)
		}
	}
	return nil
}

func (c *Client) AddScanResult(ctx context.Context, r *storage.ScanResult) error {
	defer observe("add_result", time.Now())

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal scan result: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, resultKey(r.ScanID, r.ID), data, 0)
	pipe.RPush(ctx, scanResultsKey(r.ScanID), r.ID)
	pipe.SAdd(ctx, keyScans, r.ScanID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add scan result: %w", err)
	}
	return nil
}

func (c *Client) GetScanResults(ctx context.Context, scanID string) ([]storage.ScanResult, error) {
	defer observe("get_results", time.Now())

	ids, err := c.rdb.LRange(ctx, scanResultsKey(scanID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list scan results: %w", err)
	}

	results := make([]storage.ScanResult, 0, len(ids))
	for _, id := range ids {
		data, err := c.rdb.Get(ctx, resultKey(scanID, id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get scan result: %w", err)
		}
		var r storage.ScanResult
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan result: %w", err)
		}
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FilePath < results[j].FilePath
	})
	return results, nil
}

func (c *Client) CountScanResults(ctx context.Context) (int, error) {
	scanIDs, err := c.rdb.SMembers(ctx, keyScans).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list scans: %w", err)
	}
	total := 0
	for _, scanID := range scanIDs {
		n, err := c.rdb.LLen(ctx, scanResultsKey(scanID)).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count scan results: %w", err)
		}
		total += int(n)
	}
	return total, nil
}

func (c *Client) CountDistinctScans(ctx context.Context) (int, error) {
	n, err := c.rdb.SCard(ctx, keyScans).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return int(n), nil
}

func (c *Client) SaveOperation(ctx context.Context, op *storage.Operation) error {
	defer observe("save_operation", time.Now())

	data, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to marshal operation: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, opKey(op.ID), data, 0)
	pipe.SAdd(ctx, keyOps, op.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

func (c *Client) GetOperation(ctx context.Context, id string) (*storage.Operation, error) {
	data, err := c.rdb.Get(ctx, opKey(id)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	var op storage.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operation: %w", err)
	}
	return &op, nil
}

func (c *Client) ListOperations(ctx context.Context, kind string) ([]storage.Operation, error) {
	ids, err := c.rdb.SMembers(ctx, keyOps).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	ops := make([]storage.Operation, 0, len(ids))
	for _, id := range ids {
		op, err := c.GetOperation(ctx, id)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if kind != "" && op.Kind != kind {
			continue
		}
		ops = append(ops, *op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].StartedAt.After(ops[j].StartedAt) })
	return ops, nil
}

func (c *Client) Ping(ctx context.Context) storage.HealthStatus {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	latency := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		return storage.HealthStatus{Backend: "redis", Healthy: false, LatencyMS: latency, Message: err.Error()}
	}
	return storage.HealthStatus{Backend: "redis", Healthy: true, LatencyMS: latency}
}

func (c *Client) PoolStats() storage.PoolStats {
	stats := c.rdb.PoolStats()
	return storage.PoolStats{
		Backend:  "redis",
		MaxConns: c.rdb.Options().PoolSize,
		InUse:    int(stats.TotalConns - stats.IdleConns),
		Idle:     int(stats.IdleConns),
	}
}
