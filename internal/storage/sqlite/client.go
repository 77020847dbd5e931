package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/metrics"
	"github.com/docsentry/backend/internal/storage"
	"github.com/docsentry/backend/internal/vector"
	"github.com/docsentry/backend/pkg/logger"
)

// Client is the embedded relational backend, the zero-dependency default.
type Client struct {
	db   *sql.DB
	path string
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	c := &Client{db: db, path: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite backend initialized", zap.String("path", dbPath))
	return c, nil
}

func (c *Client) Name() string {
	return "sqlite"
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS indexed_files (
		id TEXT PRIMARY KEY,
		path TEXT UNIQUE NOT NULL,
		filename TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		file_hash TEXT NOT NULL,
		content TEXT,
		vector TEXT,
		vector_version INTEGER NOT NULL DEFAULT 0,
		last_modified INTEGER NOT NULL,
		indexed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_files_hash ON indexed_files(file_hash);
	CREATE INDEX IF NOT EXISTS idx_files_filename ON indexed_files(filename);

	CREATE TABLE IF NOT EXISTS scan_results (
		id TEXT PRIMARY KEY,
		scan_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		match_type TEXT NOT NULL,
		score REAL NOT NULL,
		matched_file_id TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_scan ON scan_results(scan_id);

	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		directory_path TEXT NOT NULL,
		status TEXT NOT NULL,
		total_files INTEGER NOT NULL DEFAULT 0,
		files_processed INTEGER NOT NULL DEFAULT 0,
		files_indexed INTEGER NOT NULL DEFAULT 0,
		files_skipped INTEGER NOT NULL DEFAULT 0,
		skip_reasons TEXT NOT NULL DEFAULT '',
		matches_found INTEGER NOT NULL DEFAULT 0,
		current_file TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		error_message TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_operations_kind ON operations(kind);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func observe(op string, start time.Time) {
	metrics.StorageRequestDuration.WithLabelValues("sqlite", op).Observe(time.Since(start).Seconds())
}

func (c *Client) UpsertIndexedFile(ctx context.Context, f *storage.IndexedFile) error {
	defer observe("upsert_file", time.Now())

	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.IndexedAt.IsZero() {
		f.IndexedAt = time.Now().UTC()
	}

	vectorJSON, err := json.Marshal(f.Vector)
	if err != nil {
		return fmt.Errorf("failed to marshal vector: %w", err)
	}

	query := `
		INSERT INTO indexed_files (id, path, filename, size_bytes, file_hash, content, vector, vector_version, last_modified, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			filename = excluded.filename,
			size_bytes = excluded.size_bytes,
			file_hash = excluded.file_hash,
			content = excluded.content,
			vector = excluded.vector,
			vector_version = excluded.vector_version,
			last_modified = excluded.last_modified,
			indexed_at = excluded.indexed_at
	`

	_, err = c.db.ExecContext(ctx, query,
		f.ID,
		f.Path,
		f.Filename,
		f.SizeBytes,
		f.FileHash,
		f.Content,
		string(vectorJSON),
		f.VectorVersion,
		f.LastModified,
		f.IndexedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert indexed file: %w", err)
	}

	// A conflicting path keeps its original id; read it back so the caller
	// always holds the stored one.
	var storedID string
	err = c.db.QueryRowContext(ctx, `SELECT id FROM indexed_files WHERE path = ?`, f.Path).Scan(&storedID)
	if err != nil {
		return fmt.Errorf("failed to read back indexed file id: %w", err)
	}
	f.ID = storedID

	return nil
}

const fileColumns = `id, path, filename, size_bytes, file_hash, content, vector, vector_version, last_modified, indexed_at`

func (c *Client) scanFile(row *sql.Row) (*storage.IndexedFile, error) {
	var f storage.IndexedFile
	var vectorJSON string
	var indexedAt int64

	err := row.Scan(&f.ID, &f.Path, &f.Filename, &f.SizeBytes, &f.FileHash,
		&f.Content, &vectorJSON, &f.VectorVersion, &f.LastModified, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan indexed file: %w", err)
	}

	if err := decodeVector(vectorJSON, &f.Vector); err != nil {
		return nil, err
	}
	f.IndexedAt = time.Unix(indexedAt, 0).UTC()
	return &f, nil
}

func decodeVector(vectorJSON string, out *vector.SparseVector) error {
	if vectorJSON == "" || vectorJSON == "null" {
		*out = vector.SparseVector{}
		return nil
	}
	if err := json.Unmarshal([]byte(vectorJSON), out); err != nil {
		return fmt.Errorf("failed to unmarshal vector: %w", err)
	}
	return nil
}

func (c *Client) GetIndexedFileByPath(ctx context.Context, path string) (*storage.IndexedFile, error) {
	defer observe("get_file", time.Now())
	row := c.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM indexed_files WHERE path = ?`, path)
	return c.scanFile(row)
}

func (c *Client) GetIndexedFileByID(ctx context.Context, id string) (*storage.IndexedFile, error) {
	defer observe("get_file", time.Now())
	row := c.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM indexed_files WHERE id = ?`, id)
	return c.scanFile(row)
}

func (c *Client) FindByHash(ctx context.Context, hash string) (*storage.IndexedFile, error) {
	defer observe("find_by_hash", time.Now())
	row := c.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM indexed_files WHERE file_hash = ? ORDER BY id LIMIT 1`, hash)
	return c.scanFile(row)
}

func (c *Client) ListIndexedFiles(ctx context.Context) ([]storage.IndexedFile, error) {
	defer observe("list_files", time.Now())

	rows, err := c.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM indexed_files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed files: %w", err)
	}
	defer rows.Close()

	var files []storage.IndexedFile
	for rows.Next() {
		var f storage.IndexedFile
		var vectorJSON string
		var indexedAt int64

		err := rows.Scan(&f.ID, &f.Path, &f.Filename, &f.SizeBytes, &f.FileHash,
			&f.Content, &vectorJSON, &f.VectorVersion, &f.LastModified, &indexedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := decodeVector(vectorJSON, &f.Vector); err != nil {
			return nil, err
		}
		f.IndexedAt = time.Unix(indexedAt, 0).UTC()
		files = append(files, f)
	}
	return files, rows.Err()
}

func (c *Client) CountIndexedFiles(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexed_files`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count indexed files: %w", err)
	}
	return count, nil
}

func (c *Client) DeleteIndexedFiles(ctx context.Context, ids []string) (int, error) {
	defer observe("delete_files", time.Now())

	if len(ids) == 0 {
		res, err := c.db.ExecContext(ctx, `DELETE FROM indexed_files`)
		if err != nil {
			return 0, fmt.Errorf("failed to delete indexed files: %w", err)
		}
		n, _ := res.RowsAffected()
		return int(n), nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM indexed_files WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete indexed files: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *Client) UpdateVectors(ctx context.Context, updates map[string]storage.VectorUpdate) error {
	defer observe("update_vectors", time.Now())

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE indexed_files SET vector = ?, vector_version = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare vector update: %w", err)
	}
	defer stmt.Close()

	for id, update := range updates {
		vectorJSON, err := json.Marshal(update.Vector)
		if err != nil {
			return fmt.Errorf("failed to marshal vector: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, string(vectorJSON), update.Version, id); err != nil {
			return fmt.Errorf("failed to update vector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vector updates: %w", err)
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

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO scan_results (id, scan_id, file_path, match_type, score, matched_file_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ScanID, r.FilePath, r.MatchType, r.Score, r.MatchedFileID, r.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert scan result: %w", err)
	}
	return nil
}

func (c *Client) GetScanResults(ctx context.Context, scanID string) ([]storage.ScanResult, error) {
	defer observe("get_results", time.Now())

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, scan_id, file_path, match_type, score, matched_file_id, created_at
		 FROM scan_results WHERE scan_id = ? ORDER BY score DESC, file_path`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scan results: %w", err)
	}
	defer rows.Close()

	var results []storage.ScanResult
	for rows.Next() {
		var r storage.ScanResult
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.ScanID, &r.FilePath, &r.MatchType, &r.Score, &r.MatchedFileID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.Timestamp = time.Unix(createdAt, 0).UTC()
		results = append(results, r)
	}
	return results, rows.Err()
}

func (c *Client) CountScanResults(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_results`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scan results: %w", err)
	}
	return count, nil
}

func (c *Client) CountDistinctScans(ctx context.Context) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT scan_id) FROM scan_results`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct scans: %w", err)
	}
	return count, nil
}

func (c *Client) SaveOperation(ctx context.Context, op *storage.Operation) error {
	defer observe("save_operation", time.Now())

	var completedAt interface{}
	if op.CompletedAt != nil {
		completedAt = op.CompletedAt.Unix()
	}

	var skipReasons string
	if len(op.SkipReasons) > 0 {
		encoded, err := json.Marshal(op.SkipReasons)
		if err != nil {
			return fmt.Errorf("failed to marshal skip reasons: %w", err)
		}
		skipReasons = string(encoded)
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO operations (id, kind, directory_path, status, total_files, files_processed,
			files_indexed, files_skipped, skip_reasons, matches_found, current_file, started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total_files = excluded.total_files,
			files_processed = excluded.files_processed,
			files_indexed = excluded.files_indexed,
			files_skipped = excluded.files_skipped,
			skip_reasons = excluded.skip_reasons,
			matches_found = excluded.matches_found,
			current_file = excluded.current_file,
			completed_at = excluded.completed_at,
			error_message = excluded.error_message
	`,
		op.ID, op.Kind, op.DirectoryPath, op.Status, op.TotalFiles, op.FilesProcessed,
		op.FilesIndexed, op.FilesSkipped, skipReasons, op.MatchesFound, op.CurrentFile,
		op.StartedAt.Unix(), completedAt, op.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to save operation: %w", err)
	}
	return nil
}

func (c *Client) GetOperation(ctx context.Context, id string) (*storage.Operation, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, kind, directory_path, status, total_files, files_processed, files_indexed,
			files_skipped, skip_reasons, matches_found, current_file, started_at, completed_at, error_message
		FROM operations WHERE id = ?`, id)
	return scanOperation(row.Scan)
}

func (c *Client) ListOperations(ctx context.Context, kind string) ([]storage.Operation, error) {
	query := `
		SELECT id, kind, directory_path, status, total_files, files_processed, files_indexed,
			files_skipped, skip_reasons, matches_found, current_file, started_at, completed_at, error_message
		FROM operations`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []storage.Operation
	for rows.Next() {
		op, err := scanOperation(rows.Scan)
		if err != nil {
			return nil, err
		}
		ops = append(ops, *op)
	}
	return ops, rows.Err()
}

func scanOperation(scan func(...interface{}) error) (*storage.Operation, error) {
	var op storage.Operation
	var skipReasons string
	var startedAt int64
	var completedAt sql.NullInt64

	err := scan(&op.ID, &op.Kind, &op.DirectoryPath, &op.Status, &op.TotalFiles,
		&op.FilesProcessed, &op.FilesIndexed, &op.FilesSkipped, &skipReasons, &op.MatchesFound,
		&op.CurrentFile, &startedAt, &completedAt, &op.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan operation: %w", err)
	}

	if skipReasons != "" {
		if err := json.Unmarshal([]byte(skipReasons), &op.SkipReasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skip reasons: %w", err)
		}
	}
	op.StartedAt = time.Unix(startedAt, 0).UTC()
	if completedAt.Valid {
		t := time.Unix(completedAt.Int64, 0).UTC()
		op.CompletedAt = &t
	}
	return &op, nil
}

func (c *Client) Ping(ctx context.Context) storage.HealthStatus {
	start := time.Now()
	var one int
	err := c.db.QueryRowContext(ctx, `SELECT 1`).Scan(&one)
	latency := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		return storage.HealthStatus{Backend: "sqlite", Healthy: false, LatencyMS: latency, Message: err.Error()}
	}
	return storage.HealthStatus{Backend: "sqlite", Healthy: true, LatencyMS: latency}
}

func (c *Client) PoolStats() storage.PoolStats {
	stats := c.db.Stats()
	return storage.PoolStats{
		Backend:  "sqlite",
		MaxConns: stats.MaxOpenConnections,
		InUse:    stats.InUse,
		Idle:     stats.Idle,
	}
}
