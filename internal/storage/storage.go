package storage

import (
	"context"
	"errors"
	"time"

	"github.com/docsentry/backend/internal/vector"
)

var ErrNotFound = errors.New("record not found")

// IndexedFile is one persisted record per successfully indexed document.
// Content keeps the normalized extracted text so a vocabulary refit can
// recompute every vector without touching the filesystem again.
type IndexedFile struct {
	ID            string              `json:"id"`
	Path          string              `json:"path"`
	Filename      string              `json:"filename"`
	SizeBytes     int64               `json:"size_bytes"`
	FileHash      string              `json:"file_hash"`
	Content       string              `json:"-"`
	Vector        vector.SparseVector `json:"-"`
	VectorVersion int64               `json:"vector_version"`
	LastModified  int64               `json:"last_modified"`
	IndexedAt     time.Time           `json:"indexed_at"`
}

// ScanResult is one immutable match found during a scan.
type ScanResult struct {
	ID            string    `json:"id"`
	ScanID        string    `json:"scan_id"`
	FilePath      string    `json:"file_path"`
	MatchType     string    `json:"match_type"`
	Score         float64   `json:"score"`
	MatchedFileID string    `json:"matched_file_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// Operation is the persisted record of an index or scan job, retained after
// completion for history and listing.
type Operation struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	DirectoryPath  string         `json:"directory_path"`
	Status         string         `json:"status"`
	TotalFiles     int            `json:"total_files"`
	FilesProcessed int            `json:"files_processed"`
	FilesIndexed   int            `json:"files_indexed"`
	FilesSkipped   int            `json:"files_skipped"`
	SkipReasons    map[string]int `json:"skip_reasons,omitempty"`
	MatchesFound   int            `json:"matches_found"`
	CurrentFile    string         `json:"current_file"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// VectorUpdate rewrites one stored vector during a corpus-wide refit.
type VectorUpdate struct {
	Vector  vector.SparseVector
	Version int64
}

type HealthStatus struct {
	Backend   string  `json:"backend"`
	Healthy   bool    `json:"healthy"`
	LatencyMS float64 `json:"latency_ms"`
	Message   string  `json:"message,omitempty"`
}

type PoolStats struct {
	Backend  string `json:"backend"`
	MaxConns int    `json:"max_connections"`
	InUse    int    `json:"in_use"`
	Idle     int    `json:"idle"`
}

// Backend is the contract both implementations satisfy. Upsert is atomic
// overwrite-by-path; reads never return partial records.
type Backend interface {
	Name() string

	UpsertIndexedFile(ctx context.Context, f *IndexedFile) error
	GetIndexedFileByPath(ctx context.Context, path string) (*IndexedFile, error)
	GetIndexedFileByID(ctx context.Context, id string) (*IndexedFile, error)
	FindByHash(ctx context.Context, hash string) (*IndexedFile, error)
	ListIndexedFiles(ctx context.Context) ([]IndexedFile, error)
	CountIndexedFiles(ctx context.Context) (int, error)
	// DeleteIndexedFiles removes the given ids, or everything when ids is
	// empty. Returns the number of records deleted.
	DeleteIndexedFiles(ctx context.Context, ids []string) (int, error)
	// UpdateVectors bulk-rewrites vectors after a vocabulary refit.
	UpdateVectors(ctx context.Context, updates map[string]VectorUpdate) error

	AddScanResult(ctx context.Context, r *ScanResult) error
	GetScanResults(ctx context.Context, scanID string) ([]ScanResult, error)
	CountScanResults(ctx context.Context) (int, error)
	CountDistinctScans(ctx context.Context) (int, error)

	SaveOperation(ctx context.Context, op *Operation) error
	GetOperation(ctx context.Context, id string) (*Operation, error)
	ListOperations(ctx context.Context, kind string) ([]Operation, error)

	Ping(ctx context.Context) HealthStatus
	PoolStats() PoolStats
	Close() error
}
