package ops

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/metrics"
	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/internal/storage"
	"github.com/docsentry/backend/internal/vector"
	"github.com/docsentry/backend/pkg/logger"
)

// storageProvider yields the active backend. Satisfied by factory.Manager,
// which may swap the backend between operations.
type storageProvider interface {
	Backend() storage.Backend
}

// Manager runs index and scan operations and owns the vocabulary lifecycle.
// The active vocabulary is swapped atomically after each completed index
// operation; scans keep the snapshot they started with.
type Manager struct {
	storage    storageProvider
	progress   *ProgressStore
	similarity *settings.SimilarityStore
	threading  *settings.StorageStore
	ignore     *settings.IgnoreStore

	vocab        atomic.Pointer[vector.Vocabulary]
	vocabVersion atomic.Int64
}

func NewManager(
	storageMgr storageProvider,
	progress *ProgressStore,
	similarity *settings.SimilarityStore,
	threading *settings.StorageStore,
	ignore *settings.IgnoreStore,
) *Manager {
	return &Manager{
		storage:    storageMgr,
		progress:   progress,
		similarity: similarity,
		threading:  threading,
		ignore:     ignore,
	}
}

func (m *Manager) Progress() *ProgressStore {
	return m.progress
}

// Vocabulary returns the active fit, or nil before the first index completes.
func (m *Manager) Vocabulary() *vector.Vocabulary {
	return m.vocab.Load()
}

// Bootstrap rebuilds the vocabulary from the persisted corpus so a restarted
// process can scan without re-indexing.
func (m *Manager) Bootstrap(ctx context.Context) error {
	count, err := m.storage.Backend().CountIndexedFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to count indexed files: %w", err)
	}
	if count == 0 {
		return nil
	}
	if err := m.refitVocabulary(ctx); err != nil {
		return err
	}
	logger.Info("Vocabulary rebuilt from persisted corpus",
		zap.Int("files", count),
		zap.Int64("version", m.vocabVersion.Load()),
	)
	return nil
}

// StartIndex validates the directory, registers the operation, and runs it in
// the background. Returns the operation id.
func (m *Manager) StartIndex(dir string) (string, error) {
	return m.start(KindIndex, dir, m.runIndex)
}

// StartScan is StartIndex for scan operations.
func (m *Manager) StartScan(dir string) (string, error) {
	return m.start(KindScan, dir, m.runScan)
}

func (m *Manager) start(kind, dir string, run func(context.Context, string, string)) (string, error) {
	if err := ValidateDirectory(dir); err != nil {
		return "", err
	}

	id := uuid.New().String()
	snap := m.progress.Create(id, kind, dir)
	if err := m.persistSnapshot(context.Background(), snap); err != nil {
		return "", err
	}

	metrics.OperationsStarted.WithLabelValues(kind).Inc()
	logger.Info("Operation started",
		zap.String("operation_id", id),
		zap.String("kind", kind),
		zap.String("directory", dir),
	)

	go run(context.Background(), id, dir)
	return id, nil
}

// Stop flags a running operation. Already-terminal or unknown operations
// return false.
func (m *Manager) Stop(id string) bool {
	return m.progress.Cancel(id)
}

// GetProgress serves live state when the operation is in flight and falls
// back to the persisted record for history.
func (m *Manager) GetProgress(ctx context.Context, id string) (Snapshot, error) {
	if snap, ok := m.progress.Get(id); ok {
		return snap, nil
	}

	op, err := m.storage.Backend().GetOperation(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return snapshotFromOperation(op), nil
}

func (m *Manager) ListOperations(ctx context.Context, kind string) ([]Snapshot, error) {
	ops, err := m.storage.Backend().ListOperations(ctx, kind)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(ops))
	for _, op := range ops {
		// Live state is fresher than the last persisted row.
		if snap, ok := m.progress.Get(op.ID); ok && !IsTerminal(snap.Status) {
			out = append(out, snap)
			continue
		}
		out = append(out, snapshotFromOperation(&op))
	}
	return out, nil
}

func snapshotFromOperation(op *storage.Operation) Snapshot {
	snap := Snapshot{
		TaskID:         op.ID,
		TaskType:       op.Kind,
		Status:         op.Status,
		DirectoryPath:  op.DirectoryPath,
		TotalFiles:     op.TotalFiles,
		FilesProcessed: op.FilesProcessed,
		FilesIndexed:   op.FilesIndexed,
		FilesSkipped:   op.FilesSkipped,
		SkipReasons:    op.SkipReasons,
		MatchesFound:   op.MatchesFound,
		CurrentFile:    op.CurrentFile,
		StartedAt:      op.StartedAt,
		CompletedAt:    op.CompletedAt,
		ErrorMessage:   op.ErrorMessage,
	}
	snap.recalc()
	return snap
}

func (m *Manager) persistSnapshot(ctx context.Context, snap Snapshot) error {
	return m.storage.Backend().SaveOperation(ctx, &storage.Operation{
		ID:             snap.TaskID,
		Kind:           snap.TaskType,
		DirectoryPath:  snap.DirectoryPath,
		Status:         snap.Status,
		TotalFiles:     snap.TotalFiles,
		FilesProcessed: snap.FilesProcessed,
		FilesIndexed:   snap.FilesIndexed,
		FilesSkipped:   snap.FilesSkipped,
		SkipReasons:    snap.SkipReasons,
		MatchesFound:   snap.MatchesFound,
		CurrentFile:    snap.CurrentFile,
		StartedAt:      snap.StartedAt,
		CompletedAt:    snap.CompletedAt,
		ErrorMessage:   snap.ErrorMessage,
	})
}

// finish moves an operation to its terminal status and persists the final
// snapshot. Partial progress is kept on error and stop.
func (m *Manager) finish(ctx context.Context, id, status, errMsg string) {
	now := time.Now().UTC()
	snap := m.progress.Update(id, func(s *Snapshot) {
		s.Status = status
		s.CurrentFile = ""
		s.CompletedAt = &now
		s.ErrorMessage = errMsg
	})

	if err := m.persistSnapshot(ctx, snap); err != nil {
		logger.Error("Failed to persist terminal operation state",
			zap.String("operation_id", id), zap.Error(err))
	}

	metrics.OperationsFinished.WithLabelValues(snap.TaskType, status).Inc()
	metrics.OperationDuration.WithLabelValues(snap.TaskType).Observe(now.Sub(snap.StartedAt).Seconds())

	logger.Info("Operation finished",
		zap.String("operation_id", id),
		zap.String("kind", snap.TaskType),
		zap.String("status", status),
		zap.Int("files_processed", snap.FilesProcessed),
		zap.Int("files_indexed", snap.FilesIndexed),
		zap.Int("files_skipped", snap.FilesSkipped),
		zap.Int("matches_found", snap.MatchesFound),
	)
}

// refitVocabulary fits a new vocabulary over every stored document, rewrites
// all persisted vectors against it, and swaps it in.
func (m *Manager) refitVocabulary(ctx context.Context) error {
	backend := m.storage.Backend()
	files, err := backend.ListIndexedFiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load corpus for refit: %w", err)
	}

	cfg := m.similarity.Get()
	params := vector.Params{
		NFeatures:   cfg.NFeatures,
		NgramMin:    cfg.NgramMin,
		NgramMax:    cfg.NgramMax,
		UseIDF:      cfg.UseIDF,
		SublinearTF: cfg.SublinearTF,
		MaxDF:       cfg.MaxDF,
		MinDF:       cfg.MinDF,
	}

	docs := make([]string, 0, len(files))
	for _, f := range files {
		if f.Content != "" {
			docs = append(docs, f.Content)
		}
	}

	version := m.vocabVersion.Add(1)
	vocab := vector.Fit(docs, params, version)

	updates := make(map[string]storage.VectorUpdate, len(files))
	for _, f := range files {
		var vec vector.SparseVector
		if f.Content != "" {
			vec = vocab.Transform(f.Content)
		} else {
			vec = vector.SparseVector{}
		}
		updates[f.ID] = storage.VectorUpdate{Vector: vec, Version: version}
	}
	if err := backend.UpdateVectors(ctx, updates); err != nil {
		return fmt.Errorf("failed to rewrite vectors: %w", err)
	}

	m.vocab.Store(vocab)
	metrics.VocabularyRefits.Inc()
	metrics.VocabularyTerms.Set(float64(vocab.Size()))
	metrics.IndexedFilesTotal.Set(float64(len(files)))

	logger.Info("Vocabulary refit",
		zap.Int64("version", version),
		zap.Int("terms", vocab.Size()),
		zap.Int("documents", len(docs)),
	)
	return nil
}
