package ops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/internal/storage"
	"github.com/docsentry/backend/internal/storage/factory"
	"github.com/docsentry/backend/pkg/config"
)

type testEnv struct {
	manager    *Manager
	storage    *factory.Manager
	similarity *settings.SimilarityStore
	ignore     *settings.IgnoreStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	storageSettings := settings.StorageSettings{Backend: settings.BackendSQLite}
	storageMgr, err := factory.NewManager(context.Background(), storageSettings, dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { storageMgr.Close() })

	cfg := &config.Config{
		Storage:   config.StorageConfig{Backend: settings.BackendSQLite},
		Threading: config.ThreadingConfig{Enabled: true, MaxWorkers: 2, BatchSize: 10},
	}
	settingsStore := settings.NewStorageStore(cfg)
	similarity := settings.NewSimilarityStore(config.SimilarityConfig{})
	ignore := settings.NewIgnoreStore([]string{"*.tmp"})

	manager := NewManager(storageMgr, NewProgressStore(), similarity, settingsStore, ignore)
	return &testEnv{
		manager:    manager,
		storage:    storageMgr,
		similarity: similarity,
		ignore:     ignore,
	}
}

func (e *testEnv) waitFor(t *testing.T, id string) Snapshot {
	t.Helper()
	return waitForManager(t, e.manager, id)
}

func waitForManager(t *testing.T, m *Manager, id string) Snapshot {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.GetProgress(context.Background(), id)
		require.NoError(t, err)
		if IsTerminal(snap.Status) {
			return snap
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("operation did not finish in time")
	return Snapshot{}
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const (
	docA = "The quarterly finance report covers revenue, expenses and projected growth for the next fiscal year."
	docB = "Customer onboarding guide describing account setup, initial configuration and support escalation paths."
	docC = "Internal security policy covering password rotation, device encryption and incident reporting duties."
)

func TestIndexDirectory(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", docA)
	writeDoc(t, dir, "b.txt", docB)
	writeDoc(t, dir, "c.txt", docC)

	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)

	snap := env.waitFor(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 3, snap.TotalFiles)
	assert.Equal(t, 3, snap.FilesProcessed)
	assert.Equal(t, 3, snap.FilesIndexed)
	assert.Zero(t, snap.FilesSkipped)
	assert.Equal(t, snap.TotalFiles, snap.FilesIndexed+snap.FilesSkipped)

	// A completed index leaves an active vocabulary behind.
	require.NotNil(t, env.manager.Vocabulary())
	assert.Greater(t, env.manager.Vocabulary().Size(), 0)

	files, err := env.storage.Backend().ListIndexedFiles(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 3)
	for _, f := range files {
		assert.NotEmpty(t, f.FileHash)
		assert.NotEmpty(t, f.Vector)
		assert.Equal(t, env.manager.Vocabulary().Version, f.VectorVersion)
	}
}

func TestIndexCountsIgnoredAsSkipped(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "keep.txt", docA)
	writeDoc(t, dir, "junk.tmp", docB)

	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)

	snap := env.waitFor(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.TotalFiles)
	assert.Equal(t, 1, snap.FilesIndexed)
	assert.Equal(t, 1, snap.FilesSkipped)
	assert.Equal(t, map[string]int{"ignored": 1}, snap.SkipReasons)

	// The ignored file never reaches storage.
	_, err = env.storage.Backend().GetIndexedFileByPath(context.Background(), filepath.Join(dir, "junk.tmp"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexShortContentFingerprintOnly(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "long.txt", docA)
	writeDoc(t, dir, "short.txt", "too short")

	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)

	snap := env.waitFor(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.FilesIndexed)
	assert.Zero(t, snap.FilesSkipped)

	// The short file carries a fingerprint but no vector, so it can still
	// produce exact matches while never entering cosine comparison.
	short, err := env.storage.Backend().GetIndexedFileByPath(context.Background(), filepath.Join(dir, "short.txt"))
	require.NoError(t, err)
	assert.NotEmpty(t, short.FileHash)
	assert.Empty(t, short.Vector)
}

func TestIndexEmptyDirectory(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.manager.StartIndex(t.TempDir())
	require.NoError(t, err)

	snap := env.waitFor(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Zero(t, snap.TotalFiles)
	assert.Equal(t, 100.0, snap.ProgressPercent)
}

func TestIndexReindexIdempotent(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", docA)

	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, id)

	id, err = env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, id)

	count, err := env.storage.Backend().CountIndexedFiles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexUnchangedFileSkipsReextraction(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()

	first := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"
	second := "lima kilo juliet india hotel golf foxtrot echo delta charlie bravo alpha"
	path := writeDoc(t, dir, "a.txt", first)

	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, id)

	info, err := os.Stat(path)
	require.NoError(t, err)

	// Same size, same mtime: the stored record is trusted as-is and the new
	// bytes are never read.
	require.NoError(t, os.WriteFile(path, []byte(second), 0644))
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	id, err = env.manager.StartIndex(dir)
	require.NoError(t, err)
	snap := env.waitFor(t, id)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.FilesIndexed)

	stored, err := env.storage.Backend().GetIndexedFileByPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, first, stored.Content)

	// A newer mtime invalidates the fast path.
	bumped := info.ModTime().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, bumped, bumped))

	id, err = env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, id)

	stored, err = env.storage.Backend().GetIndexedFileByPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, second, stored.Content)
}

func TestStartIndexValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.manager.StartIndex(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrPathNotFound)

	file := writeDoc(t, t.TempDir(), "plain.txt", docA)
	_, err = env.manager.StartIndex(file)
	assert.ErrorIs(t, err, ErrPathNotDirectory)
}

func TestScanSelfIdentity(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", docA)
	writeDoc(t, dir, "b.txt", docB)

	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, id)

	scanID, err := env.manager.StartScan(dir)
	require.NoError(t, err)
	snap := env.waitFor(t, scanID)

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 2, snap.TotalFiles)
	assert.Equal(t, 2, snap.MatchesFound)

	results, err := env.storage.Backend().GetScanResults(context.Background(), scanID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "exact", r.MatchType)
		assert.Equal(t, 1.0, r.Score)
		assert.NotEmpty(t, r.MatchedFileID)
	}
}

func TestScanByteIdenticalCopyElsewhere(t *testing.T) {
	env := newTestEnv(t)

	indexDir := t.TempDir()
	writeDoc(t, indexDir, "original.txt", docA)
	id, err := env.manager.StartIndex(indexDir)
	require.NoError(t, err)
	env.waitFor(t, id)

	scanDir := t.TempDir()
	writeDoc(t, scanDir, "leaked-copy.txt", docA)
	scanID, err := env.manager.StartScan(scanDir)
	require.NoError(t, err)
	snap := env.waitFor(t, scanID)

	assert.Equal(t, 1, snap.MatchesFound)
	results, err := env.storage.Backend().GetScanResults(context.Background(), scanID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "exact", results[0].MatchType)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestIndexExtractionFailureKeepsFingerprint(t *testing.T) {
	env := newTestEnv(t)

	indexDir := t.TempDir()
	garbage := "not a zip container, so document extraction fails"
	writeDoc(t, indexDir, "report.docx", garbage)

	id, err := env.manager.StartIndex(indexDir)
	require.NoError(t, err)
	snap := env.waitFor(t, id)

	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Zero(t, snap.FilesIndexed)
	assert.Equal(t, 1, snap.FilesSkipped)
	assert.Equal(t, map[string]int{"extraction_failed": 1}, snap.SkipReasons)

	// The record survives with its fingerprint even though no text came out.
	stored, err := env.storage.Backend().GetIndexedFileByPath(context.Background(),
		filepath.Join(indexDir, "report.docx"))
	require.NoError(t, err)
	assert.NotEmpty(t, stored.FileHash)
	assert.Empty(t, stored.Content)
	assert.Empty(t, stored.Vector)

	// A byte-identical copy elsewhere still comes back as an exact match.
	scanDir := t.TempDir()
	writeDoc(t, scanDir, "leaked.docx", garbage)

	scanID, err := env.manager.StartScan(scanDir)
	require.NoError(t, err)
	snap = env.waitFor(t, scanID)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, 1, snap.MatchesFound)

	results, err := env.storage.Backend().GetScanResults(context.Background(), scanID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "exact", results[0].MatchType)
	assert.Equal(t, 1.0, results[0].Score)
}

func TestScanNearDuplicate(t *testing.T) {
	env := newTestEnv(t)
	// High sensitivity drops the multiple-match requirement.
	_, err := env.similarity.ApplyPreset(settings.SensitivityHigh)
	require.NoError(t, err)

	indexDir := t.TempDir()
	writeDoc(t, indexDir, "original.txt", docA)
	writeDoc(t, indexDir, "other.txt", docC)
	id, err := env.manager.StartIndex(indexDir)
	require.NoError(t, err)
	env.waitFor(t, id)

	scanDir := t.TempDir()
	nearCopy := "The quarterly finance report covers revenue, expenses and projected growth for the coming fiscal year."
	writeDoc(t, scanDir, "edited.txt", nearCopy)

	scanID, err := env.manager.StartScan(scanDir)
	require.NoError(t, err)
	snap := env.waitFor(t, scanID)
	assert.Equal(t, StatusCompleted, snap.Status)

	results, err := env.storage.Backend().GetScanResults(context.Background(), scanID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score, 0.5)
	assert.Less(t, results[0].Score, 1.0)
}

func TestScanUnrelatedFindsNothing(t *testing.T) {
	env := newTestEnv(t)

	indexDir := t.TempDir()
	writeDoc(t, indexDir, "original.txt", docA)
	id, err := env.manager.StartIndex(indexDir)
	require.NoError(t, err)
	env.waitFor(t, id)

	scanDir := t.TempDir()
	writeDoc(t, scanDir, "unrelated.txt", "Completely different recipe text about baking sourdough bread with a long fermentation schedule.")

	scanID, err := env.manager.StartScan(scanDir)
	require.NoError(t, err)
	snap := env.waitFor(t, scanID)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Zero(t, snap.MatchesFound)
}

func TestScanExcludesIgnoredFiles(t *testing.T) {
	env := newTestEnv(t)

	indexDir := t.TempDir()
	writeDoc(t, indexDir, "original.txt", docA)
	id, err := env.manager.StartIndex(indexDir)
	require.NoError(t, err)
	env.waitFor(t, id)

	scanDir := t.TempDir()
	writeDoc(t, scanDir, "copy.tmp", docA)
	scanID, err := env.manager.StartScan(scanDir)
	require.NoError(t, err)
	snap := env.waitFor(t, scanID)

	// Ignored files are filtered out of the walk, not counted as skipped.
	assert.Zero(t, snap.TotalFiles)
	assert.Zero(t, snap.MatchesFound)
}

func TestScanHistoryImmutable(t *testing.T) {
	env := newTestEnv(t)

	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", docA)
	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, id)

	scanID, err := env.manager.StartScan(dir)
	require.NoError(t, err)
	env.waitFor(t, scanID)

	before, err := env.storage.Backend().GetScanResults(context.Background(), scanID)
	require.NoError(t, err)
	require.Len(t, before, 1)

	// Wiping the corpus must not rewrite recorded history.
	_, err = env.storage.Backend().DeleteIndexedFiles(context.Background(), nil)
	require.NoError(t, err)

	after, err := env.storage.Backend().GetScanResults(context.Background(), scanID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStopBeforeAndAfterCompletion(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", docA)

	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, id)

	assert.False(t, env.manager.Stop(id))
	assert.False(t, env.manager.Stop("unknown-id"))
}

// faultingBackend rejects in-flight progress writes while leaving everything
// else to the real backend.
type faultingBackend struct {
	storage.Backend
}

func (b *faultingBackend) SaveOperation(ctx context.Context, op *storage.Operation) error {
	if op.Status == StatusCounting {
		return errors.New("backend unreachable")
	}
	return b.Backend.SaveOperation(ctx, op)
}

type staticProvider struct {
	backend storage.Backend
}

func (p staticProvider) Backend() storage.Backend { return p.backend }

func TestIndexErrorsWhenProgressPersistFails(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", docA)

	cfg := &config.Config{Threading: config.ThreadingConfig{MaxWorkers: 1, BatchSize: 10}}
	manager := NewManager(
		staticProvider{&faultingBackend{Backend: env.storage.Backend()}},
		NewProgressStore(), env.similarity, settings.NewStorageStore(cfg), env.ignore)

	id, err := manager.StartIndex(dir)
	require.NoError(t, err)

	snap := waitForManager(t, manager, id)
	assert.Equal(t, StatusError, snap.Status)
	assert.Contains(t, snap.ErrorMessage, "backend unreachable")
	assert.Zero(t, snap.FilesIndexed)
}

func TestListOperationsByKind(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", docA)

	indexID, err := env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, indexID)

	scanID, err := env.manager.StartScan(dir)
	require.NoError(t, err)
	env.waitFor(t, scanID)

	indexOps, err := env.manager.ListOperations(context.Background(), KindIndex)
	require.NoError(t, err)
	require.Len(t, indexOps, 1)
	assert.Equal(t, indexID, indexOps[0].TaskID)

	scans, err := env.manager.ListOperations(context.Background(), KindScan)
	require.NoError(t, err)
	require.Len(t, scans, 1)
	assert.Equal(t, scanID, scans[0].TaskID)
}

func TestBootstrapRebuildsVocabulary(t *testing.T) {
	env := newTestEnv(t)
	dir := t.TempDir()
	writeDoc(t, dir, "a.txt", docA)

	id, err := env.manager.StartIndex(dir)
	require.NoError(t, err)
	env.waitFor(t, id)

	// A second manager over the same storage simulates a restart.
	cfg := &config.Config{Threading: config.ThreadingConfig{MaxWorkers: 1, BatchSize: 10}}
	restarted := NewManager(env.storage, NewProgressStore(),
		env.similarity, settings.NewStorageStore(cfg), env.ignore)
	require.Nil(t, restarted.Vocabulary())

	require.NoError(t, restarted.Bootstrap(context.Background()))
	require.NotNil(t, restarted.Vocabulary())
	assert.Greater(t, restarted.Vocabulary().Size(), 0)
}
