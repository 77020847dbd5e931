package ops

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/extract"
	"github.com/docsentry/backend/internal/metrics"
	"github.com/docsentry/backend/internal/storage"
	"github.com/docsentry/backend/internal/vector"
	"github.com/docsentry/backend/pkg/logger"
)

const (
	skipIgnored          = "ignored"
	skipUnsupported      = "unsupported_format"
	skipExtractionFailed = "extraction_failed"
	skipReadFailure      = "read_failure"
)

type indexOutcome struct {
	result    extract.Result
	err       error
	unchanged bool
}

func (m *Manager) runIndex(ctx context.Context, opID, dir string) {
	snap := m.progress.Update(opID, func(s *Snapshot) { s.Status = StatusCounting })
	if err := m.persistSnapshot(ctx, snap); err != nil {
		m.finish(ctx, opID, StatusError, err.Error())
		return
	}

	// Ignored files stay in the walk so they show up as skipped with their
	// own reason instead of silently vanishing from the counts.
	entries, err := collectFiles(dir, m.ignore, true)
	if err != nil {
		m.finish(ctx, opID, StatusError, err.Error())
		return
	}

	snap = m.progress.Update(opID, func(s *Snapshot) {
		s.Status = StatusProcessing
		s.TotalFiles = len(entries)
	})
	if err := m.persistSnapshot(ctx, snap); err != nil {
		m.finish(ctx, opID, StatusError, err.Error())
		return
	}

	if len(entries) == 0 {
		m.finish(ctx, opID, StatusCompleted, "")
		return
	}

	cfg := m.similarity.Get()
	vocab := m.vocab.Load()
	backend := m.storage.Backend()

	work := func(entry walkEntry) indexOutcome {
		if entry.Ignored {
			return indexOutcome{}
		}
		if m.isUnchanged(ctx, backend, entry.Path) {
			return indexOutcome{unchanged: true}
		}
		res, err := extract.File(entry.Path)
		return indexOutcome{result: res, err: err}
	}

	apply := func(entry walkEntry, out indexOutcome) error {
		m.progress.Update(opID, func(s *Snapshot) {
			s.FilesProcessed++
			s.CurrentFile = entry.Path
		})

		if entry.Ignored {
			m.skip(opID, skipIgnored)
			return nil
		}
		if out.unchanged {
			metrics.FilesIndexed.Inc()
			m.progress.Update(opID, func(s *Snapshot) { s.FilesIndexed++ })
			return nil
		}
		if out.err != nil {
			reason := skipReason(out.err)
			metrics.ExtractionFailures.WithLabelValues(reason).Inc()
			logger.Debug("Skipping file",
				zap.String("path", entry.Path),
				zap.String("reason", reason),
				zap.Error(out.err),
			)
			m.skip(opID, reason)

			// The fingerprint usually survives an extraction failure. Keep a
			// fingerprint-only record so byte-identical copies of the file
			// still surface as exact matches.
			if out.result.Hash != "" {
				res := out.result
				file := &storage.IndexedFile{
					Path:         res.Path,
					Filename:     filepath.Base(res.Path),
					SizeBytes:    res.SizeBytes,
					FileHash:     res.Hash,
					Vector:       vector.SparseVector{},
					LastModified: res.LastModified,
				}
				if err := backend.UpsertIndexedFile(ctx, file); err != nil {
					return err
				}
			}
			return nil
		}

		res := out.result
		// Below-min-length content is not comparable; the record is kept
		// fingerprint-only so exact-duplicate detection still covers it.
		if len(res.Text) < cfg.MinContentLength {
			res.Text = ""
		}

		var vec vector.SparseVector
		var vecVersion int64
		if vocab != nil && res.Text != "" {
			vec = vocab.Transform(res.Text)
			vecVersion = vocab.Version
		} else {
			vec = vector.SparseVector{}
		}

		file := &storage.IndexedFile{
			Path:          res.Path,
			Filename:      filepath.Base(res.Path),
			SizeBytes:     res.SizeBytes,
			FileHash:      res.Hash,
			Content:       res.Text,
			Vector:        vec,
			VectorVersion: vecVersion,
			LastModified:  res.LastModified,
		}
		if err := backend.UpsertIndexedFile(ctx, file); err != nil {
			return err
		}

		metrics.FilesIndexed.Inc()
		m.progress.Update(opID, func(s *Snapshot) { s.FilesIndexed++ })
		return nil
	}

	stopped, err := runBatches(ctx, entries, m.threading.Threading(),
		func() bool { return m.progress.IsCancelled(opID) }, work, apply)
	if err != nil {
		m.finish(ctx, opID, StatusError, err.Error())
		return
	}
	if stopped {
		m.finish(ctx, opID, StatusStopped, "")
		return
	}

	// The corpus changed, so every stored vector is recomputed against a
	// fresh fit before the operation reports complete.
	if err := m.refitVocabulary(ctx); err != nil {
		m.finish(ctx, opID, StatusError, err.Error())
		return
	}
	m.finish(ctx, opID, StatusCompleted, "")
}

func (m *Manager) skip(opID, reason string) {
	metrics.FilesSkipped.WithLabelValues(reason).Inc()
	m.progress.Update(opID, func(s *Snapshot) {
		s.FilesSkipped++
		if s.SkipReasons == nil {
			s.SkipReasons = make(map[string]int)
		}
		s.SkipReasons[reason]++
	})
}

// isUnchanged reports whether the stored record already covers the file, so
// an unmodified file keeps its record without re-extraction. Fingerprint-only
// records are always re-extracted; a config change may have made their
// content comparable.
func (m *Manager) isUnchanged(ctx context.Context, backend storage.Backend, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	prev, err := backend.GetIndexedFileByPath(ctx, path)
	if err != nil {
		return false
	}
	return prev.LastModified == info.ModTime().Unix() &&
		prev.SizeBytes == info.Size() &&
		len(prev.Vector) > 0
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return skipUnsupported
	case errors.Is(err, extract.ErrCorruptDocument):
		return skipExtractionFailed
	case errors.Is(err, extract.ErrReadFailure):
		return skipReadFailure
	default:
		return skipExtractionFailed
	}
}
