package ops

import (
	"context"

	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/extract"
	"github.com/docsentry/backend/internal/metrics"
	"github.com/docsentry/backend/internal/storage"
	"github.com/docsentry/backend/internal/vector"
	"github.com/docsentry/backend/pkg/logger"
)

type scanOutcome struct {
	res   extract.Result
	err   error
	found bool
	best  vector.Match
}

func (m *Manager) runScan(ctx context.Context, opID, dir string) {
	snap := m.progress.Update(opID, func(s *Snapshot) { s.Status = StatusCounting })
	if err := m.persistSnapshot(ctx, snap); err != nil {
		m.finish(ctx, opID, StatusError, err.Error())
		return
	}

	// Ignored files never enter a scan at all.
	entries, err := collectFiles(dir, m.ignore, false)
	if err != nil {
		m.finish(ctx, opID, StatusError, err.Error())
		return
	}

	snap = m.progress.Update(opID, func(s *Snapshot) {
		s.Status = StatusScanning
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

	// Everything a comparison needs is snapshotted here. A concurrent index
	// or config change affects later scans, never this one.
	cfg := m.similarity.Get()
	vocab := m.vocab.Load()
	backend := m.storage.Backend()

	files, err := backend.ListIndexedFiles(ctx)
	if err != nil {
		m.finish(ctx, opID, StatusError, err.Error())
		return
	}
	corpus := make([]vector.Indexed, 0, len(files))
	for _, f := range files {
		doc := vector.Indexed{ID: f.ID, Hash: f.FileHash}
		// Vectors from an older fit are not comparable; those documents
		// still participate through their fingerprint.
		if vocab != nil && f.VectorVersion == vocab.Version {
			doc.Vector = f.Vector
		}
		corpus = append(corpus, doc)
	}

	th := vector.Thresholds{
		Similarity:             cfg.SimilarityThreshold,
		HighConfidence:         cfg.HighConfidenceThreshold,
		Exact:                  cfg.ExactMatchThreshold,
		RequireMultipleMatches: cfg.RequireMultipleMatches,
	}

	work := func(entry walkEntry) scanOutcome {
		res, err := extract.File(entry.Path)
		if err != nil && res.Hash == "" {
			return scanOutcome{res: res, err: err}
		}

		var vec vector.SparseVector
		if vocab != nil && extract.IsComparable(res.Kind) && len(res.Text) >= cfg.MinContentLength {
			vec = vocab.Transform(res.Text)
		}

		best, found := vector.BestMatch(res.Hash, vec, corpus, th)
		return scanOutcome{res: res, found: found, best: best}
	}

	apply := func(entry walkEntry, out scanOutcome) error {
		m.progress.Update(opID, func(s *Snapshot) {
			s.FilesProcessed++
			s.CurrentFile = entry.Path
		})

		if out.err != nil {
			reason := skipReason(out.err)
			metrics.ExtractionFailures.WithLabelValues(reason).Inc()
			logger.Debug("Skipping unreadable file during scan",
				zap.String("path", entry.Path), zap.Error(out.err))
			m.skip(opID, reason)
			return nil
		}
		if !out.found {
			return nil
		}

		result := &storage.ScanResult{
			ScanID:        opID,
			FilePath:      entry.Path,
			MatchType:     out.best.Type,
			Score:         out.best.Score,
			MatchedFileID: out.best.MatchedID,
		}
		if err := backend.AddScanResult(ctx, result); err != nil {
			return err
		}

		metrics.ScanMatches.WithLabelValues(out.best.Type).Inc()
		m.progress.Update(opID, func(s *Snapshot) { s.MatchesFound++ })
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
	m.finish(ctx, opID, StatusCompleted, "")
}
