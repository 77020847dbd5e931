package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/docsentry/backend/internal/storage"
)

func (h *Handler) ListIndexedFiles(c *fiber.Ctx) error {
	files, err := h.Storage.Backend().ListIndexedFiles(c.Context())
	if err != nil {
		return operationError(c, err)
	}
	if files == nil {
		files = []storage.IndexedFile{}
	}
	return c.JSON(fiber.Map{"files": files, "count": len(files)})
}

type deleteFilesRequest struct {
	FileIDs []string `json:"file_ids"`
}

// DeleteIndexedFiles removes the given ids, or the whole corpus when the
// body is empty or omits file_ids.
func (h *Handler) DeleteIndexedFiles(c *fiber.Ctx) error {
	var req deleteFilesRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorResponse(c, fiber.StatusBadRequest,
				fmt.Errorf("invalid request body: %w", err))
		}
	}

	deleted, err := h.Storage.Backend().DeleteIndexedFiles(c.Context(), req.FileIDs)
	if err != nil {
		return operationError(c, err)
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

// Stats summarizes corpus and scan history counts.
func (h *Handler) Stats(c *fiber.Ctx) error {
	ctx := c.Context()
	backend := h.Storage.Backend()

	fileCount, err := backend.CountIndexedFiles(ctx)
	if err != nil {
		return operationError(c, err)
	}
	resultCount, err := backend.CountScanResults(ctx)
	if err != nil {
		return operationError(c, err)
	}
	scanCount, err := backend.CountDistinctScans(ctx)
	if err != nil {
		return operationError(c, err)
	}

	vocabTerms := 0
	var vocabVersion int64
	if vocab := h.Ops.Vocabulary(); vocab != nil {
		vocabTerms = vocab.Size()
		vocabVersion = vocab.Version
	}

	return c.JSON(fiber.Map{
		"indexed_files":      fileCount,
		"scan_results":       resultCount,
		"scans":              scanCount,
		"storage_backend":    backend.Name(),
		"vocabulary_terms":   vocabTerms,
		"vocabulary_version": vocabVersion,
	})
}

func (h *Handler) PoolStats(c *fiber.Ctx) error {
	return c.JSON(h.Storage.Backend().PoolStats())
}
