package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/docsentry/backend/internal/ops"
	"github.com/docsentry/backend/internal/storage"
)

type directoryRequest struct {
	DirectoryPath string `json:"directory_path"`
}

func parseDirectoryRequest(c *fiber.Ctx) (string, error) {
	var req directoryRequest
	if err := c.BodyParser(&req); err != nil {
		return "", fmt.Errorf("invalid request body: %w", err)
	}
	if req.DirectoryPath == "" {
		return "", errors.New("directory_path is required")
	}
	return req.DirectoryPath, nil
}

// StartIndex accepts a directory and kicks off indexing in the background.
func (h *Handler) StartIndex(c *fiber.Ctx) error {
	dir, err := parseDirectoryRequest(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err)
	}

	id, err := h.Ops.StartIndex(dir)
	if err != nil {
		return operationError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id": id,
		"status":  ops.StatusQueued,
	})
}

func (h *Handler) StartScan(c *fiber.Ctx) error {
	dir, err := parseDirectoryRequest(c)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err)
	}

	id, err := h.Ops.StartScan(dir)
	if err != nil {
		return operationError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"task_id": id,
		"status":  ops.StatusQueued,
	})
}

func (h *Handler) OperationProgress(c *fiber.Ctx) error {
	snap, err := h.Ops.GetProgress(c.Context(), c.Params("id"))
	if err != nil {
		return operationError(c, err)
	}
	return c.JSON(snap)
}

func (h *Handler) StopOperation(c *fiber.Ctx) error {
	id := c.Params("id")
	if !h.Ops.Stop(id) {
		return errorResponse(c, fiber.StatusNotFound,
			errors.New("operation not found or already finished"))
	}
	return c.JSON(fiber.Map{"task_id": id, "stopping": true})
}

func (h *Handler) ListIndexOperations(c *fiber.Ctx) error {
	snaps, err := h.Ops.ListOperations(c.Context(), ops.KindIndex)
	if err != nil {
		return operationError(c, err)
	}
	return c.JSON(fiber.Map{"operations": snaps})
}

func (h *Handler) ListScans(c *fiber.Ctx) error {
	snaps, err := h.Ops.ListOperations(c.Context(), ops.KindScan)
	if err != nil {
		return operationError(c, err)
	}
	return c.JSON(fiber.Map{"scans": snaps})
}

// ScanResults returns the immutable match list of one scan.
func (h *Handler) ScanResults(c *fiber.Ctx) error {
	scanID := c.Params("id")

	if _, err := h.Ops.GetProgress(c.Context(), scanID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return operationError(c, err)
		}
	}

	results, err := h.Storage.Backend().GetScanResults(c.Context(), scanID)
	if err != nil {
		return operationError(c, err)
	}
	if results == nil {
		results = []storage.ScanResult{}
	}
	return c.JSON(fiber.Map{
		"scan_id": scanID,
		"results": results,
		"count":   len(results),
	})
}
