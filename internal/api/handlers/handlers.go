package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/docsentry/backend/internal/ops"
	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/internal/storage"
	"github.com/docsentry/backend/internal/storage/factory"
)

// Handler bundles the dependencies every route group needs.
type Handler struct {
	Ops        *ops.Manager
	Storage    *factory.Manager
	Similarity *settings.SimilarityStore
	Settings   *settings.StorageStore
	Ignore     *settings.IgnoreStore
}

func New(
	opsMgr *ops.Manager,
	storageMgr *factory.Manager,
	similarity *settings.SimilarityStore,
	storageSettings *settings.StorageStore,
	ignore *settings.IgnoreStore,
) *Handler {
	return &Handler{
		Ops:        opsMgr,
		Storage:    storageMgr,
		Similarity: similarity,
		Settings:   storageSettings,
		Ignore:     ignore,
	}
}

func errorResponse(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// operationError maps domain errors to HTTP statuses.
func operationError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ops.ErrPathNotFound):
		return errorResponse(c, fiber.StatusNotFound, err)
	case errors.Is(err, ops.ErrPathNotDirectory), errors.Is(err, ops.ErrPathNotReadable):
		return errorResponse(c, fiber.StatusBadRequest, err)
	case errors.Is(err, storage.ErrNotFound):
		return errorResponse(c, fiber.StatusNotFound, err)
	default:
		return errorResponse(c, fiber.StatusInternalServerError, err)
	}
}
