package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/docsentry/backend/internal/settings"
	"github.com/docsentry/backend/internal/storage/factory"
)

func (h *Handler) GetSimilarityConfig(c *fiber.Ctx) error {
	return c.JSON(h.Similarity.Get())
}

// UpdateSimilarityConfig applies a partial update. Threshold changes move the
// sensitivity level to custom; invalid combinations leave the active config
// untouched.
func (h *Handler) UpdateSimilarityConfig(c *fiber.Ctx) error {
	var update settings.SimilarityUpdate
	if err := c.BodyParser(&update); err != nil {
		return errorResponse(c, fiber.StatusBadRequest,
			fmt.Errorf("invalid request body: %w", err))
	}

	cfg, err := h.Similarity.Update(update)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(cfg)
}

func (h *Handler) ResetSimilarityConfig(c *fiber.Ctx) error {
	return c.JSON(h.Similarity.Reset())
}

func (h *Handler) ApplySensitivityPreset(c *fiber.Ctx) error {
	cfg, err := h.Similarity.ApplyPreset(c.Params("level"))
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(cfg)
}

func (h *Handler) GetStorageConfig(c *fiber.Ctx) error {
	s := h.Settings.Storage()
	s.Redis.Password = ""
	return c.JSON(s)
}

// UpdateStorageConfig switches the active backend. The switch is fail-closed:
// the requested backend must pass a health check before it takes over, and a
// failed switch leaves the previous backend and settings in place.
func (h *Handler) UpdateStorageConfig(c *fiber.Ctx) error {
	var req settings.StorageSettings
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest,
			fmt.Errorf("invalid request body: %w", err))
	}

	if err := h.Storage.Switch(c.Context(), req); err != nil {
		return errorResponse(c, fiber.StatusBadGateway, err)
	}
	if err := h.Settings.SetStorage(req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err)
	}

	resp := h.Settings.Storage()
	resp.Redis.Password = ""
	return c.JSON(resp)
}

func (h *Handler) StorageHealth(c *fiber.Ctx) error {
	health := h.Storage.Backend().Ping(c.Context())
	status := fiber.StatusOK
	if !health.Healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}

// TestRedis probes the given connection parameters without activating them.
func (h *Handler) TestRedis(c *fiber.Ctx) error {
	var req settings.RedisSettings
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest,
			fmt.Errorf("invalid request body: %w", err))
	}
	if req.Host == "" {
		current := h.Settings.Storage()
		req = current.Redis
	}

	health := factory.TestRedis(c.Context(), req)
	status := fiber.StatusOK
	if !health.Healthy {
		status = fiber.StatusBadGateway
	}
	return c.Status(status).JSON(health)
}

func (h *Handler) GetThreadingConfig(c *fiber.Ctx) error {
	return c.JSON(h.Settings.Threading())
}

func (h *Handler) UpdateThreadingConfig(c *fiber.Ctx) error {
	var req settings.ThreadingSettings
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest,
			fmt.Errorf("invalid request body: %w", err))
	}
	if err := h.Settings.SetThreading(req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(h.Settings.Threading())
}

type ignorePatternsRequest struct {
	Patterns []string `json:"patterns"`
}

type ignorePatternRequest struct {
	Pattern string `json:"pattern"`
}

func (h *Handler) GetIgnorePatterns(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"patterns": h.Ignore.Patterns()})
}

func (h *Handler) SetIgnorePatterns(c *fiber.Ctx) error {
	var req ignorePatternsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest,
			fmt.Errorf("invalid request body: %w", err))
	}
	return c.JSON(fiber.Map{"patterns": h.Ignore.Set(req.Patterns)})
}

func (h *Handler) AddIgnorePattern(c *fiber.Ctx) error {
	var req ignorePatternRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest,
			fmt.Errorf("invalid request body: %w", err))
	}
	patterns, err := h.Ignore.Add(req.Pattern)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(fiber.Map{"patterns": patterns})
}

func (h *Handler) RemoveIgnorePattern(c *fiber.Ctx) error {
	var req ignorePatternRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest,
			fmt.Errorf("invalid request body: %w", err))
	}
	patterns, removed := h.Ignore.Remove(req.Pattern)
	return c.JSON(fiber.Map{"patterns": patterns, "removed": removed})
}

func (h *Handler) ResetIgnorePatterns(c *fiber.Ctx) error {
	h.Ignore.Reset()
	return c.JSON(fiber.Map{"patterns": h.Ignore.Patterns()})
}
