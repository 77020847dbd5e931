package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/docsentry/backend/internal/api/handlers"
	"github.com/docsentry/backend/internal/metrics"
	"github.com/docsentry/backend/pkg/config"
)

// NewApp builds the Fiber application with all routes registered.
func NewApp(h *handlers.Handler, server config.ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "docsentry",
		DisableStartupMessage: true,
		ReadTimeout:           time.Duration(server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(server.WriteTimeout) * time.Second,
		BodyLimit:             server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"service": "docsentry", "status": "ok"})
	})
	app.Get("/stats", h.Stats)
	app.Get("/pool-stats", h.PoolStats)
	app.Get("/metrics", metrics.MetricsHandler())

	app.Post("/index", h.StartIndex)
	app.Get("/index/:id/progress", h.OperationProgress)
	app.Post("/index/:id/stop", h.StopOperation)
	app.Get("/index-operations", h.ListIndexOperations)

	app.Post("/scan", h.StartScan)
	app.Get("/scan/:id/progress", h.OperationProgress)
	app.Post("/scan/:id/stop", h.StopOperation)
	app.Get("/scans", h.ListScans)
	app.Get("/results/:id", h.ScanResults)

	app.Use("/ws", handlers.UpgradeRequired)
	app.Get("/ws/index/:id", h.ProgressSocket())
	app.Get("/ws/scan/:id", h.ProgressSocket())

	app.Get("/indexed-files", h.ListIndexedFiles)
	app.Delete("/indexed-files", h.DeleteIndexedFiles)

	config := app.Group("/config")
	config.Get("/similarity", h.GetSimilarityConfig)
	config.Put("/similarity", h.UpdateSimilarityConfig)
	config.Post("/similarity/reset", h.ResetSimilarityConfig)
	config.Post("/similarity/preset/:level", h.ApplySensitivityPreset)

	config.Get("/storage", h.GetStorageConfig)
	config.Put("/storage", h.UpdateStorageConfig)
	config.Get("/storage/health", h.StorageHealth)
	config.Post("/storage/test-redis", h.TestRedis)

	config.Get("/threading", h.GetThreadingConfig)
	config.Put("/threading", h.UpdateThreadingConfig)

	config.Get("/ignored-files", h.GetIgnorePatterns)
	config.Put("/ignored-files", h.SetIgnorePatterns)
	config.Post("/ignored-files/add", h.AddIgnorePattern)
	config.Delete("/ignored-files/remove", h.RemoveIgnorePattern)
	config.Post("/ignored-files/reset", h.ResetIgnorePatterns)

	return app
}
