package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/docsentry/backend/internal/ops"
	"github.com/docsentry/backend/pkg/logger"
)

// UpgradeRequired rejects plain HTTP requests on websocket routes.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ProgressSocket streams progress snapshots for one operation until it
// reaches a terminal status or the client goes away. Every frame is the full
// snapshot, identical to what the polling endpoint returns.
func (h *Handler) ProgressSocket() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()
		id := conn.Params("id")

		updates, cancel, ok := h.Ops.Progress().Subscribe(id)
		if !ok {
			// Finished before we attached; serve the persisted record once.
			snap, err := h.Ops.GetProgress(context.Background(), id)
			if err == nil {
				conn.WriteJSON(snap)
			}
			return
		}
		defer cancel()

		// Reads only serve to detect disconnects.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()

		for {
			select {
			case snap, open := <-updates:
				if !open {
					return
				}
				if err := conn.WriteJSON(snap); err != nil {
					logger.Debug("Websocket write failed",
						zap.String("operation_id", id), zap.Error(err))
					return
				}
				if ops.IsTerminal(snap.Status) {
					return
				}
			case <-keepalive.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
}
