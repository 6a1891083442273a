package handler

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/makeasinger/stems/internal/model"
	"github.com/makeasinger/stems/internal/service"
	ws "github.com/makeasinger/stems/internal/websocket"
)

// RequireUpgrade rejects plain HTTP requests on websocket routes
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// JobStream handles GET /ws/jobs/:jobId, starting with the job's current state
func JobStream(hub *ws.Hub, svc *service.SeparationService) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")

		var snapshot interface{}
		if job, err := svc.GetStatus(context.Background(), jobID, ""); err == nil {
			snapshot = model.WSProgressMessage{
				Type:         model.WSMessageTypeProgress,
				JobID:        job.ID,
				Progress:     job.Progress,
				Status:       job.Status,
				ProviderUsed: job.ProviderUsed,
			}
		}

		hub.HandleConnection(c, jobID, snapshot)
	})
}
