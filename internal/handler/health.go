package handler

import (
	"github.com/gofiber/fiber/v2"
)

// HealthInfo describes how the running instance is wired
type HealthInfo struct {
	Providers    []string
	Storage      bool
	Assets       bool
	StoreBackend string
	QueueBackend string
}

// Health handles GET /health
func Health(info HealthInfo) fiber.Handler {
	providers := info.Providers
	if providers == nil {
		providers = []string{}
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"providers": providers,
			"services": fiber.Map{
				"r2":     info.Storage,
				"assets": info.Assets,
				"store":  info.StoreBackend,
				"queue":  info.QueueBackend,
			},
		})
	}
}
