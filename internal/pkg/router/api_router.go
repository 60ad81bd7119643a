package router

import (
	"time"

	"github.com/coursebeam/entitlesync/app/controllers"
	"github.com/coursebeam/entitlesync/internal/pkg/metrics/counter"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	webhooks *controllers.WebhookController
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
	}))

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Get("/ping", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"ping": "pong",
		})
	})

	v1.Get("/stats", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(counter.Snapshot(ctx.Context()))
	})

	v1.Post("/webhooks/:provider/orders", h.webhooks.HandleOrderWebhook)
	v1.Post("/webhooks/orders/:uuid/replay", h.webhooks.HandleReplay)
}

func NewApiRouter(webhooks *controllers.WebhookController) *ApiRouter {
	return &ApiRouter{webhooks: webhooks}
}
