package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/moncompte-mobilite/mcm-api/app/controllers"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/citizencontext"
	"github.com/moncompte-mobilite/mcm-api/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())
	manager := middleware.RequireRoleMiddleware(citizencontext.RoleManager)

	subscriptions := v1.Group("/subscriptions")

	// Fixed segments before the :id routes, fiber matches in order.
	subscriptions.Post("/metadata", controllers.HandleCreateMetadata)
	subscriptions.Get("/metadata/:metadataId", controllers.HandleGetMetadata)
	subscriptions.Get("/timestamps", manager, controllers.HandleListTimestamps)

	subscriptions.Post("/", controllers.HandleCreateSubscription)
	subscriptions.Get("/", controllers.HandleListSubscriptions)
	subscriptions.Post("/:id/attachments", controllers.HandleAddAttachments)
	subscriptions.Get("/:id/attachments/:filename", controllers.HandleDownloadAttachment)
	subscriptions.Post("/:id/verify", controllers.HandleFinalizeSubscription)
	subscriptions.Post("/:id/validate", manager, controllers.HandleValidateSubscription)
	subscriptions.Post("/:id/reject", manager, controllers.HandleRejectSubscription)
	subscriptions.Patch("/:id", controllers.HandlePatchSubscription)
	subscriptions.Get("/:id", controllers.HandleGetSubscription)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
