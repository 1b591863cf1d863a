package api

import (
	"prodplan-copilot/internal/api/handlers"
	"prodplan-copilot/pkg/auth"
	"prodplan-copilot/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// SetupRouter wires the copilot HTTP surface from spec.md §6. Every route
// is ambient — ungated by auth, matching the ask/ask-dev pattern: a bearer
// token is decoded when present (see middleware.TenantContext) but its
// absence never blocks the request, since HTTP authentication and
// authorization are owned by the surrounding ERP, not this core.
func SetupRouter(
	copilotHandler *handlers.CopilotHandler,
	jwtManager *auth.Manager,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Tenant-Id",
	}))
	app.Use(logger.New())
	app.Use(middleware.TenantContext(jwtManager, appLogger))

	copilotGroup := app.Group("/api/v1/copilot")

	copilotGroup.Post("/ask", copilotHandler.Ask)
	copilotGroup.Post("/ask-dev", copilotHandler.Ask)
	copilotGroup.Get("/health", copilotHandler.Health)

	copilotGroup.Get("/daily-feedback", copilotHandler.DailyFeedback)
	copilotGroup.Get("/daily-feedback-dev", copilotHandler.DailyFeedback)
	copilotGroup.Get("/insights", copilotHandler.Insights)
	copilotGroup.Get("/insights-dev", copilotHandler.Insights)

	copilotGroup.Post("/rag/ingest", copilotHandler.IngestDocument)

	decisionPRs := copilotGroup.Group("/decision-prs")
	decisionPRs.Post("/:id/approve", copilotHandler.ApproveDecisionPR)
	decisionPRs.Post("/:id/reject", copilotHandler.RejectDecisionPR)

	conversations := copilotGroup.Group("/conversations")
	conversations.Post("", copilotHandler.CreateConversation)
	conversations.Get("", copilotHandler.ListConversations)
	conversations.Get("/:id/messages", copilotHandler.ListMessages)
	conversations.Post("/:id/messages", copilotHandler.PostMessage)
	conversations.Patch("/:id/rename", copilotHandler.RenameConversation)
	conversations.Post("/:id/archive", copilotHandler.ArchiveConversation)

	return app
}
