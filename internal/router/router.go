package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-classroom-api/internal/config"
	"github.com/noah-isme/gema-classroom-api/internal/handler"
	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	EnrollmentHandler *handler.EnrollmentHandler
	SubmissionHandler *handler.SubmissionHandler
	TeacherHandler    *handler.TeacherHandler
	HealthChecks      map[string]handler.HealthCheckFunc
	JWTMiddleware     fiber.Handler
	SubmitRateLimit   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	v1 := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	v1.Get("/health", handler.HealthCheck(cfg, deps.HealthChecks))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	api := app.Group("/api/v2", jwtMiddleware)

	if deps.EnrollmentHandler != nil {
		deps.EnrollmentHandler.Register(api.Group("/courses"))
	}

	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(api, deps.SubmitRateLimit)
	}

	if deps.TeacherHandler != nil {
		teacher := api.Group("/teacher", middleware.RequireRole(middleware.AuthRoleTeacher))
		deps.TeacherHandler.Register(teacher)
	}
}
