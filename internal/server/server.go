package server

import (
	"time"

	"github.com/captura-dev/captura/internal/controllers"
	"github.com/captura-dev/captura/internal/middlewares"
	"github.com/captura-dev/captura/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type HTTPServerDependencies struct {
	CaptureController *controllers.CaptureController
	APIKey            string
}

// NewHTTPServer builds the fiber app exposing the capture protocol surface.
func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "captura",
		// Full-display frames are large even before base64 framing.
		BodyLimit: 64 * 1024 * 1024,
	})

	router.Use(middlewares.RequestIDMiddleware())
	router.Use(cors.New())
	router.Use(logger.New())

	// Health check endpoint (no authentication required)
	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "captura",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	v1 := router.Group("/v1", middlewares.APIKeyMiddleware(deps.APIKey))

	v1.Get("/sources", deps.CaptureController.ListSources)
	v1.Post("/sources/prime", deps.CaptureController.Prime)
	v1.Post("/sources/:sourceID/capture", deps.CaptureController.Capture)
	v1.Delete("/sources/:sourceID", deps.CaptureController.Revoke)

	return router
}
