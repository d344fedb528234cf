package handlers

import "github.com/gofiber/fiber/v2"

// Setup mounts the health and agent routes on app
func Setup(app *fiber.App, health *HealthHandler, process *ProcessHandler) {
	app.Get("/health", health.Handle)

	api := app.Group("/api")
	api.Post("/process", process.Process)
	api.Get("/stats", process.Stats)
}
