package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// Handlers groups every API handler mounted under /api.
type Handlers struct {
	Users    *UsersHandler
	Sections *SectionsHandler
	Imports  *ImportsHandler
	Settings *SettingsHandler
	Tasks    *TasksHandler
	Audit    *AuditHandler
}

func Health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
}

// Register mounts /health and the /api routes. guard runs before every
// /api route.
func Register(app *fiber.App, h Handlers, guard fiber.Handler) {
	app.Get("/health", Health)

	api := app.Group("/api", guard)

	userRoutes := api.Group("/users")
	userRoutes.Get("/", h.Users.List)
	userRoutes.Post("/invite", h.Users.Invite)
	userRoutes.Get("/:id", h.Users.Get)
	userRoutes.Put("/:id", h.Users.UpdateProfile)
	userRoutes.Put("/:id/sections", h.Users.UpdateSections)
	userRoutes.Delete("/:id", h.Users.Delete)
	userRoutes.Post("/:id/uninvite", h.Users.Uninvite)

	api.Get("/sections", h.Sections.List)

	importRoutes := api.Group("/imports")
	importRoutes.Get("/", h.Imports.Status)
	importRoutes.Post("/users", h.Imports.StartUsers)
	importRoutes.Post("/users/commit", h.Imports.CommitUsers)
	importRoutes.Post("/sections", h.Imports.StartSections)
	importRoutes.Post("/sections/commit", h.Imports.CommitSections)

	api.Get("/settings", h.Settings.Get)
	api.Put("/settings", h.Settings.Update)

	api.Get("/tasks", h.Tasks.Status)
	api.Post("/tasks/run", h.Tasks.Run)

	auditRoutes := api.Group("/audit")
	auditRoutes.Get("/", h.Audit.List)
	auditRoutes.Get("/export", h.Audit.Export)
	auditRoutes.Get("/exports", h.Audit.ExportedObjects)
}
