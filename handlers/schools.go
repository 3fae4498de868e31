package handlers

import (
	"school-game-platform/middleware"
	"school-game-platform/services"

	"github.com/gofiber/fiber/v2"
)

// SetupSchoolRoutes wires the admin dashboards and the student summary.
func SetupSchoolRoutes(app *fiber.App, statsService *services.StatsService) {
	secured := middleware.UserContextMiddleware()

	app.Get("/schools/:id/dashboard", secured, func(c *fiber.Ctx) error {
		schoolID := c.Params("id")
		if !middleware.CurrentIdentity(c).AdminOf(schoolID) {
			return forbidden(c)
		}

		stats, err := statsService.SchoolStats(c.UserContext(), schoolID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})

	app.Get("/schools/:id/game-progress", secured, func(c *fiber.Ctx) error {
		schoolID := c.Params("id")
		if !middleware.CurrentIdentity(c).AdminOf(schoolID) {
			return forbidden(c)
		}

		out, err := statsService.SchoolGameProgress(c.UserContext(), schoolID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(out)
	})

	app.Get("/students/:id/summary", secured, func(c *fiber.Ctx) error {
		id := middleware.CurrentIdentity(c)
		studentID := c.Params("id")
		if id.UserID != studentID && !id.IsSuperAdmin() && !id.HasRole(middleware.RoleSchoolAdmin) {
			return forbidden(c)
		}

		summary, err := statsService.StudentSummary(c.UserContext(), studentID)
		if err != nil {
			return respondError(c, err)
		}
		if id.UserID != studentID && !id.AdminOf(summary.SchoolID) {
			return forbidden(c)
		}
		return c.JSON(summary)
	})
}
