package handlers

import (
	"school-game-platform/middleware"
	"school-game-platform/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressRoutes(app *fiber.App, progressService *services.ProgressService) {
	// 🔐 Secured routes: user context applied per route
	secured := middleware.UserContextMiddleware()

	app.Post("/progress/:gameKey", secured, middleware.RequireRole(middleware.RoleStudent), func(c *fiber.Ctx) error {
		id := middleware.CurrentIdentity(c)
		gameKey := c.Params("gameKey")

		if err := progressService.CheckReporter(c.UserContext(), id.UserID); err != nil {
			return respondError(c, err)
		}

		state, err := progressService.ApplyReport(c.UserContext(), id.UserID, gameKey, c.Body())
		if err != nil {
			return respondError(c, err)
		}

		return c.JSON(fiber.Map{
			"success":  true,
			"game_key": gameKey,
			"level":    state,
		})
	})

	app.Get("/progress/:gameKey", secured, func(c *fiber.Ctx) error {
		userID, ok, err := progressTarget(c, progressService)
		if !ok {
			return err
		}

		progress, err := progressService.GetProgress(c.UserContext(), userID, c.Params("gameKey"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(progress)
	})

	app.Get("/progress", secured, func(c *fiber.Ctx) error {
		userID, ok, err := progressTarget(c, progressService)
		if !ok {
			return err
		}

		all, err := progressService.GetAllProgress(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"user_id": userID,
			"games":   all,
		})
	})
}

// progressTarget resolves whose ledger is being read. Students read their own;
// admins pass ?user_id= for a student of a school they administer. When ok is
// false the response has already been written and err is what the handler returns.
func progressTarget(c *fiber.Ctx, progressService *services.ProgressService) (userID string, ok bool, err error) {
	id := middleware.CurrentIdentity(c)
	target := c.Query("user_id")
	if target == "" || target == id.UserID {
		return id.UserID, true, nil
	}
	if id.IsSuperAdmin() {
		return target, true, nil
	}
	if !id.HasRole(middleware.RoleSchoolAdmin) {
		return "", false, forbidden(c)
	}

	schoolID, err := progressService.StudentSchool(c.UserContext(), target)
	if err != nil {
		return "", false, respondError(c, err)
	}
	if !id.AdminOf(schoolID) {
		return "", false, forbidden(c)
	}
	return target, true, nil
}
