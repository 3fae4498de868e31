// handlers/game.go
package handlers

import (
	"log"
	"strings"

	"school-game-platform/middleware"
	"school-game-platform/services"

	"github.com/gofiber/fiber/v2"
)

const maxLogoSize = 5 * 1024 * 1024

func SetupGameRoutes(app *fiber.App, gameService *services.GameService) {
	// 🔓 Catalog reads need only the gateway token
	app.Get("/games", func(c *fiber.Ctx) error {
		games, err := gameService.ListGames(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(games)
	})

	app.Get("/games/:id", func(c *fiber.Ctx) error {
		game, err := gameService.GetGame(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(game)
	})

	// 🔐 Secured routes
	secured := middleware.UserContextMiddleware()
	superAdmin := middleware.RequireRole(middleware.RoleSuperAdmin)

	app.Post("/games", secured, superAdmin, func(c *fiber.Ctx) error {
		var input services.CreateGameInput
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		var logo *services.Upload
		if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
			if fh, err := c.FormFile("main_logo"); err == nil {
				if fh.Size > maxLogoSize {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "main_logo too large (max 5MB)"})
				}
				f, err := fh.Open()
				if err != nil {
					return respondError(c, err)
				}
				defer f.Close()
				logo = &services.Upload{
					Filename:    fh.Filename,
					ContentType: fh.Header.Get(fiber.HeaderContentType),
					Body:        f,
				}
			}
		}

		game, err := gameService.CreateGame(c.UserContext(), input, logo)
		if err != nil {
			return respondError(c, err)
		}

		log.Printf("🎮 [GAMES] %s registered by %s", game.ID, middleware.CurrentIdentity(c).UserID)
		return c.Status(fiber.StatusCreated).JSON(game)
	})

	app.Post("/games/:id/aliases", secured, superAdmin, func(c *fiber.Ctx) error {
		var input services.AliasInput
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		alias, created, err := gameService.AddAlias(c.UserContext(), c.Params("id"), input)
		if err != nil {
			return respondError(c, err)
		}

		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return c.Status(status).JSON(alias)
	})

	app.Post("/games/:id/ratings", secured, middleware.RequireRole(middleware.RoleStudent), func(c *fiber.Ctx) error {
		var input services.RatingInput
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		game, err := gameService.RateGame(c.UserContext(), c.Params("id"), middleware.CurrentIdentity(c).UserID, input)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"game_id":        game.ID,
			"average_rating": game.AverageRating,
			"rating_count":   game.RatingCount,
		})
	})
}
