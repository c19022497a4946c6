package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-ledger/internal/logger"
)

// NewApp builds the fiber app with recovery, CORS and the request logger
// installed ahead of the routes.
func NewApp(h *Handler, log zerolog.Logger, bodyLimit int) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "statement-ledger",
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return writeError(c, code, "", CodeInternal, err.Error())
		},
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(logger.WithContext(c.UserContext(), log))
		return c.Next()
	})
	h.RegisterRoutes(app)
	return app
}
