// Package server assembles the HTTP application: middleware, routes and error
// handling shared by the binary and the end-to-end tests.
package server

import (
	"errors"
	"os"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/rs/zerolog"

	"github.com/enhancely/api/internal/handler"
	"github.com/enhancely/api/internal/middleware"
	"github.com/enhancely/api/pkg/response"
)

const defaultBodyLimit = 20 * 1024 * 1024

type Options struct {
	Enhancement   *handler.EnhancementHandler
	Health        *handler.HealthHandler
	RateLimiter   *middleware.RateLimiter
	UploadPerHour int
	BodyLimit     int
	LogLevel      string
	AccessLog     bool
	Log           zerolog.Logger
}

func New(opts Options) *fiber.App {
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = defaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(opts.Log),
		BodyLimit:    opts.BodyLimit,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog {
		logFormat := "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path}\n"
		if strings.EqualFold(opts.LogLevel, "debug") {
			logFormat = "[${time}] ${locals:requestid} ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		}
		app.Use(logger.New(logger.Config{
			Format: logFormat,
			Output: os.Stdout,
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/", opts.Health.Root)
	app.Get("/health", opts.Health.Health)

	// Swagger UI
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	// Enhancement routes
	app.Post("/upload/", opts.RateLimiter.UploadLimit(opts.UploadPerHour), opts.Enhancement.Upload)
	app.Get("/status/:enhancementId", opts.Enhancement.Status)
	app.Get("/result/:enhancementId", opts.Enhancement.Result)
	app.Post("/redrive/:enhancementId", opts.Enhancement.Redrive)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:enhancementId", websocket.New(opts.Enhancement.Watch))

	return app
}

func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		} else {
			log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
		}

		errCode := response.CodeServiceError
		switch code {
		case fiber.StatusNotFound:
			errCode = response.CodeNotFound
		case fiber.StatusRequestEntityTooLarge, fiber.StatusBadRequest:
			errCode = response.CodeValidationError
		}

		return response.Error(c, code, errCode, message, nil)
	}
}
