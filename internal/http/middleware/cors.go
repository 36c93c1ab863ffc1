package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS lets browser clients on other origins call the gateway. origins is a
// comma separated list or "*". Content-Disposition and any extra headers are
// exposed so scripts can read attachment names.
func CORS(origins string, expose ...string) fiber.Handler {
	exposed := append([]string{fiber.HeaderContentDisposition, RequestIDHeader}, expose...)
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodHead, fiber.MethodOptions}, ","),
		AllowHeaders:  strings.Join([]string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, RequestIDHeader}, ","),
		ExposeHeaders: strings.Join(exposed, ","),
	})
}
