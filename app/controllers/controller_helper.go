package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/facemojo/facemojo/internal/pkg/usercontext"
)

func isLoggedIn(c *fiber.Ctx) bool {
	var fromProtected bool
	if protectedValue := c.Locals(usercontext.KeyFromProtected); protectedValue != nil {
		fromProtected = protectedValue.(bool)
	}

	return fromProtected
}

// currentUserID returns the authenticated user's id, or 0 for anonymous requests.
func currentUserID(c *fiber.Ctx) uint {
	return usercontext.GetUserID(c)
}

// jsonError writes the shared error envelope used by every API endpoint.
func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}
