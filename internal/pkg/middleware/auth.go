package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/ManuelReschke/AgentHub/internal/pkg/env"
	"github.com/ManuelReschke/AgentHub/internal/pkg/usercontext"
)

// RequireAccount ensures an authenticated account and returns JSON 401 otherwise.
func RequireAccount(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "authentication required",
		})
	}
	return c.Next()
}

// OperatorAuth protects operator endpoints with basic auth. METRICS_PASSWORD
// may hold a bcrypt hash instead of the plain password. Without a configured
// password every request is rejected.
func OperatorAuth() fiber.Handler {
	user := env.GetEnv("METRICS_USER", "admin")
	password := env.GetEnv("METRICS_PASSWORD", "")
	return basicauth.New(basicauth.Config{
		Realm: "AgentHub",
		Authorizer: func(u, p string) bool {
			if password == "" {
				return false
			}
			userOK := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1
			return userOK && checkPassword(password, p)
		},
	})
}

func checkPassword(configured, given string) bool {
	if strings.HasPrefix(configured, "$2a$") || strings.HasPrefix(configured, "$2b$") || strings.HasPrefix(configured, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(configured), []byte(given)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(configured)) == 1
}
