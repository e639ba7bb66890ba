package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/usercontext"
)

// AccountLookup resolves API keys to accounts.
type AccountLookup interface {
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error)
	TouchAPIKey(ctx context.Context, id uint) error
}

// APIKeyAuthMiddleware authenticates requests carrying an account API key header.
func APIKeyAuthMiddleware(accounts AccountLookup) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := ExtractAPIKey(c)
		if apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing API key"})
		}

		ctx := c.UserContext()
		account, err := accounts.GetByAPIKeyHash(ctx, models.HashAPIKey(apiKey))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid API key"})
			}
			log.Errorf("[Auth] api key lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "API key verification failed"})
		}

		if !account.IsActive() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Account inactive"})
		}

		// Refresh last-used timestamp best-effort.
		if err := accounts.TouchAPIKey(ctx, account.ID); err != nil {
			log.Warnf("[Auth] failed to update api key usage timestamp for account %d: %v", account.ID, err)
		}

		usercontext.Set(c, usercontext.UserContext{
			AccountID:      account.ID,
			ExternalUserID: account.ExternalUserID,
			Name:           account.Name,
			IsLoggedIn:     true,
		})
		return c.Next()
	}
}

// ExtractAPIKey reads the key from X-API-Key or a Bearer Authorization header.
func ExtractAPIKey(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
