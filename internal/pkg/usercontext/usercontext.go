package usercontext

import "github.com/gofiber/fiber/v2"

// UserContext represents the authenticated account of a request
type UserContext struct {
	AccountID      uint   `json:"account_id"`
	ExternalUserID string `json:"external_user_id"`
	Name           string `json:"name"`
	IsLoggedIn     bool   `json:"is_logged_in"`
}

// Set stores the user context on the fiber context
func Set(c *fiber.Ctx, ctx UserContext) {
	c.Locals(KeyContext, ctx)
	c.Locals(KeyAccountID, ctx.AccountID)
}

// GetUserContext retrieves the user context from fiber context
// Returns an anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyContext).(UserContext); ok {
		return ctx
	}
	return UserContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the request carries an authenticated account
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// GetAccountID returns the current account ID, or 0 if not authenticated
func GetAccountID(c *fiber.Ctx) uint {
	return GetUserContext(c).AccountID
}
