package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgentHub/internal/pkg/ledger"
	"github.com/ManuelReschke/AgentHub/internal/pkg/usercontext"
)

// HandleGetCredits returns the balance of the authenticated account
func (ac *APIController) HandleGetCredits(c *fiber.Ctx) error {
	accountID := usercontext.GetAccountID(c)
	account, err := ac.ledger.GetAccount(c.UserContext(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return errorResponse(c, fiber.StatusNotFound, "not_found", "Account not found")
		}
		log.Errorf("[Account] failed to load account %d: %v", accountID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load account")
	}

	return c.JSON(fiber.Map{
		"account_id":           account.ID,
		"total_credits":        account.TotalCredits,
		"used_credits":         account.UsedCredits,
		"available_credits":    account.AvailableCredits(),
		"api_key_last_used_at": formatTimePtr(account.APIKeyLastUsedAt),
	})
}

// HandleGetUsage returns the most recent usage records, newest first
func (ac *APIController) HandleGetUsage(c *fiber.Ctx) error {
	accountID := usercontext.GetAccountID(c)
	limit := c.QueryInt("limit", 50)
	records, err := ac.ledger.ListUsage(c.UserContext(), accountID, limit)
	if err != nil {
		log.Errorf("[Account] failed to list usage for account %d: %v", accountID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load usage")
	}
	return c.JSON(fiber.Map{"usage": records})
}

// openAccountRequest is the operator payload for provisioning an account
type openAccountRequest struct {
	ExternalUserID string `json:"external_user_id" validate:"required,max=191"`
	Email          string `json:"email" validate:"omitempty,email"`
	Name           string `json:"name" validate:"max=150"`
}

// HandleOpenAccount provisions an account with its signup grant and returns a
// freshly issued API key. The raw key is only shown once; provisioning an
// existing user rotates its key.
func (ac *APIController) HandleOpenAccount(c *fiber.Ctx) error {
	var req openAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_body", "Request body must be JSON")
	}
	req.ExternalUserID = strings.TrimSpace(req.ExternalUserID)
	if err := ac.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	ctx := c.UserContext()
	signup, err := ac.signup.SignupFreeCredits(ctx)
	if err != nil {
		log.Warnf("[Account] signup credits unavailable, granting none: %v", err)
	}
	account, err := ac.ledger.OpenAccount(ctx, req.ExternalUserID, req.Email, req.Name, signup)
	if err != nil {
		log.Errorf("[Account] failed to open account for %s: %v", req.ExternalUserID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to open account")
	}

	rawKey, err := account.IssueAPIKey()
	if err != nil {
		log.Errorf("[Account] failed to issue api key for account %d: %v", account.ID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to issue API key")
	}
	if err := ac.apiKeys.SaveAPIKey(ctx, account); err != nil {
		log.Errorf("[Account] failed to store api key for account %d: %v", account.ID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to store API key")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"account_id":        account.ID,
		"external_user_id":  account.ExternalUserID,
		"available_credits": account.AvailableCredits(),
		"api_key":           rawKey,
		"api_key_prefix":    account.APIKeyPrefix,
	})
}
