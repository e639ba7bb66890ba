package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgentHub/internal/pkg/chat"
	"github.com/ManuelReschke/AgentHub/internal/pkg/completion"
	"github.com/ManuelReschke/AgentHub/internal/pkg/usercontext"
)

// HandleChat runs one chat turn for the authenticated account
func (ac *APIController) HandleChat(c *fiber.Ctx) error {
	accountID := usercontext.GetAccountID(c)

	var req chat.Request
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_body", "Request body must be JSON")
	}
	if err := ac.validate.Struct(req); err != nil {
		return validationError(c, err)
	}

	reply, err := ac.chat.Send(c.UserContext(), accountID, req)
	if err != nil {
		return chatError(c, accountID, err)
	}
	return c.JSON(reply)
}

func chatError(c *fiber.Ctx, accountID uint, err error) error {
	var upstream *completion.UpstreamError
	switch {
	case errors.Is(err, chat.ErrInsufficientCredits):
		return errorResponse(c, fiber.StatusPaymentRequired, "insufficient_credits", "Not enough credits for this request")
	case errors.Is(err, chat.ErrAccessDenied):
		return errorResponse(c, fiber.StatusForbidden, "access_denied", "This agent is not available to your account")
	case errors.Is(err, chat.ErrAgentNotFound):
		return errorResponse(c, fiber.StatusNotFound, "agent_not_found", "Agent not found")
	case errors.Is(err, chat.ErrConversationNotFound):
		return errorResponse(c, fiber.StatusNotFound, "conversation_not_found", "Conversation not found")
	case errors.As(err, &upstream):
		log.Warnf("[Chat] upstream failure for account %d: %v", accountID, err)
		if upstream.Timeout {
			return errorResponse(c, fiber.StatusGatewayTimeout, "upstream_timeout", "The model did not answer in time")
		}
		return errorResponse(c, fiber.StatusBadGateway, "upstream_error", "The model provider returned an error")
	default:
		log.Errorf("[Chat] turn failed for account %d: %v", accountID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Chat request failed")
	}
}
