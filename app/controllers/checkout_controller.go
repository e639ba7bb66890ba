package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgentHub/internal/pkg/billing"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
	"github.com/ManuelReschke/AgentHub/internal/pkg/usercontext"
)

// HandleCheckout opens a pending transaction and returns the PIX charge
func (ac *APIController) HandleCheckout(c *fiber.Ctx) error {
	accountID := usercontext.GetAccountID(c)

	var intent billing.Intent
	if err := c.BodyParser(&intent); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_body", "Request body must be JSON")
	}
	intent.Kind = strings.ToLower(strings.TrimSpace(intent.Kind))
	intent.PaymentMethod = strings.ToLower(strings.TrimSpace(intent.PaymentMethod))
	if err := ac.validate.Struct(intent); err != nil {
		return validationError(c, err)
	}

	result, err := ac.billing.Initiate(c.UserContext(), accountID, intent)
	if err != nil {
		return checkoutError(c, accountID, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// HandleGetTransaction returns one of the account's transactions for status polling
func (ac *APIController) HandleGetTransaction(c *fiber.Ctx) error {
	accountID := usercontext.GetAccountID(c)
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return errorResponse(c, fiber.StatusBadRequest, "invalid_id", "Transaction id is required")
	}

	tx, err := ac.billing.GetTransaction(c.UserContext(), accountID, id)
	if err != nil {
		if errors.Is(err, billing.ErrTransactionNotFound) {
			return errorResponse(c, fiber.StatusNotFound, "not_found", "Transaction not found")
		}
		log.Errorf("[Checkout] failed to load transaction %s: %v", id, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load transaction")
	}

	return c.JSON(fiber.Map{
		"id":                 tx.ID,
		"kind":               tx.Kind,
		"status":             tx.Status,
		"amount":             tx.Amount,
		"currency":           tx.Currency,
		"gateway":            tx.Gateway,
		"external_charge_id": tx.ExternalChargeID,
		"approved_at":        formatTimePtr(tx.ApprovedAt),
		"created_at":         formatTimePtr(&tx.CreatedAt),
	})
}

func checkoutError(c *fiber.Ctx, accountID uint, err error) error {
	var gwErr *payment.GatewayError
	switch {
	case errors.Is(err, billing.ErrInvalidIntent):
		return errorResponse(c, fiber.StatusBadRequest, "invalid_intent", "Invalid purchase request")
	case errors.Is(err, billing.ErrProductNotFound):
		return errorResponse(c, fiber.StatusNotFound, "product_not_found", "Product not found")
	case errors.Is(err, billing.ErrAlreadyOwned):
		return errorResponse(c, fiber.StatusConflict, "already_owned", "You already have access to this agent")
	case errors.Is(err, billing.ErrOfferExpired):
		return errorResponse(c, fiber.StatusGone, "offer_expired", "This offer has expired")
	case errors.Is(err, billing.ErrNotPurchasable), errors.Is(err, billing.ErrInvalidPrice):
		return errorResponse(c, fiber.StatusUnprocessableEntity, "not_purchasable", "This product cannot be purchased")
	case errors.Is(err, payment.ErrNotConfigured), errors.Is(err, payment.ErrUnknownGateway):
		log.Errorf("[Checkout] payment gateway unavailable: %v", err)
		return errorResponse(c, fiber.StatusServiceUnavailable, "gateway_unavailable", "Payments are currently unavailable")
	case errors.As(err, &gwErr):
		log.Warnf("[Checkout] gateway rejected charge for account %d: %v", accountID, err)
		return errorResponse(c, fiber.StatusBadGateway, "gateway_error", "The payment provider could not create the charge")
	default:
		log.Errorf("[Checkout] checkout failed for account %d: %v", accountID, err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Checkout failed")
	}
}

// HandleRunSweep reconciles stale pending transactions immediately instead of
// waiting for the next background tick
func (ac *APIController) HandleRunSweep(c *fiber.Ctx) error {
	if ac.sweeper == nil {
		return errorResponse(c, fiber.StatusServiceUnavailable, "sweep_unavailable", "Pending sweep is not configured")
	}
	out, err := ac.sweeper.RunSweepOnce(c.UserContext())
	if err != nil {
		log.Errorf("[Checkout] manual sweep failed: %v", err)
		return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Sweep failed")
	}
	return c.JSON(fiber.Map{
		"checked":   out.Checked,
		"applied":   out.Applied,
		"abandoned": out.Abandoned,
		"failed":    out.Failed,
	})
}
