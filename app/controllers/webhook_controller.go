package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgentHub/internal/pkg/billing"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
)

// HandleWebhook processes a gateway notification. The gateway is asked to
// redeliver (5xx) only when reconciliation failed in a retryable way.
func (ac *APIController) HandleWebhook(gateway string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		adapter, err := ac.gateways.Get(ctx, gateway)
		if err != nil {
			if errors.Is(err, payment.ErrUnknownGateway) {
				return errorResponse(c, fiber.StatusNotFound, "unknown_gateway", "Unknown payment gateway")
			}
			log.Errorf("[Webhook] %s adapter unavailable: %v", gateway, err)
			return errorResponse(c, fiber.StatusServiceUnavailable, "gateway_unavailable", "Gateway not configured")
		}

		body := append([]byte(nil), c.Body()...)
		notification, err := adapter.ParseNotification(body, func(key string) string { return c.Query(key) })
		if err != nil {
			log.Warnf("[Webhook] %s invalid payload: %v", gateway, err)
			return errorResponse(c, fiber.StatusBadRequest, "invalid_payload", "Webhook payload could not be parsed")
		}

		verifyErr := adapter.VerifyNotification(func(key string) string { return c.Get(key) }, body, notification)

		created, event, err := ac.billing.RecordWebhookEvent(ctx, billing.WebhookEventInput{
			Gateway:          gateway,
			DeliveryID:       notification.DeliveryID,
			EventType:        notification.EventType,
			ExternalChargeID: notification.ExternalID,
			PayloadJSON:      string(body),
			SignatureValid:   verifyErr == nil,
		})
		if err != nil {
			log.Errorf("[Webhook] %s failed to record event: %v", gateway, err)
			return errorResponse(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record webhook event")
		}

		if verifyErr != nil {
			log.Warnf("[Webhook] %s authenticity check failed for delivery %s: %v", gateway, event.DeliveryID, verifyErr)
			if created {
				ac.markProcessed(c, event.ID, nil, verifyErr)
			}
			return errorResponse(c, fiber.StatusUnauthorized, "invalid_signature", "Webhook authenticity check failed")
		}

		// Redeliveries are reconciled again; the reconciler re-fetches the
		// charge status and reports already_processed itself.
		if !created {
			log.Infof("[Webhook] %s redelivery %s for charge %s", gateway, event.DeliveryID, notification.ExternalID)
		}

		result, procErr := ac.billing.HandleNotification(ctx, gateway, notification)
		ac.markProcessed(c, event.ID, result, procErr)

		if procErr != nil {
			var recErr *billing.ReconciliationError
			if errors.As(procErr, &recErr) && recErr.Retryable {
				log.Warnf("[Webhook] %s retryable failure for charge %s: %v", gateway, notification.ExternalID, procErr)
				return errorResponse(c, fiber.StatusServiceUnavailable, "retry", recErr.Reason)
			}
			log.Errorf("[Webhook] %s failed for charge %s: %v", gateway, notification.ExternalID, procErr)
		}
		if result == nil {
			result = &billing.Result{Outcome: billing.OutcomeError}
		}
		return c.JSON(result)
	}
}

func (ac *APIController) markProcessed(c *fiber.Ctx, eventID uint, result *billing.Result, procErr error) {
	if err := ac.billing.MarkWebhookProcessed(c.UserContext(), eventID, result, procErr); err != nil {
		log.Errorf("[Webhook] failed to mark event %d processed: %v", eventID, err)
	}
}
