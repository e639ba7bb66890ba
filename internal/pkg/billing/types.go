package billing

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
)

// Checkout validation errors.
var (
	ErrInvalidIntent       = errors.New("billing: invalid purchase intent")
	ErrProductNotFound     = errors.New("billing: product not found")
	ErrNotPurchasable      = errors.New("billing: product is not purchasable")
	ErrAlreadyOwned        = errors.New("billing: agent already owned")
	ErrOfferExpired        = errors.New("billing: offer expired")
	ErrInvalidPrice        = errors.New("billing: price must be greater than zero")
	ErrTransactionNotFound = errors.New("billing: transaction not found")
)

// Intent is a purchase request.
type Intent struct {
	Kind          string `json:"kind" validate:"required,oneof=credits agent combo"`
	ProductID     uint   `json:"product_id" validate:"required,gt=0"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,oneof=pix"`
}

// CheckoutResult is returned to the client after a charge was created.
type CheckoutResult struct {
	TransactionID string          `json:"transaction_id"`
	Gateway       string          `json:"gateway"`
	Charge        *payment.Charge `json:"charge"`
}

// Outcome of one webhook notification.
type Outcome string

const (
	OutcomeIgnored          Outcome = "ignored"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeApplied          Outcome = "applied"
	OutcomeError            Outcome = "error"
)

// Reasons attached to reconciliation results.
const (
	ReasonNotPaymentEvent     = "not_payment_event"
	ReasonMissingChargeID     = "missing_charge_id"
	ReasonTransactionNotFound = "transaction_not_found"
	ReasonStillPending        = "still_pending"
	ReasonStaleStatus         = "stale_status"
	ReasonSameStatus          = "same_status"
	ReasonConcurrentUpdate    = "concurrent_update"
	ReasonLocked              = "locked"
	ReasonGatewayStatus       = "gateway_status_failed"
	ReasonPersistence         = "persistence_failed"
	ReasonUnknownGateway      = "unknown_gateway"
)

// Result is the structured outcome of reconciling one notification.
type Result struct {
	Outcome       Outcome `json:"outcome"`
	Reason        string  `json:"reason,omitempty"`
	TransactionID string  `json:"transaction_id,omitempty"`
	Status        string  `json:"status,omitempty"`
}

// ReconciliationError signals the webhook handler whether the gateway
// should redeliver.
type ReconciliationError struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *ReconciliationError) Error() string {
	if e.Err == nil {
		return "reconciliation failed: " + e.Reason
	}
	return fmt.Sprintf("reconciliation failed: %s: %v", e.Reason, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Gateway          string
	DeliveryID       string
	EventType        string
	ExternalChargeID string
	PayloadJSON      string
	SignatureValid   bool
}
