package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Payer identifies who pays a charge.
type Payer struct {
	AccountID uint
	Name      string
	Email     string
	TaxID     string
}

// ChargeRequest asks a gateway for a PIX charge.
type ChargeRequest struct {
	Amount            decimal.Decimal
	Description       string
	Payer             Payer
	ExternalReference string
	ExpiresIn         time.Duration
}

// Charge is the payment material returned by the gateway, passed to the
// client verbatim.
type Charge struct {
	ExternalID    string    `json:"external_charge_id"`
	Status        string    `json:"status"`
	QRPayload     string    `json:"qr_payload"`
	QRImageBase64 string    `json:"qr_image_base64,omitempty"`
	TicketURL     string    `json:"ticket_url,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
	Raw           []byte    `json:"-"`
}

// Gateway is the uniform interface over payment providers.
type Gateway interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error)
	// GetChargeStatus returns the charge status normalized to the
	// models.TransactionStatus* vocabulary.
	GetChargeStatus(ctx context.Context, externalID string) (string, error)
}

// Getter reads a header or query value by key.
type Getter func(key string) string

// Notification is a parsed webhook delivery.
type Notification struct {
	DeliveryID     string
	EventType      string
	ExternalID     string
	IsPaymentEvent bool
}

// WebhookDecoder turns raw webhook deliveries into notifications.
type WebhookDecoder interface {
	ParseNotification(body []byte, query Getter) (*Notification, error)
	// VerifyNotification checks authenticity. It returns nil when no secret is configured.
	VerifyNotification(headers Getter, body []byte, n *Notification) error
}

// Adapter is a gateway that also understands its own webhooks.
type Adapter interface {
	Gateway
	WebhookDecoder
}

var (
	ErrUnknownGateway   = errors.New("payment: unknown gateway")
	ErrNotConfigured    = errors.New("payment: gateway credentials are not configured")
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	ErrInvalidPayload   = errors.New("payment: invalid webhook payload")
)

// GatewayError carries the raw diagnostic of a failed gateway call.
type GatewayError struct {
	Gateway    string
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed: status=%d body=%s", e.Gateway, e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the call may succeed.
func (e *GatewayError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func truncateBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 2000 {
		s = s[:2000]
	}
	return s
}
