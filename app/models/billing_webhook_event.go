package models

import "time"

// Webhook outcomes recorded on BillingWebhookEvent.
const (
	WebhookOutcomeIgnored          = "ignored"
	WebhookOutcomeAlreadyProcessed = "already_processed"
	WebhookOutcomeApplied          = "applied"
	WebhookOutcomeError            = "error"
)

// BillingWebhookEvent stores gateway webhook payloads with deduplication
// metadata for idempotent processing and later dispute resolution.
type BillingWebhookEvent struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Gateway          string     `gorm:"type:varchar(20);not null;index:ux_billing_webhook_events_gateway_event,unique,priority:1;index" json:"gateway"`
	DeliveryID       string     `gorm:"type:varchar(191);not null;default:'';index:ux_billing_webhook_events_gateway_event,unique,priority:2" json:"delivery_id"`
	EventType        string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	ExternalChargeID string     `gorm:"type:varchar(191);not null;default:'';index" json:"external_charge_id"`
	PayloadJSON      string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid   bool       `gorm:"default:false;index" json:"signature_valid"`
	Outcome          string     `gorm:"type:varchar(30);not null;default:''" json:"outcome"`
	Reason           string     `gorm:"type:varchar(100);not null;default:''" json:"reason"`
	ProcessedAt      *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError  string     `gorm:"type:text" json:"processing_error"`
	CreatedAt        time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
