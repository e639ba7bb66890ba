package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
)

// Ledger is the part of the credit ledger billing needs.
type Ledger interface {
	GetAccount(ctx context.Context, accountID uint) (*models.Account, error)
	CreditOnce(ctx context.Context, accountID uint, amount decimal.Decimal, grantKey, reason string) (bool, error)
}

// Entitlements grants and revokes agent unlocks.
type Entitlements interface {
	Grant(ctx context.Context, accountID, agentID uint, transactionID string) (bool, error)
	Has(ctx context.Context, accountID, agentID uint) (bool, error)
	RevokeByTransaction(ctx context.Context, transactionID string) (int64, error)
}

// Catalog reads purchasable products. Missing products are reported with
// gorm.ErrRecordNotFound.
type Catalog interface {
	GetCreditPackage(ctx context.Context, id uint) (*models.CreditPackage, error)
	GetAgent(ctx context.Context, id uint) (*models.Agent, error)
	GetCombo(ctx context.Context, id uint) (*models.Combo, error)
}

// Gateways resolves payment adapters.
type Gateways interface {
	Active(ctx context.Context) (payment.Adapter, time.Duration, error)
	Get(ctx context.Context, name string) (payment.Adapter, error)
}

// Locker takes a short-lived exclusive lock. See cache.Lock.
type Locker func(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)

// Dependencies wires the collaborators of a Service.
type Dependencies struct {
	Ledger       Ledger
	Entitlements Entitlements
	Catalog      Catalog
	Gateways     Gateways
	// Lock is optional. Without it reconciliation relies on the status gate alone.
	Lock Locker
}

// Service runs checkout and webhook reconciliation.
type Service struct {
	repo         Repository
	ledger       Ledger
	entitlements Entitlements
	catalog      Catalog
	gateways     Gateways
	lock         Locker
	lockTTL      time.Duration
	now          func() time.Time
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, deps Dependencies) *Service {
	return &Service{
		repo:         repo,
		ledger:       deps.Ledger,
		entitlements: deps.Entitlements,
		catalog:      deps.Catalog,
		gateways:     deps.Gateways,
		lock:         deps.Lock,
		lockTTL:      30 * time.Second,
		now:          time.Now,
	}
}

// GetTransaction returns a transaction owned by accountID.
func (s *Service) GetTransaction(ctx context.Context, accountID uint, id string) (*models.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if tx.AccountID != accountID {
		return nil, ErrTransactionNotFound
	}
	return tx, nil
}

// RecordWebhookEvent persists webhook payloads idempotently. Deliveries
// without an id are keyed by a hash of the charge id, event type and payload.
// The event log is an audit trail; it never decides whether a delivery is
// reconciled.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	gateway := strings.ToLower(strings.TrimSpace(in.Gateway))
	if gateway == "" {
		return false, nil, errors.New("gateway is required")
	}
	deliveryID := strings.TrimSpace(in.DeliveryID)
	if deliveryID == "" {
		sum := sha256.Sum256([]byte(strings.TrimSpace(in.ExternalChargeID) + "\n" + strings.TrimSpace(in.EventType) + "\n" + in.PayloadJSON))
		deliveryID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Gateway:          gateway,
		DeliveryID:       deliveryID,
		EventType:        strings.TrimSpace(in.EventType),
		ExternalChargeID: strings.TrimSpace(in.ExternalChargeID),
		PayloadJSON:      in.PayloadJSON,
		SignatureValid:   in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed stores the reconciliation result on the event.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, result *Result, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	outcome, reason := "", ""
	if result != nil {
		outcome, reason = string(result.Outcome), result.Reason
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
		if outcome == "" {
			outcome = string(OutcomeError)
		}
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, outcome, reason, errMsg)
}
