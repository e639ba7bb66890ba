package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/billing"
	"github.com/ManuelReschke/AgentHub/internal/pkg/chat"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
)

// ============================================================================
// API CONTROLLER - JSON endpoints for chat, checkout, webhooks and accounts
// ============================================================================

// ChatService runs chat turns.
type ChatService interface {
	Send(ctx context.Context, accountID uint, req chat.Request) (*chat.Reply, error)
}

// BillingService opens checkouts and reconciles gateway notifications.
type BillingService interface {
	Initiate(ctx context.Context, accountID uint, intent billing.Intent) (*billing.CheckoutResult, error)
	GetTransaction(ctx context.Context, accountID uint, id string) (*models.Transaction, error)
	RecordWebhookEvent(ctx context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error)
	HandleNotification(ctx context.Context, gateway string, n *payment.Notification) (*billing.Result, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, result *billing.Result, processingErr error) error
}

// GatewayResolver returns the adapter of a named gateway.
type GatewayResolver interface {
	Get(ctx context.Context, name string) (payment.Adapter, error)
}

// AccountLedger reads balances and usage history and opens accounts.
type AccountLedger interface {
	GetAccount(ctx context.Context, accountID uint) (*models.Account, error)
	ListUsage(ctx context.Context, accountID uint, limit int) ([]models.UsageRecord, error)
	OpenAccount(ctx context.Context, externalUserID, email, name string, signupCredits decimal.Decimal) (*models.Account, error)
}

// APIKeyStore persists issued API keys.
type APIKeyStore interface {
	SaveAPIKey(ctx context.Context, account *models.Account) error
}

// SignupPolicy returns the free credits granted to new accounts.
type SignupPolicy interface {
	SignupFreeCredits(ctx context.Context) (decimal.Decimal, error)
}

// PendingSweeper runs one reconciliation pass over stale pending checkouts.
type PendingSweeper interface {
	RunSweepOnce(ctx context.Context) (billing.SweepResult, error)
}

// SettingStore reads and writes the runtime settings table.
type SettingStore interface {
	All(ctx context.Context) (map[string]string, error)
	SetValue(ctx context.Context, key, value string) error
}

// SettingsPolicy validates setting changes and drops the cached snapshot.
type SettingsPolicy interface {
	Check(ctx context.Context, key, value string) error
	Invalidate()
}

// Dependencies wires the services behind the API controller.
type Dependencies struct {
	Chat     ChatService
	Billing  BillingService
	Gateways GatewayResolver
	Ledger   AccountLedger
	APIKeys  APIKeyStore
	Signup   SignupPolicy
	Sweeper  PendingSweeper
	Settings SettingStore
	Policy   SettingsPolicy
}

// APIController handles the JSON API using injected services
type APIController struct {
	chat     ChatService
	billing  BillingService
	gateways GatewayResolver
	ledger   AccountLedger
	apiKeys  APIKeyStore
	signup   SignupPolicy
	sweeper  PendingSweeper
	settings SettingStore
	policy   SettingsPolicy
	validate *validator.Validate
}

// NewAPIController creates a new API controller
func NewAPIController(deps Dependencies) *APIController {
	return &APIController{
		chat:     deps.Chat,
		billing:  deps.Billing,
		gateways: deps.Gateways,
		ledger:   deps.Ledger,
		apiKeys:  deps.APIKeys,
		signup:   deps.Signup,
		sweeper:  deps.Sweeper,
		settings: deps.Settings,
		policy:   deps.Policy,
		validate: validator.New(),
	}
}

// errorResponse writes the JSON error envelope used by every endpoint
func errorResponse(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// validationError describes the first failed field of a request body
func validationError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errorResponse(c, fiber.StatusBadRequest, "validation_failed", fe.Field()+" failed on "+fe.Tag())
	}
	return errorResponse(c, fiber.StatusBadRequest, "validation_failed", err.Error())
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
