package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/metrics"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
)

const paymentMethodPix = "pix"

// Initiate validates a purchase intent, opens one pending transaction with a
// snapshot of what it grants and asks the active gateway for a PIX charge.
// Balances and entitlements are untouched until the gateway confirms.
func (s *Service) Initiate(ctx context.Context, accountID uint, intent Intent) (*CheckoutResult, error) {
	kind := strings.ToLower(strings.TrimSpace(intent.Kind))
	result, err := s.initiate(ctx, accountID, kind, intent)
	label := kind
	switch kind {
	case models.TransactionKindCredits, models.TransactionKindAgent, models.TransactionKindCombo:
	default:
		label = "unknown"
	}
	metrics.CheckoutOutcomes.WithLabelValues(label, checkoutOutcomeLabel(err)).Inc()
	return result, err
}

func (s *Service) initiate(ctx context.Context, accountID uint, kind string, intent Intent) (*CheckoutResult, error) {
	if accountID == 0 || intent.ProductID == 0 {
		return nil, ErrInvalidIntent
	}
	method := strings.ToLower(strings.TrimSpace(intent.PaymentMethod))
	if method == "" {
		method = paymentMethodPix
	}
	if method != paymentMethodPix {
		return nil, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidIntent, intent.PaymentMethod)
	}

	tx := &models.Transaction{
		AccountID:     accountID,
		Kind:          kind,
		Currency:      "BRL",
		Status:        models.TransactionStatusPending,
		PaymentMethod: method,
	}
	snapshot, err := s.priceIntent(ctx, accountID, kind, intent.ProductID, tx)
	if err != nil {
		return nil, err
	}
	if !snapshot.Price.IsPositive() {
		return nil, ErrInvalidPrice
	}
	tx.Amount = snapshot.Price.Round(2)
	tx.Snapshot = datatypes.NewJSONType(snapshot)

	account, err := s.ledger.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	gateway, expiresIn, err := s.gateways.Active(ctx)
	if err != nil {
		return nil, err
	}

	tx.ID = uuid.NewString()
	tx.Gateway = gateway.Name()
	if err := s.repo.CreateTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("create transaction: %w", err)
	}

	charge, err := gateway.CreateCharge(ctx, payment.ChargeRequest{
		Amount:      tx.Amount,
		Description: snapshot.ProductName,
		Payer: payment.Payer{
			AccountID: account.ID,
			Name:      account.Name,
			Email:     account.Email,
			TaxID:     account.TaxID,
		},
		ExternalReference: tx.ID,
		ExpiresIn:         expiresIn,
	})
	if err != nil {
		log.Errorf("[Checkout] charge creation failed tx=%s gateway=%s: %v", tx.ID, tx.Gateway, err)
		if _, cerr := s.repo.TransitionStatus(ctx, tx.ID,
			[]string{models.TransactionStatusPending}, models.TransactionStatusCancelled,
			map[string]interface{}{"failure_reason": truncate(err.Error(), 2000)},
		); cerr != nil {
			log.Errorf("[Checkout] failed to cancel tx=%s after gateway error: %v", tx.ID, cerr)
		}
		var gwErr *payment.GatewayError
		if !errors.As(err, &gwErr) {
			err = &payment.GatewayError{Gateway: tx.Gateway, Op: "create_charge", Err: err}
		}
		return nil, err
	}

	if err := s.repo.AttachCharge(ctx, tx.ID, charge.ExternalID, charge.Raw); err != nil {
		// The charge exists at the gateway but cannot be matched by webhooks.
		log.Errorf("[Checkout] failed to attach charge %s to tx=%s: %v", charge.ExternalID, tx.ID, err)
		return nil, fmt.Errorf("attach charge: %w", err)
	}

	log.Infof("[Checkout] tx=%s account=%d kind=%s amount=%s gateway=%s charge=%s",
		tx.ID, accountID, kind, tx.Amount.StringFixed(2), tx.Gateway, charge.ExternalID)
	return &CheckoutResult{
		TransactionID: tx.ID,
		Gateway:       tx.Gateway,
		Charge:        charge,
	}, nil
}

// priceIntent applies the per-kind purchase rules, fills the product
// reference on tx and returns the grant snapshot.
func (s *Service) priceIntent(ctx context.Context, accountID uint, kind string, productID uint, tx *models.Transaction) (models.GrantSnapshot, error) {
	switch kind {
	case models.TransactionKindCredits:
		pkg, err := s.catalog.GetCreditPackage(ctx, productID)
		if err != nil {
			return models.GrantSnapshot{}, notFound(err)
		}
		if !pkg.IsActive {
			return models.GrantSnapshot{}, ErrProductNotFound
		}
		tx.CreditPackageID = &pkg.ID
		return models.GrantSnapshot{
			ProductName:  pkg.Name,
			Price:        pkg.Price,
			Credits:      pkg.Credits,
			BonusCredits: pkg.BonusCredits,
		}, nil

	case models.TransactionKindAgent:
		agent, err := s.catalog.GetAgent(ctx, productID)
		if err != nil {
			return models.GrantSnapshot{}, notFound(err)
		}
		if agent.IsFree {
			return models.GrantSnapshot{}, ErrNotPurchasable
		}
		if agent.IsOwnedBy(accountID) {
			return models.GrantSnapshot{}, ErrAlreadyOwned
		}
		owned, err := s.entitlements.Has(ctx, accountID, agent.ID)
		if err != nil {
			return models.GrantSnapshot{}, err
		}
		if owned {
			return models.GrantSnapshot{}, ErrAlreadyOwned
		}
		tx.AgentID = &agent.ID
		return models.GrantSnapshot{
			ProductName:  agent.Name,
			Price:        agent.Price,
			Credits:      decimal.Zero,
			BonusCredits: agent.BonusCredits,
			AgentIDs:     []uint{agent.ID},
		}, nil

	case models.TransactionKindCombo:
		combo, err := s.catalog.GetCombo(ctx, productID)
		if err != nil {
			return models.GrantSnapshot{}, notFound(err)
		}
		if !combo.IsActive {
			return models.GrantSnapshot{}, ErrProductNotFound
		}
		if combo.IsExpired(s.now()) {
			return models.GrantSnapshot{}, ErrOfferExpired
		}
		tx.ComboID = &combo.ID
		return models.GrantSnapshot{
			ProductName:  combo.Name,
			Price:        combo.Price,
			Credits:      decimal.Zero,
			BonusCredits: combo.BonusCredits,
			AgentIDs:     combo.AgentIDs(),
		}, nil

	default:
		return models.GrantSnapshot{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidIntent, kind)
	}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, ErrProductNotFound) {
		return ErrProductNotFound
	}
	return err
}

func checkoutOutcomeLabel(err error) string {
	var gwErr *payment.GatewayError
	switch {
	case err == nil:
		return "created"
	case errors.As(err, &gwErr):
		return "gateway_error"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrNotPurchasable):
		return "not_purchasable"
	case errors.Is(err, ErrAlreadyOwned):
		return "already_owned"
	case errors.Is(err, ErrOfferExpired):
		return "offer_expired"
	case errors.Is(err, ErrInvalidPrice):
		return "invalid_price"
	case errors.Is(err, ErrInvalidIntent):
		return "invalid_intent"
	default:
		return "error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
