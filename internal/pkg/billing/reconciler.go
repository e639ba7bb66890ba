package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/metrics"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
)

// canTransition lists the status changes a verified gateway status may cause.
// Approved purchases can still be refunded or charged back; every other
// terminal state is final.
func canTransition(from, to string) bool {
	switch from {
	case models.TransactionStatusPending:
		return models.IsTerminalTransactionStatus(to)
	case models.TransactionStatusApproved:
		return to == models.TransactionStatusRefunded || to == models.TransactionStatusCancelled
	default:
		return false
	}
}

// HandleNotification reconciles one webhook notification of gateway into
// local state. The payment status is always re-read from the gateway; the
// notification only says which charge to look at. The returned error is a
// *ReconciliationError whenever the outcome is OutcomeError.
func (s *Service) HandleNotification(ctx context.Context, gateway string, n *payment.Notification) (*Result, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	result, err := s.handleNotification(ctx, gateway, n)
	metrics.WebhookOutcomes.WithLabelValues(gateway, string(result.Outcome)).Inc()
	return result, err
}

func (s *Service) handleNotification(ctx context.Context, gateway string, n *payment.Notification) (*Result, error) {
	if n == nil || !n.IsPaymentEvent {
		return &Result{Outcome: OutcomeIgnored, Reason: ReasonNotPaymentEvent}, nil
	}
	externalID := strings.TrimSpace(n.ExternalID)
	if externalID == "" {
		return &Result{Outcome: OutcomeIgnored, Reason: ReasonMissingChargeID}, nil
	}

	adapter, err := s.gateways.Get(ctx, gateway)
	if err != nil {
		return failed(ReasonUnknownGateway, !errors.Is(err, payment.ErrUnknownGateway), err)
	}

	if s.lock != nil {
		release, acquired, lerr := s.lock(ctx, fmt.Sprintf("billing:reconcile:%s:%s", gateway, externalID), s.lockTTL)
		switch {
		case lerr != nil:
			log.Warnf("[Webhook] lock unavailable for %s/%s, continuing without it: %v", gateway, externalID, lerr)
		case !acquired:
			return failed(ReasonLocked, true, errors.New("charge is being reconciled by another delivery"))
		default:
			defer release()
		}
	}

	status, err := adapter.GetChargeStatus(ctx, externalID)
	if err != nil {
		retryable := true
		var gwErr *payment.GatewayError
		if errors.As(err, &gwErr) {
			retryable = gwErr.Retryable()
		}
		return failed(ReasonGatewayStatus, retryable, err)
	}

	tx, err := s.repo.FindTransactionByCharge(ctx, gateway, externalID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			log.Warnf("[Webhook] no transaction for %s charge %s", gateway, externalID)
			return &Result{Outcome: OutcomeIgnored, Reason: ReasonTransactionNotFound, Status: status}, nil
		}
		return failed(ReasonPersistence, true, err)
	}

	res := &Result{TransactionID: tx.ID, Status: status}
	if status == models.TransactionStatusPending {
		res.Outcome, res.Reason = OutcomeIgnored, ReasonStillPending
		return res, nil
	}
	if tx.Status == status {
		res.Outcome, res.Reason = OutcomeAlreadyProcessed, ReasonSameStatus
		return res, nil
	}
	if !canTransition(tx.Status, status) {
		log.Warnf("[Webhook] ignoring %s -> %s for tx=%s", tx.Status, status, tx.ID)
		res.Outcome, res.Reason = OutcomeIgnored, ReasonStaleStatus
		return res, nil
	}

	var applied bool
	switch status {
	case models.TransactionStatusApproved:
		applied, err = s.applyApproval(ctx, tx)
	case models.TransactionStatusRefunded, models.TransactionStatusCancelled:
		applied, err = s.applyReversal(ctx, tx, status)
	default:
		applied, err = s.repo.TransitionStatus(ctx, tx.ID,
			[]string{models.TransactionStatusPending}, status,
			map[string]interface{}{"failure_reason": "gateway reported " + status})
	}
	if err != nil {
		log.Errorf("[Webhook] applying %s to tx=%s failed: %v", status, tx.ID, err)
		r, rerr := failed(ReasonPersistence, true, err)
		r.TransactionID, r.Status = tx.ID, status
		return r, rerr
	}
	if !applied {
		res.Outcome, res.Reason = OutcomeAlreadyProcessed, ReasonConcurrentUpdate
		return res, nil
	}

	log.Infof("[Webhook] tx=%s %s -> %s via %s", tx.ID, tx.Status, status, gateway)
	res.Outcome = OutcomeApplied
	return res, nil
}

// applyApproval grants entitlements and credits before flipping the status.
// Each sub-step is idempotent on its own, so a failure part way leaves the
// transaction pending and a redelivery finishes the remaining steps.
func (s *Service) applyApproval(ctx context.Context, tx *models.Transaction) (bool, error) {
	snapshot := tx.Snapshot.Data()

	for _, agentID := range snapshot.AgentIDs {
		if _, err := s.entitlements.Grant(ctx, tx.AccountID, agentID, tx.ID); err != nil {
			return false, fmt.Errorf("grant agent %d: %w", agentID, err)
		}
	}

	if credits := snapshot.GrantedCredits(); credits.IsPositive() {
		if _, err := s.ledger.CreditOnce(ctx, tx.AccountID, credits, "tx:"+tx.ID, models.CreditGrantReasonPurchase); err != nil {
			return false, fmt.Errorf("credit grant: %w", err)
		}
	}

	now := s.now()
	return s.repo.TransitionStatus(ctx, tx.ID,
		[]string{models.TransactionStatusPending}, models.TransactionStatusApproved,
		map[string]interface{}{"approved_at": &now})
}

// applyReversal removes the agents the transaction unlocked. Credits already
// granted stay on the account.
func (s *Service) applyReversal(ctx context.Context, tx *models.Transaction, status string) (bool, error) {
	revoked, err := s.entitlements.RevokeByTransaction(ctx, tx.ID)
	if err != nil {
		return false, fmt.Errorf("revoke entitlements: %w", err)
	}
	if revoked > 0 {
		log.Infof("[Webhook] revoked %d entitlement(s) of tx=%s", revoked, tx.ID)
	}
	return s.repo.TransitionStatus(ctx, tx.ID,
		[]string{models.TransactionStatusPending, models.TransactionStatusApproved}, status, nil)
}

func failed(reason string, retryable bool, err error) (*Result, error) {
	return &Result{Outcome: OutcomeError, Reason: reason}, &ReconciliationError{Reason: reason, Retryable: retryable, Err: err}
}
