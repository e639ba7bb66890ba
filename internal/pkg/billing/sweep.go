package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/metrics"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
)

// SweepResult counts what one sweep did.
type SweepResult struct {
	Checked   int
	Applied   int
	Abandoned int
	Failed    int
}

// SweepPending re-reads the gateway status of transactions that stayed
// pending for longer than olderThan, for charges whose webhook was lost.
// Transactions that never got a charge attached are cancelled.
func (s *Service) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (SweepResult, error) {
	var out SweepResult
	if limit <= 0 {
		limit = 100
	}
	txs, err := s.repo.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return out, fmt.Errorf("list stale pending: %w", err)
	}

	for i := range txs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		tx := &txs[i]
		out.Checked++

		if tx.ExternalChargeID == nil || *tx.ExternalChargeID == "" {
			ok, err := s.repo.TransitionStatus(ctx, tx.ID,
				[]string{models.TransactionStatusPending}, models.TransactionStatusCancelled,
				map[string]interface{}{"failure_reason": "no charge attached"})
			if err != nil {
				log.Errorf("[Checkout] sweep could not cancel tx=%s: %v", tx.ID, err)
				out.Failed++
				continue
			}
			if ok {
				out.Abandoned++
			}
			continue
		}

		res, err := s.HandleNotification(ctx, tx.Gateway, &payment.Notification{
			EventType:      "sweep",
			ExternalID:     *tx.ExternalChargeID,
			IsPaymentEvent: true,
		})
		if err != nil {
			var rerr *ReconciliationError
			if errors.As(err, &rerr) && rerr.Reason == ReasonLocked {
				continue
			}
			log.Warnf("[Checkout] sweep of tx=%s failed: %v", tx.ID, err)
			out.Failed++
			continue
		}
		if res.Outcome == OutcomeApplied {
			out.Applied++
		}
	}

	metrics.PendingSwept.WithLabelValues("applied").Add(float64(out.Applied))
	metrics.PendingSwept.WithLabelValues("abandoned").Add(float64(out.Abandoned))
	metrics.PendingSwept.WithLabelValues("failed").Add(float64(out.Failed))
	if out.Checked > 0 {
		log.Infof("[Checkout] swept %d pending transaction(s): applied=%d abandoned=%d failed=%d",
			out.Checked, out.Applied, out.Abandoned, out.Failed)
	}
	return out, nil
}
