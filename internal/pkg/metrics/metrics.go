package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	ChatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthub_chat_turns_total",
			Help: "Chat turns by final state",
		},
		[]string{"outcome"},
	)
	CompletionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agenthub_completion_duration_seconds",
			Help:    "Latency of completion provider calls",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"provider", "status"},
	)
	CreditsDebited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agenthub_credits_debited_total",
			Help: "Credits successfully debited for chat usage",
		},
	)
	BillingFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthub_billing_failures_total",
			Help: "Usage records whose debit failed and need reconciliation",
		},
		[]string{"reason"},
	)
	CheckoutOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthub_checkout_total",
			Help: "Checkout attempts by product kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	EstimatedUsage = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agenthub_usage_estimated_total",
			Help: "Chat turns billed on estimated tokens because the provider reported no usage",
		},
	)
	PendingSwept = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthub_pending_sweep_total",
			Help: "Stale pending transactions handled by the sweep",
		},
		[]string{"result"},
	)
	WebhookOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthub_webhook_notifications_total",
			Help: "Webhook notifications by gateway and reconciliation outcome",
		},
		[]string{"gateway", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(ChatTurns)
	prometheus.MustRegister(CompletionDuration)
	prometheus.MustRegister(CreditsDebited)
	prometheus.MustRegister(BillingFailures)
	prometheus.MustRegister(CheckoutOutcomes)
	prometheus.MustRegister(WebhookOutcomes)
	prometheus.MustRegister(EstimatedUsage)
	prometheus.MustRegister(PendingSwept)
}

// AddDebited records a successful debit.
func AddDebited(amount decimal.Decimal) {
	if amount.IsPositive() {
		CreditsDebited.Add(amount.InexactFloat64())
	}
}

// Handler exposes the default registry on a fiber route.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
