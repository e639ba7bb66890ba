package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/billing"
	"github.com/ManuelReschke/AgentHub/internal/pkg/chat"
	"github.com/ManuelReschke/AgentHub/internal/pkg/completion"
	"github.com/ManuelReschke/AgentHub/internal/pkg/ledger"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
	"github.com/ManuelReschke/AgentHub/internal/pkg/settings"
	"github.com/ManuelReschke/AgentHub/internal/pkg/usercontext"
)

type fakeChat struct {
	reply *chat.Reply
	err   error
	got   chat.Request
}

func (f *fakeChat) Send(_ context.Context, _ uint, req chat.Request) (*chat.Reply, error) {
	f.got = req
	return f.reply, f.err
}

type fakeBilling struct {
	checkout    *billing.CheckoutResult
	checkoutErr error
	tx          *models.Transaction

	created   bool
	event     *models.BillingWebhookEvent
	recorded  []billing.WebhookEventInput
	result    *billing.Result
	results   []*billing.Result
	handleErr error
	handled   int
	marked    []string
}

func (f *fakeBilling) Initiate(context.Context, uint, billing.Intent) (*billing.CheckoutResult, error) {
	return f.checkout, f.checkoutErr
}

func (f *fakeBilling) GetTransaction(_ context.Context, _ uint, id string) (*models.Transaction, error) {
	if f.tx == nil || f.tx.ID != id {
		return nil, billing.ErrTransactionNotFound
	}
	return f.tx, nil
}

func (f *fakeBilling) RecordWebhookEvent(_ context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	f.recorded = append(f.recorded, in)
	return f.created, f.event, nil
}

func (f *fakeBilling) HandleNotification(context.Context, string, *payment.Notification) (*billing.Result, error) {
	f.handled++
	if len(f.results) > 0 {
		next := f.results[0]
		f.results = f.results[1:]
		return next, f.handleErr
	}
	return f.result, f.handleErr
}

func (f *fakeBilling) MarkWebhookProcessed(_ context.Context, _ uint, result *billing.Result, err error) error {
	outcome := "error"
	if result != nil {
		outcome = string(result.Outcome)
	}
	if err != nil {
		outcome += ":" + err.Error()
	}
	f.marked = append(f.marked, outcome)
	return nil
}

type fakeAdapter struct {
	parseErr  error
	verifyErr error
}

func (a *fakeAdapter) Name() string { return models.GatewayMercadoPago }

func (a *fakeAdapter) CreateCharge(context.Context, payment.ChargeRequest) (*payment.Charge, error) {
	return nil, errors.New("not used")
}

func (a *fakeAdapter) GetChargeStatus(context.Context, string) (string, error) {
	return models.TransactionStatusApproved, nil
}

func (a *fakeAdapter) ParseNotification(body []byte, _ payment.Getter) (*payment.Notification, error) {
	if a.parseErr != nil {
		return nil, a.parseErr
	}
	return &payment.Notification{DeliveryID: "d-1", EventType: "payment", ExternalID: "42", IsPaymentEvent: true}, nil
}

func (a *fakeAdapter) VerifyNotification(payment.Getter, []byte, *payment.Notification) error {
	return a.verifyErr
}

type fakeGateways struct{ adapter payment.Adapter }

func (f fakeGateways) Get(_ context.Context, name string) (payment.Adapter, error) {
	if name != models.GatewayMercadoPago {
		return nil, payment.ErrUnknownGateway
	}
	return f.adapter, nil
}

type fakeLedger struct {
	account *models.Account
	usage   []models.UsageRecord
	signup  decimal.Decimal
}

func (f *fakeLedger) GetAccount(_ context.Context, id uint) (*models.Account, error) {
	if f.account == nil || f.account.ID != id {
		return nil, ledger.ErrAccountNotFound
	}
	return f.account, nil
}

func (f *fakeLedger) ListUsage(context.Context, uint, int) ([]models.UsageRecord, error) {
	return f.usage, nil
}

func (f *fakeLedger) OpenAccount(_ context.Context, ext, email, name string, signup decimal.Decimal) (*models.Account, error) {
	f.signup = signup
	f.account = &models.Account{ID: 9, ExternalUserID: ext, Email: email, Name: name, Status: models.ACCOUNT_STATUS_ACTIVE, TotalCredits: signup}
	return f.account, nil
}

type fakeKeys struct{ saved *models.Account }

func (f *fakeKeys) SaveAPIKey(_ context.Context, a *models.Account) error {
	f.saved = a
	return nil
}

type fixedSignup decimal.Decimal

func (s fixedSignup) SignupFreeCredits(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(s), nil
}

func newTestApp(deps Dependencies) *fiber.App {
	ac := NewAPIController(deps)
	app := fiber.New()
	authed := app.Group("/api/v1", func(c *fiber.Ctx) error {
		usercontext.Set(c, usercontext.UserContext{AccountID: 7, IsLoggedIn: true})
		return c.Next()
	})
	authed.Post("/chat", ac.HandleChat)
	authed.Post("/checkout", ac.HandleCheckout)
	authed.Get("/checkout/:id", ac.HandleGetTransaction)
	authed.Get("/account/credits", ac.HandleGetCredits)
	authed.Get("/account/usage", ac.HandleGetUsage)
	app.Post("/internal/accounts", ac.HandleOpenAccount)
	app.Post("/webhooks/mercadopago", ac.HandleWebhook(models.GatewayMercadoPago))
	app.Post("/webhooks/stripe", ac.HandleWebhook("stripe"))
	app.Post("/internal/sweep", ac.HandleRunSweep)
	app.Get("/internal/settings", ac.HandleListSettings)
	app.Put("/internal/settings/:key", ac.HandleUpdateSetting)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func TestHandleChat(t *testing.T) {
	fc := &fakeChat{reply: &chat.Reply{Reply: "hi", ConversationID: "c-1", AvailableCredits: decimal.NewFromInt(16), Cost: decimal.NewFromInt(4)}}
	app := newTestApp(Dependencies{Chat: fc})

	resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/chat", `{"agent_id":3,"message":"hello"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "hi", body["reply"])
	assert.Equal(t, uint(3), fc.got.AgentID)

	resp, body = doJSON(t, app, fiber.MethodPost, "/api/v1/chat", `{"message":"hello"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])

	resp, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/chat", `{"agent_id":3,"message":"hi","conversation_id":"not-a-uuid"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleChatErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{chat.ErrInsufficientCredits, fiber.StatusPaymentRequired, "insufficient_credits"},
		{chat.ErrAccessDenied, fiber.StatusForbidden, "access_denied"},
		{chat.ErrAgentNotFound, fiber.StatusNotFound, "agent_not_found"},
		{chat.ErrConversationNotFound, fiber.StatusNotFound, "conversation_not_found"},
		{&completion.UpstreamError{Provider: "openai", StatusCode: 500}, fiber.StatusBadGateway, "upstream_error"},
		{&completion.UpstreamError{Provider: "openai", Timeout: true}, fiber.StatusGatewayTimeout, "upstream_timeout"},
		{errors.New("boom"), fiber.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			app := newTestApp(Dependencies{Chat: &fakeChat{err: tt.err}})
			resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/chat", `{"agent_id":1,"message":"x"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
		})
	}
}

func TestHandleCheckout(t *testing.T) {
	fb := &fakeBilling{checkout: &billing.CheckoutResult{
		TransactionID: "tx-1",
		Gateway:       models.GatewayMercadoPago,
		Charge:        &payment.Charge{ExternalID: "42", QRPayload: "000201", ExpiresAt: time.Now().Add(30 * time.Minute)},
	}}
	app := newTestApp(Dependencies{Billing: fb})

	resp, body := doJSON(t, app, fiber.MethodPost, "/api/v1/checkout", `{"kind":"Credits","product_id":2}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "tx-1", body["transaction_id"])

	resp, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/checkout", `{"kind":"subscription","product_id":2}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, fiber.MethodPost, "/api/v1/checkout", `{"kind":"agent","product_id":2,"payment_method":"card"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleCheckoutErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{billing.ErrProductNotFound, fiber.StatusNotFound},
		{billing.ErrAlreadyOwned, fiber.StatusConflict},
		{billing.ErrOfferExpired, fiber.StatusGone},
		{billing.ErrNotPurchasable, fiber.StatusUnprocessableEntity},
		{billing.ErrInvalidPrice, fiber.StatusUnprocessableEntity},
		{payment.ErrNotConfigured, fiber.StatusServiceUnavailable},
		{&payment.GatewayError{Gateway: "asaas", Op: "create charge", StatusCode: 400}, fiber.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			app := newTestApp(Dependencies{Billing: &fakeBilling{checkoutErr: tt.err}})
			resp, _ := doJSON(t, app, fiber.MethodPost, "/api/v1/checkout", `{"kind":"agent","product_id":5}`)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestHandleGetTransaction(t *testing.T) {
	fb := &fakeBilling{tx: &models.Transaction{ID: "tx-1", Kind: models.TransactionKindCredits, Status: models.TransactionStatusPending, Amount: decimal.RequireFromString("49.90")}}
	app := newTestApp(Dependencies{Billing: fb})

	resp, body := doJSON(t, app, fiber.MethodGet, "/api/v1/checkout/tx-1", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.TransactionStatusPending, body["status"])

	resp, _ = doJSON(t, app, fiber.MethodGet, "/api/v1/checkout/other", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHandleWebhookApplied(t *testing.T) {
	fb := &fakeBilling{
		created: true,
		event:   &models.BillingWebhookEvent{ID: 1, DeliveryID: "d-1"},
		result:  &billing.Result{Outcome: billing.OutcomeApplied, TransactionID: "tx-1", Status: models.TransactionStatusApproved},
	}
	app := newTestApp(Dependencies{Billing: fb, Gateways: fakeGateways{adapter: &fakeAdapter{}}})

	resp, body := doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago", `{"type":"payment","data":{"id":"42"}}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "applied", body["outcome"])
	require.Len(t, fb.recorded, 1)
	assert.True(t, fb.recorded[0].SignatureValid)
	assert.Equal(t, "42", fb.recorded[0].ExternalChargeID)
	assert.Equal(t, []string{"applied"}, fb.marked)
}

func TestHandleWebhookRetryableFailureAsksForRedelivery(t *testing.T) {
	fb := &fakeBilling{
		created:   true,
		event:     &models.BillingWebhookEvent{ID: 1},
		result:    &billing.Result{Outcome: billing.OutcomeError, Reason: billing.ReasonGatewayStatus},
		handleErr: &billing.ReconciliationError{Reason: billing.ReasonGatewayStatus, Retryable: true, Err: errors.New("502")},
	}
	app := newTestApp(Dependencies{Billing: fb, Gateways: fakeGateways{adapter: &fakeAdapter{}}})

	resp, _ := doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago", `{}`)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	require.Len(t, fb.marked, 1)
	assert.Contains(t, fb.marked[0], "error:")
}

func TestHandleWebhookNonRetryableFailureAcknowledged(t *testing.T) {
	fb := &fakeBilling{
		created:   true,
		event:     &models.BillingWebhookEvent{ID: 1},
		result:    &billing.Result{Outcome: billing.OutcomeError, Reason: billing.ReasonGatewayStatus},
		handleErr: &billing.ReconciliationError{Reason: billing.ReasonGatewayStatus, Retryable: false},
	}
	app := newTestApp(Dependencies{Billing: fb, Gateways: fakeGateways{adapter: &fakeAdapter{}}})

	resp, body := doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago", `{}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "error", body["outcome"])
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	fb := &fakeBilling{created: true, event: &models.BillingWebhookEvent{ID: 3, DeliveryID: "d-1"}}
	app := newTestApp(Dependencies{Billing: fb, Gateways: fakeGateways{adapter: &fakeAdapter{verifyErr: payment.ErrInvalidSignature}}})

	resp, body := doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago", `{}`)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_signature", body["error"])
	require.Len(t, fb.recorded, 1)
	assert.False(t, fb.recorded[0].SignatureValid)
	assert.Zero(t, fb.handled)
}

func TestHandleWebhookRedeliveryReachesReconciler(t *testing.T) {
	processed := time.Now()
	fb := &fakeBilling{
		created: true,
		event:   &models.BillingWebhookEvent{ID: 1, DeliveryID: "hash:abc"},
		results: []*billing.Result{
			{Outcome: billing.OutcomeIgnored, Reason: billing.ReasonStillPending, TransactionID: "tx-1", Status: models.TransactionStatusPending},
			{Outcome: billing.OutcomeApplied, TransactionID: "tx-1", Status: models.TransactionStatusApproved},
		},
	}
	app := newTestApp(Dependencies{Billing: fb, Gateways: fakeGateways{adapter: &fakeAdapter{}}})

	resp, body := doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago?topic=payment&id=42", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ignored", body["outcome"])

	// Same empty body, so the event log reports a settled duplicate.
	fb.created = false
	fb.event = &models.BillingWebhookEvent{ID: 1, DeliveryID: "hash:abc", Outcome: models.WebhookOutcomeIgnored, ProcessedAt: &processed}

	resp, body = doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago?topic=payment&id=42", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "applied", body["outcome"])
	assert.Equal(t, 2, fb.handled)
	assert.Equal(t, []string{"ignored", "applied"}, fb.marked)
}

func TestHandleWebhookSettledDuplicateStillReconciled(t *testing.T) {
	processed := time.Now()
	fb := &fakeBilling{
		created: false,
		event:   &models.BillingWebhookEvent{ID: 1, Outcome: models.WebhookOutcomeApplied, ProcessedAt: &processed},
		result:  &billing.Result{Outcome: billing.OutcomeAlreadyProcessed, TransactionID: "tx-1", Status: models.TransactionStatusApproved},
	}
	app := newTestApp(Dependencies{Billing: fb, Gateways: fakeGateways{adapter: &fakeAdapter{}}})

	resp, body := doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago", `{}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "already_processed", body["outcome"])
	assert.Equal(t, 1, fb.handled)
}

func TestHandleWebhookRedeliveryAfterErrorReprocesses(t *testing.T) {
	processed := time.Now()
	fb := &fakeBilling{
		created: false,
		event:   &models.BillingWebhookEvent{ID: 1, Outcome: models.WebhookOutcomeError, ProcessedAt: &processed},
		result:  &billing.Result{Outcome: billing.OutcomeApplied},
	}
	app := newTestApp(Dependencies{Billing: fb, Gateways: fakeGateways{adapter: &fakeAdapter{}}})

	resp, _ := doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago", `{}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fb.handled)
}

func TestHandleWebhookBadPayloadAndUnknownGateway(t *testing.T) {
	fb := &fakeBilling{}
	app := newTestApp(Dependencies{Billing: fb, Gateways: fakeGateways{adapter: &fakeAdapter{parseErr: payment.ErrInvalidPayload}}})

	resp, _ := doJSON(t, app, fiber.MethodPost, "/webhooks/mercadopago", `not json`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, fiber.MethodPost, "/webhooks/stripe", `{}`)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Empty(t, fb.recorded)
}

func TestHandleAccountEndpoints(t *testing.T) {
	fl := &fakeLedger{
		account: &models.Account{ID: 7, TotalCredits: decimal.NewFromInt(20), UsedCredits: decimal.NewFromInt(4)},
		usage:   []models.UsageRecord{{ID: 1, AccountID: 7, Model: "gpt-4o-mini", Cost: decimal.NewFromInt(4)}},
	}
	app := newTestApp(Dependencies{Ledger: fl})

	resp, body := doJSON(t, app, fiber.MethodGet, "/api/v1/account/credits", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "16", body["available_credits"])

	resp, body = doJSON(t, app, fiber.MethodGet, "/api/v1/account/usage?limit=10", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["usage"], 1)
}

func TestHandleOpenAccount(t *testing.T) {
	fl := &fakeLedger{}
	keys := &fakeKeys{}
	app := newTestApp(Dependencies{Ledger: fl, APIKeys: keys, Signup: fixedSignup(decimal.NewFromInt(10))})

	resp, body := doJSON(t, app, fiber.MethodPost, "/internal/accounts", `{"external_user_id":"user-9","email":"ana@example.com"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.True(t, decimal.NewFromInt(10).Equal(fl.signup))
	require.NotNil(t, keys.saved)
	key, _ := body["api_key"].(string)
	assert.Equal(t, models.HashAPIKey(key), keys.saved.APIKeyHash)

	resp, _ = doJSON(t, app, fiber.MethodPost, "/internal/accounts", `{"email":"bad"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

type fakeSweeper struct {
	out billing.SweepResult
	err error
}

func (f *fakeSweeper) RunSweepOnce(context.Context) (billing.SweepResult, error) {
	return f.out, f.err
}

func TestHandleRunSweep(t *testing.T) {
	app := newTestApp(Dependencies{Sweeper: &fakeSweeper{out: billing.SweepResult{Checked: 3, Applied: 1, Abandoned: 1}}})
	resp, body := doJSON(t, app, fiber.MethodPost, "/internal/sweep", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["checked"])
	assert.Equal(t, float64(1), body["applied"])
	assert.Equal(t, float64(1), body["abandoned"])

	app = newTestApp(Dependencies{Sweeper: &fakeSweeper{err: errors.New("db down")}})
	resp, body = doJSON(t, app, fiber.MethodPost, "/internal/sweep", "")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal_server_error", body["error"])

	app = newTestApp(Dependencies{})
	resp, _ = doJSON(t, app, fiber.MethodPost, "/internal/sweep", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

type fakeSettings struct {
	values      map[string]string
	checkErr    error
	invalidated int
}

func (f *fakeSettings) All(context.Context) (map[string]string, error) { return f.values, nil }

func (f *fakeSettings) SetValue(_ context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeSettings) Check(context.Context, string, string) error { return f.checkErr }

func (f *fakeSettings) Invalidate() { f.invalidated++ }

func TestHandleSettings(t *testing.T) {
	fs := &fakeSettings{values: map[string]string{
		models.SettingActiveGateway: "mercadopago",
		models.SettingAsaasAPIKey:   "live-key",
	}}
	app := newTestApp(Dependencies{Settings: fs, Policy: fs})

	resp, body := doJSON(t, app, fiber.MethodGet, "/internal/settings", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	list, ok := body["settings"].([]interface{})
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, map[string]interface{}{"key": models.SettingActiveGateway, "value": "mercadopago"}, list[0])
	assert.Equal(t, map[string]interface{}{"key": models.SettingAsaasAPIKey, "value": "********"}, list[1])

	resp, body = doJSON(t, app, fiber.MethodPut, "/internal/settings/"+models.SettingActiveGateway, `{"value":"asaas"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "asaas", body["value"])
	assert.Equal(t, "asaas", fs.values[models.SettingActiveGateway])
	assert.Equal(t, 1, fs.invalidated)

	resp, body = doJSON(t, app, fiber.MethodPut, "/internal/settings/"+models.SettingAsaasAPIKey, `{"value":"new-key"}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "********", body["value"])
}

func TestHandleUpdateSettingErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unknown key", settings.ErrUnknownSetting, fiber.StatusNotFound, "unknown_setting"},
		{"invalid value", fmt.Errorf("%w: pix_expiration_minutes", settings.ErrInvalidSetting), fiber.StatusUnprocessableEntity, "invalid_setting"},
		{"store down", errors.New("db down"), fiber.StatusInternalServerError, "internal_server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &fakeSettings{values: map[string]string{}, checkErr: tt.err}
			app := newTestApp(Dependencies{Settings: fs, Policy: fs})
			resp, body := doJSON(t, app, fiber.MethodPut, "/internal/settings/anything", `{"value":"x"}`)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, body["error"])
			assert.Empty(t, fs.values)
			assert.Zero(t, fs.invalidated)
		})
	}
}
