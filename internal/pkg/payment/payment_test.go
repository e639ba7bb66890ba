package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/AgentHub/app/models"
)

func headerMap(m map[string]string) Getter {
	return func(key string) string { return m[key] }
}

func TestMercadoPagoStatusMapping(t *testing.T) {
	tests := map[string]string{
		"approved":     models.TransactionStatusApproved,
		"authorized":   models.TransactionStatusApproved,
		"pending":      models.TransactionStatusPending,
		"in_process":   models.TransactionStatusPending,
		"in_mediation": models.TransactionStatusPending,
		"rejected":     models.TransactionStatusRejected,
		"cancelled":    models.TransactionStatusCancelled,
		"refunded":     models.TransactionStatusRefunded,
		"charged_back": models.TransactionStatusRefunded,
		"brand_new":    models.TransactionStatusPending,
	}
	for in, want := range tests {
		if got := MercadoPagoStatusToTransactionStatus(in); got != want {
			t.Fatalf("MercadoPagoStatusToTransactionStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAsaasStatusMapping(t *testing.T) {
	tests := map[string]string{
		"PENDING":                      models.TransactionStatusPending,
		"RECEIVED":                     models.TransactionStatusApproved,
		"CONFIRMED":                    models.TransactionStatusApproved,
		"RECEIVED_IN_CASH":             models.TransactionStatusApproved,
		"REFUND_REQUESTED":             models.TransactionStatusApproved,
		"REFUNDED":                     models.TransactionStatusRefunded,
		"CHARGEBACK_REQUESTED":         models.TransactionStatusRefunded,
		"CHARGEBACK_DISPUTE":           models.TransactionStatusApproved,
		"AWAITING_CHARGEBACK_REVERSAL": models.TransactionStatusApproved,
		"OVERDUE":                      models.TransactionStatusCancelled,
		"DELETED":                      models.TransactionStatusCancelled,
		"something":                    models.TransactionStatusPending,
	}
	for in, want := range tests {
		if got := AsaasStatusToTransactionStatus(in); got != want {
			t.Fatalf("AsaasStatusToTransactionStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMercadoPagoCreateCharge(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payments", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "tx-1", r.Header.Get("X-Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{
			"id": 1234567890,
			"status": "pending",
			"date_of_expiration": "2025-05-10T12:30:00.000-03:00",
			"point_of_interaction": {"transaction_data": {"qr_code": "00020126pix", "qr_code_base64": "iVBOR", "ticket_url": "https://mp/t"}}
		}`))
	}))
	defer srv.Close()

	c := NewMercadoPagoClient(MercadoPagoConfig{AccessToken: "tok", BaseURL: srv.URL, NotificationURL: "https://hub/webhooks/mercadopago"}, nil)
	charge, err := c.CreateCharge(context.Background(), ChargeRequest{
		Amount:            decimal.RequireFromString("49.9"),
		Description:       "Combo",
		Payer:             Payer{AccountID: 1, Email: "a@b.c", Name: "Ana", TaxID: "123.456.789-09"},
		ExternalReference: "tx-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "1234567890", charge.ExternalID)
	assert.Equal(t, "00020126pix", charge.QRPayload)
	assert.Equal(t, "iVBOR", charge.QRImageBase64)
	assert.Equal(t, models.TransactionStatusPending, charge.Status)
	assert.Equal(t, 2025, charge.ExpiresAt.Year())

	assert.Equal(t, 49.9, body["transaction_amount"])
	assert.Equal(t, "pix", body["payment_method_id"])
	assert.Equal(t, "tx-1", body["external_reference"])
	assert.Equal(t, "https://hub/webhooks/mercadopago", body["notification_url"])
	payer := body["payer"].(map[string]any)
	ident := payer["identification"].(map[string]any)
	assert.Equal(t, "CPF", ident["type"])
	assert.Equal(t, "12345678909", ident["number"])
}

func TestMercadoPagoCreateChargeFailureCarriesDiagnostic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid payer email"}`))
	}))
	defer srv.Close()

	c := NewMercadoPagoClient(MercadoPagoConfig{AccessToken: "tok", BaseURL: srv.URL}, nil)
	charge, err := c.CreateCharge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(10), ExternalReference: "tx"})
	assert.Nil(t, charge)
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Contains(t, gwErr.Body, "invalid payer email")
	assert.False(t, gwErr.Retryable())
}

func TestMercadoPagoNotConfigured(t *testing.T) {
	c := NewMercadoPagoClient(MercadoPagoConfig{}, nil)
	_, err := c.CreateCharge(context.Background(), ChargeRequest{Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.GetChargeStatus(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestMercadoPagoGetChargeStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/payments/42":
			_, _ = w.Write([]byte(`{"id":42,"status":"approved"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := NewMercadoPagoClient(MercadoPagoConfig{AccessToken: "tok", BaseURL: srv.URL}, nil)
	status, err := c.GetChargeStatus(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusApproved, status)

	_, err = c.GetChargeStatus(context.Background(), "43")
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.True(t, gwErr.Retryable())
}

func TestMercadoPagoParseNotification(t *testing.T) {
	c := NewMercadoPagoClient(MercadoPagoConfig{}, nil)

	n, err := c.ParseNotification([]byte(`{"id":12345,"type":"payment","action":"payment.updated","data":{"id":"987"}}`), nil)
	require.NoError(t, err)
	assert.True(t, n.IsPaymentEvent)
	assert.Equal(t, "987", n.ExternalID)
	assert.Equal(t, "12345", n.DeliveryID)

	n, err = c.ParseNotification([]byte(`{"type":"merchant_order","data":{"id":"1"}}`), nil)
	require.NoError(t, err)
	assert.False(t, n.IsPaymentEvent)

	n, err = c.ParseNotification(nil, headerMap(map[string]string{"topic": "payment", "id": "555"}))
	require.NoError(t, err)
	assert.True(t, n.IsPaymentEvent)
	assert.Equal(t, "555", n.ExternalID)

	_, err = c.ParseNotification([]byte(`{broken`), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestMercadoPagoVerifyNotification(t *testing.T) {
	secret := "mp-secret"
	c := NewMercadoPagoClient(MercadoPagoConfig{WebhookSecret: secret}, nil)
	n := &Notification{ExternalID: "987", IsPaymentEvent: true}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("id:987;request-id:req-1;ts:1700000000;"))
	sig := hex.EncodeToString(mac.Sum(nil))

	valid := headerMap(map[string]string{"x-signature": "ts=1700000000,v1=" + sig, "x-request-id": "req-1"})
	assert.NoError(t, c.VerifyNotification(valid, nil, n))

	tampered := headerMap(map[string]string{"x-signature": "ts=1700000001,v1=" + sig, "x-request-id": "req-1"})
	assert.ErrorIs(t, c.VerifyNotification(tampered, nil, n), ErrInvalidSignature)

	missing := headerMap(map[string]string{})
	assert.ErrorIs(t, c.VerifyNotification(missing, nil, n), ErrInvalidSignature)

	// Without a configured secret verification is skipped.
	open := NewMercadoPagoClient(MercadoPagoConfig{}, nil)
	assert.NoError(t, open.VerifyNotification(missing, nil, n))
}

func TestAsaasCreateCharge(t *testing.T) {
	var paymentBody map[string]any
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("access_token"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			assert.Equal(t, "account:7", r.URL.Query().Get("externalReference"))
			_, _ = w.Write([]byte(`{"data":[]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			_, _ = w.Write([]byte(`{"id":"cus_1"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/payments":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&paymentBody))
			_, _ = w.Write([]byte(`{"id":"pay_1","status":"PENDING"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/payments/pay_1/pixQrCode":
			_, _ = w.Write([]byte(`{"encodedImage":"img","payload":"00020101pix","expirationDate":"2025-05-10 23:59:59"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewAsaasClient(AsaasConfig{APIKey: "key", BaseURL: srv.URL}, nil)
	charge, err := c.CreateCharge(context.Background(), ChargeRequest{
		Amount:            decimal.RequireFromString("19.90"),
		Description:       "100 credits",
		Payer:             Payer{AccountID: 7, Email: "a@b.c"},
		ExternalReference: "tx-7",
		ExpiresIn:         time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", charge.ExternalID)
	assert.Equal(t, "00020101pix", charge.QRPayload)
	assert.Equal(t, "img", charge.QRImageBase64)
	assert.Equal(t, 23, charge.ExpiresAt.Hour())
	assert.Equal(t, []string{"GET /customers", "POST /customers", "POST /payments", "GET /payments/pay_1/pixQrCode"}, calls)

	assert.Equal(t, "cus_1", paymentBody["customer"])
	assert.Equal(t, "PIX", paymentBody["billingType"])
	assert.Equal(t, 19.9, paymentBody["value"])
	assert.Equal(t, "tx-7", paymentBody["externalReference"])
}

func TestAsaasReusesExistingCustomerAndReadsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/customers":
			_, _ = w.Write([]byte(`{"data":[{"id":"cus_existing"}]}`))
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			t.Fatalf("customer must not be created twice")
		case r.Method == http.MethodGet && r.URL.Path == "/payments/pay_9":
			_, _ = w.Write([]byte(`{"id":"pay_9","status":"RECEIVED"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewAsaasClient(AsaasConfig{APIKey: "key", BaseURL: srv.URL}, nil)
	id, err := c.ensureCustomer(context.Background(), Payer{AccountID: 1})
	require.NoError(t, err)
	assert.Equal(t, "cus_existing", id)

	status, err := c.GetChargeStatus(context.Background(), "pay_9")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusApproved, status)
}

func TestAsaasWebhook(t *testing.T) {
	c := NewAsaasClient(AsaasConfig{WebhookToken: "whk"}, nil)

	n, err := c.ParseNotification([]byte(`{"id":"evt_1","event":"PAYMENT_RECEIVED","payment":{"id":"pay_1","status":"RECEIVED"}}`), nil)
	require.NoError(t, err)
	assert.True(t, n.IsPaymentEvent)
	assert.Equal(t, "pay_1", n.ExternalID)
	assert.Equal(t, "evt_1", n.DeliveryID)

	n, err = c.ParseNotification([]byte(`{"event":"TRANSFER_DONE"}`), nil)
	require.NoError(t, err)
	assert.False(t, n.IsPaymentEvent)
	assert.Empty(t, n.ExternalID)

	assert.NoError(t, c.VerifyNotification(headerMap(map[string]string{"asaas-access-token": "whk"}), nil, n))
	assert.ErrorIs(t, c.VerifyNotification(headerMap(map[string]string{"asaas-access-token": "nope"}), nil, n), ErrInvalidSignature)
}

type countingSource struct {
	cfg   Config
	calls int
}

func (s *countingSource) PaymentConfig(context.Context) (Config, error) {
	s.calls++
	return s.cfg, nil
}

func TestRegistry(t *testing.T) {
	src := &countingSource{cfg: Config{Active: models.GatewayAsaas, PixExpiration: 15 * time.Minute}}
	r := NewRegistry(src, nil)

	active, ttl, err := r.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.GatewayAsaas, active.Name())
	assert.Equal(t, 15*time.Minute, ttl)

	// Webhooks for the inactive gateway still resolve.
	mp, err := r.Get(context.Background(), "MercadoPago")
	require.NoError(t, err)
	assert.Equal(t, models.GatewayMercadoPago, mp.Name())

	src.cfg.Active = models.GatewayMercadoPago
	active, _, err = r.Active(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.GatewayMercadoPago, active.Name())

	_, err = r.Get(context.Background(), "paypal")
	assert.ErrorIs(t, err, ErrUnknownGateway)

	src.cfg.Active = "stripe"
	_, _, err = r.Active(context.Background())
	assert.ErrorIs(t, err, ErrUnknownGateway)
}

func TestGatewayErrorRetryable(t *testing.T) {
	assert.True(t, (&GatewayError{Err: errors.New("dial tcp")}).Retryable())
	assert.True(t, (&GatewayError{StatusCode: 503}).Retryable())
	assert.True(t, (&GatewayError{StatusCode: 429}).Retryable())
	assert.False(t, (&GatewayError{StatusCode: 401}).Retryable())
}
