package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/AgentHub/app/models"
)

const (
	defaultMercadoPagoBaseURL = "https://api.mercadopago.com"
	mercadoPagoTimeLayout     = "2006-01-02T15:04:05.000-07:00"
)

type MercadoPagoConfig struct {
	AccessToken     string
	WebhookSecret   string
	BaseURL         string
	NotificationURL string
}

// MercadoPagoClient creates PIX payments through the Mercado Pago payments API.
type MercadoPagoClient struct {
	cfg        MercadoPagoConfig
	HTTPClient *http.Client
}

func NewMercadoPagoClient(cfg MercadoPagoConfig, httpClient *http.Client) *MercadoPagoClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultMercadoPagoBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &MercadoPagoClient{cfg: cfg, HTTPClient: httpClient}
}

func (c *MercadoPagoClient) Name() string { return models.GatewayMercadoPago }

// flexibleID accepts ids encoded either as JSON numbers or strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexibleID(n.String())
	return nil
}

type mercadoPagoPayment struct {
	ID                 flexibleID `json:"id"`
	Status             string     `json:"status"`
	StatusDetail       string     `json:"status_detail"`
	ExternalReference  string     `json:"external_reference"`
	DateOfExpiration   string     `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
			TicketURL    string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (c *MercadoPagoClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if strings.TrimSpace(c.cfg.AccessToken) == "" {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", Err: ErrNotConfigured}
	}
	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 30 * time.Minute
	}
	expiresAt := time.Now().Add(expiresIn)

	payer := map[string]any{"email": req.Payer.Email}
	if name := strings.TrimSpace(req.Payer.Name); name != "" {
		payer["first_name"] = name
	}
	if taxID := onlyDigits(req.Payer.TaxID); taxID != "" {
		idType := "CPF"
		if len(taxID) > 11 {
			idType = "CNPJ"
		}
		payer["identification"] = map[string]string{"type": idType, "number": taxID}
	}
	body := map[string]any{
		"transaction_amount": json.Number(req.Amount.StringFixed(2)),
		"description":        req.Description,
		"payment_method_id":  "pix",
		"external_reference": req.ExternalReference,
		"date_of_expiration": expiresAt.Format(mercadoPagoTimeLayout),
		"payer":              payer,
	}
	if c.cfg.NotificationURL != "" {
		body["notification_url"] = c.cfg.NotificationURL
	}

	raw, status, err := c.do(ctx, http.MethodPost, "/v1/payments", body, req.ExternalReference)
	if err != nil {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", StatusCode: status, Body: truncateBody(raw)}
	}

	var p mercadoPagoPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", StatusCode: status, Body: truncateBody(raw), Err: err}
	}
	qr := p.PointOfInteraction.TransactionData
	if p.ID == "" || qr.QRCode == "" {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", StatusCode: status, Body: truncateBody(raw), Err: fmt.Errorf("response without payment id or qr code")}
	}
	if t, err := time.Parse(mercadoPagoTimeLayout, p.DateOfExpiration); err == nil {
		expiresAt = t
	}
	return &Charge{
		ExternalID:    string(p.ID),
		Status:        MercadoPagoStatusToTransactionStatus(p.Status),
		QRPayload:     qr.QRCode,
		QRImageBase64: qr.QRCodeBase64,
		TicketURL:     qr.TicketURL,
		ExpiresAt:     expiresAt,
		Raw:           raw,
	}, nil
}

func (c *MercadoPagoClient) GetChargeStatus(ctx context.Context, externalID string) (string, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", Err: fmt.Errorf("external id is required")}
	}
	if strings.TrimSpace(c.cfg.AccessToken) == "" {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", Err: ErrNotConfigured}
	}
	raw, status, err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(id), nil, "")
	if err != nil {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", StatusCode: status, Body: truncateBody(raw)}
	}
	var p mercadoPagoPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", StatusCode: status, Body: truncateBody(raw), Err: err}
	}
	return MercadoPagoStatusToTransactionStatus(p.Status), nil
}

func (c *MercadoPagoClient) do(ctx context.Context, method, path string, payload any, idempotencyKey string) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return body, resp.StatusCode, nil
}

// MercadoPagoStatusToTransactionStatus maps Mercado Pago payment statuses to
// the transaction vocabulary.
func MercadoPagoStatusToTransactionStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved", "authorized":
		return models.TransactionStatusApproved
	case "rejected":
		return models.TransactionStatusRejected
	case "cancelled", "canceled", "expired":
		return models.TransactionStatusCancelled
	case "refunded", "charged_back":
		return models.TransactionStatusRefunded
	default:
		// pending, in_process, in_mediation and anything new.
		return models.TransactionStatusPending
	}
}

type mercadoPagoWebhook struct {
	ID     flexibleID `json:"id"`
	Type   string     `json:"type"`
	Topic  string     `json:"topic"`
	Action string     `json:"action"`
	Data   struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

// ParseNotification understands both the JSON webhook body and the legacy
// query string form (?topic=payment&id=123 or ?type=payment&data.id=123).
func (c *MercadoPagoClient) ParseNotification(body []byte, query Getter) (*Notification, error) {
	var w mercadoPagoWebhook
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	eventType := strings.TrimSpace(w.Type)
	if eventType == "" {
		eventType = strings.TrimSpace(w.Topic)
	}
	externalID := string(w.Data.ID)
	if query != nil {
		if eventType == "" {
			eventType = strings.TrimSpace(firstNonEmpty(query("type"), query("topic")))
		}
		if externalID == "" {
			externalID = strings.TrimSpace(query("data.id"))
		}
		if externalID == "" && strings.EqualFold(eventType, "payment") {
			externalID = strings.TrimSpace(query("id"))
		}
	}
	if eventType == "" && w.Action != "" {
		eventType = strings.SplitN(w.Action, ".", 2)[0]
	}

	return &Notification{
		DeliveryID:     string(w.ID),
		EventType:      eventType,
		ExternalID:     externalID,
		IsPaymentEvent: strings.EqualFold(eventType, "payment"),
	}, nil
}

// VerifyNotification validates the x-signature header: an HMAC-SHA256 over
// the manifest "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func (c *MercadoPagoClient) VerifyNotification(headers Getter, body []byte, n *Notification) error {
	secret := strings.TrimSpace(c.cfg.WebhookSecret)
	if secret == "" {
		return nil
	}
	if headers == nil || n == nil {
		return ErrInvalidSignature
	}
	ts, v1 := parseMercadoPagoSignature(headers("x-signature"))
	if ts == "" || v1 == "" {
		return ErrInvalidSignature
	}
	expected, err := hex.DecodeString(strings.ToLower(v1))
	if err != nil {
		return ErrInvalidSignature
	}

	var manifest strings.Builder
	if n.ExternalID != "" {
		manifest.WriteString("id:" + strings.ToLower(n.ExternalID) + ";")
	}
	if reqID := strings.TrimSpace(headers("x-request-id")); reqID != "" {
		manifest.WriteString("request-id:" + reqID + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest.String()))
	if !hmac.Equal(mac.Sum(nil), expected) {
		return ErrInvalidSignature
	}
	return nil
}

func parseMercadoPagoSignature(header string) (ts, v1 string) {
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "ts":
			ts = strings.TrimSpace(v)
		case "v1":
			v1 = strings.TrimSpace(v)
		}
	}
	return ts, v1
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
