package payment

import (
	"bytes"
	"context"
	"crypto/subtle"
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
	defaultAsaasBaseURL = "https://api.asaas.com/v3"
	asaasDateLayout     = "2006-01-02"
	asaasDateTimeLayout = "2006-01-02 15:04:05"
)

type AsaasConfig struct {
	APIKey       string
	BaseURL      string
	WebhookToken string
}

// AsaasClient creates PIX charges through the Asaas v3 API. A charge needs a
// customer, so the payer is looked up or created first.
type AsaasClient struct {
	cfg        AsaasConfig
	HTTPClient *http.Client
}

func NewAsaasClient(cfg AsaasConfig, httpClient *http.Client) *AsaasClient {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAsaasBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &AsaasClient{cfg: cfg, HTTPClient: httpClient}
}

func (c *AsaasClient) Name() string { return models.GatewayAsaas }

type asaasCustomer struct {
	ID string `json:"id"`
}

type asaasPayment struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ExternalReference string `json:"externalReference"`
}

type asaasPixQRCode struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

func (c *AsaasClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", Err: ErrNotConfigured}
	}

	customerID, err := c.ensureCustomer(ctx, req.Payer)
	if err != nil {
		return nil, err
	}

	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 30 * time.Minute
	}
	expiresAt := time.Now().Add(expiresIn)

	raw, status, err := c.do(ctx, http.MethodPost, "/payments", map[string]any{
		"customer":          customerID,
		"billingType":       "PIX",
		"value":             json.Number(req.Amount.StringFixed(2)),
		"dueDate":           expiresAt.Format(asaasDateLayout),
		"description":       req.Description,
		"externalReference": req.ExternalReference,
	})
	if err != nil {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", StatusCode: status, Body: truncateBody(raw)}
	}
	var p asaasPayment
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return nil, &GatewayError{Gateway: c.Name(), Op: "create_charge", StatusCode: status, Body: truncateBody(raw), Err: err}
	}

	qrRaw, status, err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(p.ID)+"/pixQrCode", nil)
	if err != nil {
		return nil, &GatewayError{Gateway: c.Name(), Op: "pix_qr_code", Err: err}
	}
	if status < 200 || status >= 300 {
		return nil, &GatewayError{Gateway: c.Name(), Op: "pix_qr_code", StatusCode: status, Body: truncateBody(qrRaw)}
	}
	var qr asaasPixQRCode
	if err := json.Unmarshal(qrRaw, &qr); err != nil || qr.Payload == "" {
		return nil, &GatewayError{Gateway: c.Name(), Op: "pix_qr_code", StatusCode: status, Body: truncateBody(qrRaw), Err: err}
	}
	if t, err := time.ParseInLocation(asaasDateTimeLayout, qr.ExpirationDate, time.Local); err == nil {
		expiresAt = t
	}

	return &Charge{
		ExternalID:    p.ID,
		Status:        AsaasStatusToTransactionStatus(p.Status),
		QRPayload:     qr.Payload,
		QRImageBase64: qr.EncodedImage,
		ExpiresAt:     expiresAt,
		Raw:           raw,
	}, nil
}

// ensureCustomer reuses the Asaas customer tagged with the account reference
// or creates one.
func (c *AsaasClient) ensureCustomer(ctx context.Context, payer Payer) (string, error) {
	ref := fmt.Sprintf("account:%d", payer.AccountID)

	raw, status, err := c.do(ctx, http.MethodGet, "/customers?externalReference="+url.QueryEscape(ref), nil)
	if err != nil {
		return "", &GatewayError{Gateway: c.Name(), Op: "find_customer", Err: err}
	}
	if status >= 200 && status < 300 {
		var list struct {
			Data []asaasCustomer `json:"data"`
		}
		if err := json.Unmarshal(raw, &list); err == nil && len(list.Data) > 0 && list.Data[0].ID != "" {
			return list.Data[0].ID, nil
		}
	} else if status >= 500 {
		return "", &GatewayError{Gateway: c.Name(), Op: "find_customer", StatusCode: status, Body: truncateBody(raw)}
	}

	name := strings.TrimSpace(payer.Name)
	if name == "" {
		name = payer.Email
	}
	raw, status, err = c.do(ctx, http.MethodPost, "/customers", map[string]any{
		"name":              name,
		"email":             payer.Email,
		"cpfCnpj":           onlyDigits(payer.TaxID),
		"externalReference": ref,
	})
	if err != nil {
		return "", &GatewayError{Gateway: c.Name(), Op: "create_customer", Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &GatewayError{Gateway: c.Name(), Op: "create_customer", StatusCode: status, Body: truncateBody(raw)}
	}
	var customer asaasCustomer
	if err := json.Unmarshal(raw, &customer); err != nil || customer.ID == "" {
		return "", &GatewayError{Gateway: c.Name(), Op: "create_customer", StatusCode: status, Body: truncateBody(raw), Err: err}
	}
	return customer.ID, nil
}

func (c *AsaasClient) GetChargeStatus(ctx context.Context, externalID string) (string, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", Err: fmt.Errorf("external id is required")}
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", Err: ErrNotConfigured}
	}
	raw, status, err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", Err: err}
	}
	if status < 200 || status >= 300 {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", StatusCode: status, Body: truncateBody(raw)}
	}
	var p asaasPayment
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", &GatewayError{Gateway: c.Name(), Op: "get_status", StatusCode: status, Body: truncateBody(raw), Err: err}
	}
	return AsaasStatusToTransactionStatus(p.Status), nil
}

func (c *AsaasClient) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
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
	req.Header.Set("access_token", c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "agenthub")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	return body, resp.StatusCode, nil
}

// AsaasStatusToTransactionStatus maps Asaas payment statuses to the
// transaction vocabulary.
func AsaasStatusToTransactionStatus(status string) string {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "RECEIVED", "CONFIRMED", "RECEIVED_IN_CASH":
		return models.TransactionStatusApproved
	case "REFUNDED", "CHARGEBACK_REQUESTED":
		return models.TransactionStatusRefunded
	case "OVERDUE", "DELETED":
		return models.TransactionStatusCancelled
	case "REFUND_REQUESTED", "REFUND_IN_PROGRESS":
		// Money has not left yet; the purchase stays approved until REFUNDED arrives.
		return models.TransactionStatusApproved
	case "CHARGEBACK_DISPUTE", "AWAITING_CHARGEBACK_REVERSAL":
		// The merchant is contesting or has won; refunded is terminal.
		return models.TransactionStatusApproved
	default:
		// PENDING, AWAITING_RISK_ANALYSIS and anything new.
		return models.TransactionStatusPending
	}
}

type asaasWebhook struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment *struct {
		ID string `json:"id"`
	} `json:"payment"`
}

func (c *AsaasClient) ParseNotification(body []byte, _ Getter) (*Notification, error) {
	var w asaasWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	n := &Notification{
		DeliveryID: strings.TrimSpace(w.ID),
		EventType:  strings.TrimSpace(w.Event),
	}
	if w.Payment != nil {
		n.ExternalID = strings.TrimSpace(w.Payment.ID)
	}
	n.IsPaymentEvent = strings.HasPrefix(strings.ToUpper(n.EventType), "PAYMENT_")
	return n, nil
}

// VerifyNotification compares the asaas-access-token header with the
// configured webhook token.
func (c *AsaasClient) VerifyNotification(headers Getter, _ []byte, _ *Notification) error {
	token := strings.TrimSpace(c.cfg.WebhookToken)
	if token == "" {
		return nil
	}
	if headers == nil {
		return ErrInvalidSignature
	}
	got := strings.TrimSpace(headers("asaas-access-token"))
	if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}
