package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
	"github.com/ManuelReschke/AgentHub/internal/pkg/payment"
)

type memoryRepo struct {
	mu     sync.Mutex
	txs    map[string]*models.Transaction
	events map[string]*models.BillingWebhookEvent
	nextID uint
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{txs: map[string]*models.Transaction{}, events: map[string]*models.BillingWebhookEvent{}}
}

func (r *memoryRepo) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *tx
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	r.txs[tx.ID] = &cp
	return nil
}

func (r *memoryRepo) GetTransaction(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (r *memoryRepo) FindTransactionByCharge(_ context.Context, gateway, externalID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.txs {
		if tx.Gateway == gateway && tx.ExternalChargeID != nil && *tx.ExternalChargeID == externalID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrTransactionNotFound
}

func (r *memoryRepo) AttachCharge(_ context.Context, id, externalID string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok || tx.ExternalChargeID != nil {
		return ErrTransactionNotFound
	}
	tx.ExternalChargeID = &externalID
	return nil
}

func (r *memoryRepo) TransitionStatus(_ context.Context, id string, from []string, to string, updates map[string]interface{}) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if tx.Status == f {
			tx.Status = to
			if reason, ok := updates["failure_reason"].(string); ok {
				tx.FailureReason = reason
			}
			if at, ok := updates["approved_at"].(*time.Time); ok {
				tx.ApprovedAt = at
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Gateway + "|" + event.DeliveryID
	if stored, ok := r.events[key]; ok {
		return false, stored, nil
	}
	r.nextID++
	event.ID = r.nextID
	r.events[key] = event
	return true, event, nil
}

func (r *memoryRepo) MarkWebhookProcessed(_ context.Context, id uint, outcome, reason, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.Outcome, e.Reason, e.ProcessingError = outcome, reason, processingError
			return nil
		}
	}
	return errors.New("event not found")
}

func (r *memoryRepo) ListStalePending(_ context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Transaction
	for _, tx := range r.txs {
		if tx.Status == models.TransactionStatusPending && tx.CreatedAt.Before(createdBefore) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs[id].Status
}

type memoryLedger struct {
	mu       sync.Mutex
	accounts map[uint]*models.Account
	grants   map[string]decimal.Decimal
	failNext error
}

func newMemoryLedger(accounts ...*models.Account) *memoryLedger {
	l := &memoryLedger{accounts: map[uint]*models.Account{}, grants: map[string]decimal.Decimal{}}
	for _, a := range accounts {
		l.accounts[a.ID] = a
	}
	return l
}

func (l *memoryLedger) GetAccount(_ context.Context, id uint) (*models.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[id]
	if !ok {
		return nil, errors.New("account not found")
	}
	cp := *a
	return &cp, nil
}

func (l *memoryLedger) CreditOnce(_ context.Context, accountID uint, amount decimal.Decimal, key, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext != nil {
		err := l.failNext
		l.failNext = nil
		return false, err
	}
	if _, ok := l.grants[key]; ok {
		return false, nil
	}
	l.grants[key] = amount
	l.accounts[accountID].TotalCredits = l.accounts[accountID].TotalCredits.Add(amount)
	return true, nil
}

func (l *memoryLedger) total(id uint) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[id].TotalCredits
}

type entitlementKey struct{ account, agent uint }

type memoryEntitlements struct {
	mu     sync.Mutex
	grants map[entitlementKey]string
	calls  int
}

func newMemoryEntitlements() *memoryEntitlements {
	return &memoryEntitlements{grants: map[entitlementKey]string{}}
}

func (e *memoryEntitlements) Grant(_ context.Context, accountID, agentID uint, txID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	k := entitlementKey{accountID, agentID}
	if _, ok := e.grants[k]; ok {
		return false, nil
	}
	e.grants[k] = txID
	return true, nil
}

func (e *memoryEntitlements) Has(_ context.Context, accountID, agentID uint) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.grants[entitlementKey{accountID, agentID}]
	return ok, nil
}

func (e *memoryEntitlements) RevokeByTransaction(_ context.Context, txID string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var n int64
	for k, v := range e.grants {
		if v == txID {
			delete(e.grants, k)
			n++
		}
	}
	return n, nil
}

func (e *memoryEntitlements) count(accountID uint) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for k := range e.grants {
		if k.account == accountID {
			n++
		}
	}
	return n
}

type memoryCatalog struct {
	packages map[uint]*models.CreditPackage
	agents   map[uint]*models.Agent
	combos   map[uint]*models.Combo
}

func (c *memoryCatalog) GetCreditPackage(_ context.Context, id uint) (*models.CreditPackage, error) {
	if p, ok := c.packages[id]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (c *memoryCatalog) GetAgent(_ context.Context, id uint) (*models.Agent, error) {
	if a, ok := c.agents[id]; ok {
		return a, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (c *memoryCatalog) GetCombo(_ context.Context, id uint) (*models.Combo, error) {
	if cb, ok := c.combos[id]; ok {
		return cb, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeGateway struct {
	name      string
	mu        sync.Mutex
	statuses  map[string]string
	createErr error
	statusErr error
	seq       int
	requests  []payment.ChargeRequest
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreateCharge(_ context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.seq++
	id := fmt.Sprintf("%s-charge-%d", g.name, g.seq)
	if g.statuses == nil {
		g.statuses = map[string]string{}
	}
	g.statuses[id] = models.TransactionStatusPending
	return &payment.Charge{ExternalID: id, Status: models.TransactionStatusPending, QRPayload: "000201pix", ExpiresAt: time.Now().Add(req.ExpiresIn)}, nil
}

func (g *fakeGateway) GetChargeStatus(_ context.Context, id string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return "", g.statusErr
	}
	s, ok := g.statuses[id]
	if !ok {
		return "", &payment.GatewayError{Gateway: g.name, Op: "get_status", StatusCode: 404}
	}
	return s, nil
}

func (g *fakeGateway) setStatus(id, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[id] = status
}

func (g *fakeGateway) ParseNotification([]byte, payment.Getter) (*payment.Notification, error) {
	return nil, errors.New("not used")
}

func (g *fakeGateway) VerifyNotification(payment.Getter, []byte, *payment.Notification) error {
	return nil
}

type fakeGateways struct {
	active   string
	adapters map[string]*fakeGateway
}

func (f *fakeGateways) Active(context.Context) (payment.Adapter, time.Duration, error) {
	return f.adapters[f.active], 30 * time.Minute, nil
}

func (f *fakeGateways) Get(_ context.Context, name string) (payment.Adapter, error) {
	a, ok := f.adapters[name]
	if !ok {
		return nil, payment.ErrUnknownGateway
	}
	return a, nil
}
