package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Transaction kinds.
const (
	TransactionKindCredits = "credits"
	TransactionKindAgent   = "agent"
	TransactionKindCombo   = "combo"
)

// Transaction statuses. Only pending is non-terminal.
const (
	TransactionStatusPending   = "pending"
	TransactionStatusApproved  = "approved"
	TransactionStatusRejected  = "rejected"
	TransactionStatusCancelled = "cancelled"
	TransactionStatusRefunded  = "refunded"
)

// Payment gateway identifiers.
const (
	GatewayMercadoPago = "mercadopago"
	GatewayAsaas       = "asaas"
)

// GrantSnapshot freezes what a transaction grants on approval at the moment
// the purchase was initiated, so later catalogue edits do not change it.
type GrantSnapshot struct {
	ProductName  string          `json:"product_name"`
	Price        decimal.Decimal `json:"price"`
	Credits      decimal.Decimal `json:"credits"`
	BonusCredits decimal.Decimal `json:"bonus_credits"`
	AgentIDs     []uint          `json:"agent_ids,omitempty"`
}

// GrantedCredits is the total credit amount applied when the transaction is approved.
func (s GrantSnapshot) GrantedCredits() decimal.Decimal {
	return s.Credits.Add(s.BonusCredits)
}

type Transaction struct {
	ID               string                            `gorm:"type:char(36);primaryKey" json:"id"`
	AccountID        uint                              `gorm:"not null;index" json:"account_id"`
	Kind             string                            `gorm:"type:varchar(20);not null" json:"kind"`
	Amount           decimal.Decimal                   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency         string                            `gorm:"type:char(3);not null;default:'BRL'" json:"currency"`
	Status           string                            `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Gateway          string                            `gorm:"type:varchar(20);not null;index:ux_transactions_gateway_external,unique,priority:1" json:"gateway"`
	ExternalChargeID *string                           `gorm:"type:varchar(191);index:ux_transactions_gateway_external,unique,priority:2" json:"external_charge_id,omitempty"`
	PaymentMethod    string                            `gorm:"type:varchar(20);not null;default:'pix'" json:"payment_method"`
	CreditPackageID  *uint                             `gorm:"index" json:"credit_package_id,omitempty"`
	AgentID          *uint                             `gorm:"index" json:"agent_id,omitempty"`
	ComboID          *uint                             `gorm:"index" json:"combo_id,omitempty"`
	Snapshot         datatypes.JSONType[GrantSnapshot] `gorm:"type:json" json:"snapshot"`
	GatewayPayload   datatypes.JSON                    `gorm:"type:json" json:"-"`
	FailureReason    string                            `gorm:"type:text" json:"failure_reason,omitempty"`
	ApprovedAt       *time.Time                        `gorm:"type:timestamp;default:null" json:"approved_at,omitempty"`
	CreatedAt        time.Time                         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time                         `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminalTransactionStatus reports whether status is any state other than pending.
func IsTerminalTransactionStatus(status string) bool {
	switch status {
	case TransactionStatusApproved, TransactionStatusRejected, TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	default:
		return false
	}
}
