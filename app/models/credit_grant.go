package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Credit grant reasons.
const (
	CreditGrantReasonSignup   = "signup"
	CreditGrantReasonPurchase = "purchase"
)

// CreditGrant records one increment of an account's total credits. GrantKey
// is unique, so a grant is applied at most once across webhook redeliveries.
type CreditGrant struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	AccountID uint            `gorm:"not null;index" json:"account_id"`
	GrantKey  string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"grant_key"`
	Reason    string          `gorm:"type:varchar(30);not null" json:"reason"`
	Amount    decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"amount"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
