package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageRecord is the immutable metering row written once per chat turn.
// Cost is the amount the turn was billed for; a failed debit is reported
// through the billing-failure log and metric, never by mutating this row.
type UsageRecord struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	AccountID      uint            `gorm:"not null;index:idx_usage_records_account_created,priority:1" json:"account_id"`
	AgentID        uint            `gorm:"not null;index" json:"agent_id"`
	ConversationID string          `gorm:"type:char(36);not null;default:'';index" json:"conversation_id"`
	Model          string          `gorm:"type:varchar(100);not null" json:"model"`
	InputTokens    int             `gorm:"not null;default:0" json:"input_tokens"`
	OutputTokens   int             `gorm:"not null;default:0" json:"output_tokens"`
	CachedTokens   int             `gorm:"not null;default:0" json:"cached_tokens"`
	TotalTokens    int             `gorm:"not null;default:0" json:"total_tokens"`
	Estimated      bool            `gorm:"not null;default:false" json:"estimated"`
	CacheHit       bool            `gorm:"not null;default:false" json:"cache_hit"`
	Cost           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"cost"`
	CreatedAt      time.Time       `gorm:"autoCreateTime;index:idx_usage_records_account_created,priority:2" json:"created_at"`
}
