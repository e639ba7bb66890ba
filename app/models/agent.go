package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Agent is a purchasable LLM chatbot configuration. Public agents are listed
// in the catalogue; premium or private agents require ownership or an entitlement.
type Agent struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	OwnerAccountID     *uint           `gorm:"index" json:"owner_account_id,omitempty"`
	Name               string          `gorm:"type:varchar(150);not null" json:"name"`
	Description        string          `gorm:"type:text" json:"description"`
	Model              string          `gorm:"type:varchar(100);not null" json:"model"`
	SystemInstructions string          `gorm:"type:longtext" json:"-"`
	IsPublic           bool            `gorm:"not null;default:false;index" json:"is_public"`
	IsPremium          bool            `gorm:"not null;default:false" json:"is_premium"`
	IsFree             bool            `gorm:"not null;default:true" json:"is_free"`
	Price              decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"price"`
	BonusCredits       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"bonus_credits"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsOwnedBy reports whether accountID created the agent.
func (a *Agent) IsOwnedBy(accountID uint) bool {
	return a != nil && a.OwnerAccountID != nil && *a.OwnerAccountID == accountID
}

// AgentKnowledge is extracted reference text attached to an agent.
type AgentKnowledge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AgentID   uint      `gorm:"not null;index" json:"agent_id"`
	Title     string    `gorm:"type:varchar(255);not null;default:''" json:"title"`
	Content   string    `gorm:"type:longtext" json:"content"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
