package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditPackage is a purchasable bundle of credits.
type CreditPackage struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"type:varchar(150);not null" json:"name"`
	Credits      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"credits"`
	BonusCredits decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"bonus_credits"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	IsActive     bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Combo is a promotional bundle unlocking several agents at once.
type Combo struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"type:varchar(150);not null" json:"name"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	OriginalPrice decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"original_price"`
	BonusCredits  decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"bonus_credits"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	ExpiresAt     *time.Time      `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	Agents        []ComboAgent    `gorm:"foreignKey:ComboID" json:"agents,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsExpired reports whether the offer window closed before now.
func (c *Combo) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// AgentIDs returns the member agent ids in stored order.
func (c *Combo) AgentIDs() []uint {
	ids := make([]uint, 0, len(c.Agents))
	for _, a := range c.Agents {
		ids = append(ids, a.AgentID)
	}
	return ids
}

type ComboAgent struct {
	ID      uint `gorm:"primaryKey" json:"id"`
	ComboID uint `gorm:"not null;index:ux_combo_agents_combo_agent,unique,priority:1" json:"combo_id"`
	AgentID uint `gorm:"not null;index:ux_combo_agents_combo_agent,unique,priority:2" json:"agent_id"`
}
