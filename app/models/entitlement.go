package models

import "time"

// Entitlement unlocks a private or premium agent for an account. The
// (account, agent) pair is unique; TransactionID points at the purchase that
// created it so a refund can revoke exactly what that purchase granted.
type Entitlement struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AccountID     uint      `gorm:"not null;index:ux_entitlements_account_agent,unique,priority:1" json:"account_id"`
	AgentID       uint      `gorm:"not null;index:ux_entitlements_account_agent,unique,priority:2" json:"agent_id"`
	TransactionID string    `gorm:"type:char(36);not null;index" json:"transaction_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
