package models

import "time"

const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)

type Conversation struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;index:idx_conversations_account_agent,priority:1" json:"account_id"`
	AgentID   uint      `gorm:"not null;index:idx_conversations_account_agent,priority:2" json:"agent_id"`
	Title     string    `gorm:"type:varchar(255);not null;default:''" json:"title"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ConversationID string    `gorm:"type:char(36);not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	Role           string    `gorm:"type:varchar(20);not null" json:"role"`
	Content        string    `gorm:"type:longtext" json:"content"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_messages_conversation_created,priority:2" json:"created_at"`
}
