package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// AccountRepository defines the interface for account lookups outside the ledger
type AccountRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	GetByExternalUserID(ctx context.Context, externalUserID string) (*models.Account, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error)
	TouchAPIKey(ctx context.Context, id uint) error
	SaveAPIKey(ctx context.Context, account *models.Account) error
}

// AgentRepository defines the interface for agent configuration
type AgentRepository interface {
	GetAgent(ctx context.Context, id uint) (*models.Agent, error)
	ListKnowledge(ctx context.Context, agentID uint) ([]models.AgentKnowledge, error)
}

// ProductRepository defines the interface for the purchasable catalogue
type ProductRepository interface {
	GetCreditPackage(ctx context.Context, id uint) (*models.CreditPackage, error)
	GetCombo(ctx context.Context, id uint) (*models.Combo, error)
}

// ConversationRepository defines the interface for chat history
type ConversationRepository interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	AppendMessages(ctx context.Context, messages ...*models.Message) error
}

// SettingRepository defines the interface for runtime settings
type SettingRepository interface {
	All(ctx context.Context) (map[string]string, error)
	SetValue(ctx context.Context, key, value string) error
}

// Catalog combines agent and product lookups for checkout.
type Catalog struct {
	AgentRepository
	ProductRepository
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account      AccountRepository
	Agent        AgentRepository
	Product      ProductRepository
	Conversation ConversationRepository
	Setting      SettingRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:      NewAccountRepository(db),
		Agent:        NewAgentRepository(db),
		Product:      NewProductRepository(db),
		Conversation: NewConversationRepository(db),
		Setting:      NewSettingRepository(db),
	}
}

// Catalog returns the agent and product repositories as one checkout catalogue
func (r *Repositories) Catalog() Catalog {
	return Catalog{AgentRepository: r.Agent, ProductRepository: r.Product}
}
