package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// agentRepository implements the AgentRepository interface
type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository creates a new agent repository instance
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

// GetAgent retrieves an agent by its ID
func (r *agentRepository) GetAgent(ctx context.Context, id uint) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).First(&agent, id).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListKnowledge returns the agent's knowledge entries in display order
func (r *agentRepository) ListKnowledge(ctx context.Context, agentID uint) ([]models.AgentKnowledge, error) {
	var entries []models.AgentKnowledge
	err := r.db.WithContext(ctx).
		Where("agent_id = ?", agentID).
		Order("position ASC, id ASC").
		Find(&entries).Error
	return entries, err
}
