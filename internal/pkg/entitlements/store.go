package entitlements

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// Store persists agent entitlements. Grant is idempotent on (account, agent).
type Store struct {
	db *gorm.DB
}

// NewStore creates an entitlement store backed by GORM.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Grant unlocks agentID for accountID on behalf of transactionID. It reports
// false without error when the account already held the entitlement.
func (s *Store) Grant(ctx context.Context, accountID, agentID uint, transactionID string) (bool, error) {
	if accountID == 0 || agentID == 0 || strings.TrimSpace(transactionID) == "" {
		return false, errors.New("account, agent and transaction are required")
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "agent_id"}},
		DoNothing: true,
	}).Create(&models.Entitlement{
		AccountID:     accountID,
		AgentID:       agentID,
		TransactionID: transactionID,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Has reports whether accountID holds an entitlement for agentID.
func (s *Store) Has(ctx context.Context, accountID, agentID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("account_id = ? AND agent_id = ?", accountID, agentID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// RevokeByTransaction deletes every entitlement created by transactionID and
// returns how many were removed. Entitlements of other purchases stay.
func (s *Store) RevokeByTransaction(ctx context.Context, transactionID string) (int64, error) {
	if strings.TrimSpace(transactionID) == "" {
		return 0, errors.New("transaction is required")
	}
	res := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Delete(&models.Entitlement{})
	return res.RowsAffected, res.Error
}

// AgentIDs lists the agents unlocked for an account.
func (s *Store) AgentIDs(ctx context.Context, accountID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Entitlement{}).
		Where("account_id = ?", accountID).
		Order("agent_id").
		Pluck("agent_id", &ids).Error
	return ids, err
}

// CheckAccess evaluates whether accountID may use agent, consulting stored
// entitlements only when visibility and ownership do not already decide it.
func (s *Store) CheckAccess(ctx context.Context, accountID uint, agent *models.Agent) (Access, error) {
	access := Evaluate(agent, accountID, false)
	if access != AccessDenied {
		return access, nil
	}
	entitled, err := s.Has(ctx, accountID, agent.ID)
	if err != nil {
		return AccessDenied, err
	}
	return Evaluate(agent, accountID, entitled), nil
}
