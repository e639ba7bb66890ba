package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// accountRepository implements the AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository instance
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// GetByID retrieves an account by its ID
func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).First(&account, id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByExternalUserID retrieves an account by the identity provider's user id
func (r *accountRepository) GetByExternalUserID(ctx context.Context, externalUserID string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("external_user_id = ?", strings.TrimSpace(externalUserID)).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByAPIKeyHash resolves an active API key hash to its account.
func (r *accountRepository) GetByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var account models.Account
	query := r.db.WithContext(ctx).Where("api_key_hash = ? AND api_key_hash <> '' AND api_key_revoked_at IS NULL", trimmed)
	if err := query.First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// TouchAPIKey records the last use of the account's API key
func (r *accountRepository) TouchAPIKey(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		UpdateColumn("api_key_last_used_at", time.Now()).Error
}

// SaveAPIKey persists the API key fields set by IssueAPIKey or RevokeAPIKey
func (r *accountRepository) SaveAPIKey(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"api_key_hash":         account.APIKeyHash,
			"api_key_prefix":       account.APIKeyPrefix,
			"api_key_created_at":   account.APIKeyCreatedAt,
			"api_key_last_used_at": account.APIKeyLastUsedAt,
			"api_key_revoked_at":   account.APIKeyRevokedAt,
		}).Error
}
