package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// Store keeps account balances, credit grants and usage records. Balance
// changes are single conditional UPDATE statements so concurrent calls for
// one account never read-then-write in the application.
type Store struct {
	db *gorm.DB
}

// NewStore creates a ledger backed by GORM.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// GetAccount loads an account by id.
func (s *Store) GetAccount(ctx context.Context, accountID uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetAvailableCredits returns max(0, total - used) for the account.
func (s *Store) GetAvailableCredits(ctx context.Context, accountID uint) (decimal.Decimal, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.AvailableCredits(), nil
}

// Debit adds amount to used_credits only if enough credits are available.
// It returns ErrInsufficientCredits when the guarded update matched no row.
func (s *Store) Debit(ctx context.Context, accountID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ? AND total_credits - used_credits >= ?", accountID, amount).
		Update("used_credits", gorm.Expr("used_credits + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("debit account %d: %w", accountID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientCredits
	}
	return nil
}

// Credit atomically adds amount to total_credits.
func (s *Store) Credit(ctx context.Context, accountID uint, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return increment(s.db.WithContext(ctx), accountID, amount)
}

// CreditOnce applies a credit grant identified by grantKey at most once. It
// reports false without error when the grant was already applied.
func (s *Store) CreditOnce(ctx context.Context, accountID uint, amount decimal.Decimal, grantKey, reason string) (bool, error) {
	key := strings.TrimSpace(grantKey)
	if key == "" {
		return false, ErrGrantKeyRequired
	}
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		grant := &models.CreditGrant{
			AccountID: accountID,
			GrantKey:  key,
			Reason:    reason,
			Amount:    amount,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "grant_key"}},
			DoNothing: true,
		}).Create(grant)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := increment(tx, accountID, amount); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func increment(db *gorm.DB, accountID uint, amount decimal.Decimal) error {
	res := db.Model(&models.Account{}).
		Where("id = ?", accountID).
		Update("total_credits", gorm.Expr("total_credits + ?", amount))
	if res.Error != nil {
		return fmt.Errorf("credit account %d: %w", accountID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// OpenAccount creates an account for an external user id and applies the
// signup grant. Calling it again for the same user returns the existing account.
func (s *Store) OpenAccount(ctx context.Context, externalUserID, email, name string, signupCredits decimal.Decimal) (*models.Account, error) {
	ext := strings.TrimSpace(externalUserID)
	if ext == "" {
		return nil, errors.New("external user id is required")
	}

	account := &models.Account{
		ExternalUserID: ext,
		Email:          strings.TrimSpace(email),
		Name:           strings.TrimSpace(name),
		Status:         models.ACCOUNT_STATUS_ACTIVE,
		TotalCredits:   decimal.Zero,
		UsedCredits:    decimal.Zero,
	}
	db := s.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoNothing: true,
	}).Create(account).Error; err != nil {
		return nil, err
	}
	var stored models.Account
	if err := db.Where("external_user_id = ?", ext).First(&stored).Error; err != nil {
		return nil, err
	}

	if signupCredits.IsPositive() {
		key := fmt.Sprintf("signup:%d", stored.ID)
		if _, err := s.CreditOnce(ctx, stored.ID, signupCredits, key, models.CreditGrantReasonSignup); err != nil {
			return nil, fmt.Errorf("apply signup grant: %w", err)
		}
		return s.GetAccount(ctx, stored.ID)
	}
	return &stored, nil
}

// RecordUsage inserts an immutable usage record.
func (s *Store) RecordUsage(ctx context.Context, record *models.UsageRecord) error {
	if record.AccountID == 0 {
		return errors.New("usage record requires an account")
	}
	return s.db.WithContext(ctx).Create(record).Error
}

// ListUsage returns the most recent usage records of an account, newest first.
func (s *Store) ListUsage(ctx context.Context, accountID uint, limit int) ([]models.UsageRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []models.UsageRecord
	err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
