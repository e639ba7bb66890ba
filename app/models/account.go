package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ACCOUNT_STATUS_ACTIVE   = "active"
	ACCOUNT_STATUS_DISABLED = "disabled"
)

// Account is a user's billing identity. Available credits are never stored,
// they are always derived from TotalCredits and UsedCredits.
type Account struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	ExternalUserID   string          `gorm:"type:varchar(191);not null;uniqueIndex" json:"external_user_id"`
	Email            string          `gorm:"type:varchar(200);default:''" json:"email"`
	Name             string          `gorm:"type:varchar(150);default:''" json:"name"`
	TaxID            string          `gorm:"type:varchar(20);default:''" json:"-"`
	Status           string          `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	TotalCredits     decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"total_credits"`
	UsedCredits      decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0" json:"used_credits"`
	APIKeyHash       string          `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix     string          `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time      `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time      `json:"api_key_last_used_at"`
	APIKeyRevokedAt  *time.Time      `json:"api_key_revoked_at"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// AvailableCredits returns max(0, total - used).
func (a *Account) AvailableCredits() decimal.Decimal {
	if a == nil {
		return decimal.Zero
	}
	available := a.TotalCredits.Sub(a.UsedCredits)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

func (a *Account) IsActive() bool {
	return a != nil && a.Status == ACCOUNT_STATUS_ACTIVE
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "agh_"

// HasActiveAPIKey reports whether the account has an active API key configured
func (a *Account) HasActiveAPIKey() bool {
	return a != nil && a.APIKeyHash != "" && a.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new API key, persists metadata on the struct, and returns the raw secret.
// Callers must persist the struct via the database after invoking this method.
func (a *Account) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now()
	a.APIKeyHash = hash
	a.APIKeyPrefix = prefix
	a.APIKeyCreatedAt = &now
	a.APIKeyRevokedAt = nil
	a.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the stored API key metadata without deleting the record.
func (a *Account) RevokeAPIKey() {
	a.APIKeyHash = ""
	a.APIKeyPrefix = ""
	now := time.Now()
	a.APIKeyRevokedAt = &now
	a.APIKeyLastUsedAt = nil
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(apiKeyEncoding.EncodeToString(b))
	rawKey := apiKeyPrefix + encoded
	if len(rawKey) < 12 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	prefix := rawKey[:min(len(rawKey), 16)]
	return rawKey, prefix, HashAPIKey(rawKey), nil
}
