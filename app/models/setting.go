package models

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Runtime setting keys editable by operators without a redeploy.
const (
	SettingActiveGateway          = "active_payment_gateway"
	SettingSignupFreeCredits      = "signup_free_credits"
	SettingPricingMultipliers     = "pricing_multipliers"
	SettingDefaultMultiplier      = "pricing_default_multiplier"
	SettingCacheDiscountRate      = "cache_discount_rate"
	SettingMercadoPagoAccessToken = "mercadopago_access_token"
	SettingMercadoPagoWebhookKey  = "mercadopago_webhook_secret"
	SettingAsaasAPIKey            = "asaas_api_key"
	SettingAsaasBaseURL           = "asaas_base_url"
	SettingAsaasWebhookToken      = "asaas_webhook_token"
	SettingPixExpirationMinutes   = "pix_expiration_minutes"
)

// IsKnownSetting reports whether key is one of the runtime setting keys.
func IsKnownSetting(key string) bool {
	switch key {
	case SettingActiveGateway, SettingSignupFreeCredits, SettingPricingMultipliers,
		SettingDefaultMultiplier, SettingCacheDiscountRate, SettingMercadoPagoAccessToken,
		SettingMercadoPagoWebhookKey, SettingAsaasAPIKey, SettingAsaasBaseURL,
		SettingAsaasWebhookToken, SettingPixExpirationMinutes:
		return true
	}
	return false
}

// IsSecretSetting reports whether the value of key is a credential.
func IsSecretSetting(key string) bool {
	switch key {
	case SettingMercadoPagoAccessToken, SettingMercadoPagoWebhookKey, SettingAsaasAPIKey, SettingAsaasWebhookToken:
		return true
	}
	return false
}

// Setting represents a system setting
type Setting struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"column:setting_key;size:255;not null;uniqueIndex" json:"key" validate:"required,min=1,max=255"`
	Value     string    `gorm:"type:text" json:"value"`
	Type      string    `gorm:"size:50;not null" json:"type" validate:"required"` // string, boolean, integer, float, json
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoadSettingValues returns all stored settings as a key/value map.
func LoadSettingValues(db *gorm.DB) (map[string]string, error) {
	var settings []Setting
	if err := db.Find(&settings).Error; err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	values := make(map[string]string, len(settings))
	for _, setting := range settings {
		values[setting.Key] = setting.Value
	}
	return values, nil
}

// SaveSettingValue creates or updates a single setting.
func SaveSettingValue(db *gorm.DB, key, value string) error {
	var setting Setting
	result := db.Where("setting_key = ?", key).First(&setting)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to query setting %s: %w", key, result.Error)
		}
		setting = Setting{
			Key:   key,
			Value: value,
			Type:  SettingTypeFor(key),
		}
		if err := db.Create(&setting).Error; err != nil {
			return fmt.Errorf("failed to create setting %s: %w", key, err)
		}
		return nil
	}

	setting.Value = value
	if err := db.Save(&setting).Error; err != nil {
		return fmt.Errorf("failed to update setting %s: %w", key, err)
	}
	return nil
}

// SettingTypeFor returns the type of a setting based on its key
func SettingTypeFor(key string) string {
	switch key {
	case SettingSignupFreeCredits, SettingCacheDiscountRate:
		return "float"
	case SettingDefaultMultiplier, SettingPixExpirationMinutes:
		return "integer"
	case SettingPricingMultipliers:
		return "json"
	default:
		return "string"
	}
}
