package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// settingRepository implements the SettingRepository interface
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// All returns every stored setting keyed by setting key
func (r *settingRepository) All(ctx context.Context) (map[string]string, error) {
	return models.LoadSettingValues(r.db.WithContext(ctx))
}

// SetValue sets a specific setting value by key
func (r *settingRepository) SetValue(ctx context.Context, key, value string) error {
	return models.SaveSettingValue(r.db.WithContext(ctx), key, value)
}
