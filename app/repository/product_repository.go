package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// productRepository implements the ProductRepository interface
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository instance
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// GetCreditPackage retrieves a credit package by its ID
func (r *productRepository) GetCreditPackage(ctx context.Context, id uint) (*models.CreditPackage, error) {
	var pkg models.CreditPackage
	if err := r.db.WithContext(ctx).First(&pkg, id).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

// GetCombo retrieves a combo with its member agents
func (r *productRepository) GetCombo(ctx context.Context, id uint) (*models.Combo, error) {
	var combo models.Combo
	err := r.db.WithContext(ctx).
		Preload("Agents", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&combo, id).Error
	if err != nil {
		return nil, err
	}
	return &combo, nil
}
