package billing

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/AgentHub/app/models"
)

// Repository provides DB operations used by checkout and reconciliation.
type Repository interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	FindTransactionByCharge(ctx context.Context, gateway, externalID string) (*models.Transaction, error)
	AttachCharge(ctx context.Context, id, externalID string, payload []byte) error
	TransitionStatus(ctx context.Context, id string, from []string, to string, updates map[string]interface{}) (bool, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, outcome, reason, processingError string) error
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *gormRepository) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// FindTransactionByCharge only matches transactions created on the given
// gateway, so one gateway's webhook never resolves another's charge.
func (r *gormRepository) FindTransactionByCharge(ctx context.Context, gateway, externalID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).
		Where("gateway = ? AND external_charge_id = ?", gateway, externalID).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &tx, nil
}

func (r *gormRepository) AttachCharge(ctx context.Context, id, externalID string, payload []byte) error {
	updates := map[string]interface{}{
		"external_charge_id": externalID,
	}
	if len(payload) > 0 {
		updates["gateway_payload"] = datatypes.JSON(payload)
	}
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND external_charge_id IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// TransitionStatus moves a transaction to status `to` only while it is in
// one of the `from` states. It reports false when another writer got there first.
func (r *gormRepository) TransitionStatus(ctx context.Context, id string, from []string, to string, updates map[string]interface{}) (bool, error) {
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "gateway"},
			{Name: "delivery_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("gateway = ? AND delivery_id = ?", event.Gateway, event.DeliveryID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, outcome, reason, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"outcome":          outcome,
		"reason":           reason,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

// ListStalePending returns pending transactions created before createdBefore, oldest first.
func (r *gormRepository) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.TransactionStatusPending, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}
