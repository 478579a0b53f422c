package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/erp/catalogsync/internal/domain/notification"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSendRecordRepository implements notification.SendRecordRepository using GORM
type GormSendRecordRepository struct {
	db *gorm.DB
}

// NewGormSendRecordRepository creates a new GormSendRecordRepository
func NewGormSendRecordRepository(db *gorm.DB) *GormSendRecordRepository {
	return &GormSendRecordRepository{db: db}
}

// FindLastSent returns the latest sent record for keyHash created after since
func (r *GormSendRecordRepository) FindLastSent(ctx context.Context, keyHash string, since time.Time) (*notification.SendRecord, error) {
	var model models.SendRecordModel
	err := r.db.WithContext(ctx).
		Where("key_hash = ? AND status = ? AND created_at > ?", keyHash, notification.SendStatusSent, since).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save appends a send record
func (r *GormSendRecordRepository) Save(ctx context.Context, record *notification.SendRecord) error {
	return r.db.WithContext(ctx).Create(models.SendRecordModelFromDomain(record)).Error
}

// DeleteOlderThan removes records created before the given time
func (r *GormSendRecordRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.SendRecordModel{})
	return result.RowsAffected, result.Error
}

// Ensure GormSendRecordRepository implements notification.SendRecordRepository
var _ notification.SendRecordRepository = (*GormSendRecordRepository)(nil)
