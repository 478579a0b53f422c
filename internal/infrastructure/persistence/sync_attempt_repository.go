package persistence

import (
	"context"
	"time"

	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncAttemptRepository implements integration.SyncAttemptRepository using GORM
type GormSyncAttemptRepository struct {
	db *gorm.DB
}

// NewGormSyncAttemptRepository creates a new GormSyncAttemptRepository
func NewGormSyncAttemptRepository(db *gorm.DB) *GormSyncAttemptRepository {
	return &GormSyncAttemptRepository{db: db}
}

// Save appends an attempt record
func (r *GormSyncAttemptRepository) Save(ctx context.Context, attempt *integration.SyncAttempt) error {
	return r.db.WithContext(ctx).Create(models.SyncAttemptModelFromDomain(attempt)).Error
}

// List returns attempts newest first
func (r *GormSyncAttemptRepository) List(ctx context.Context, filter integration.AttemptFilter) ([]*integration.SyncAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.SyncAttemptModel{})
	if filter.EntityID != nil {
		query = query.Where("entity_id = ?", *filter.EntityID)
	}
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform.String())
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	var rows []models.SyncAttemptModel
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return attemptsToDomain(rows), total, nil
}

// FindFailedLatest returns attempts that failed since the given time and have
// not been followed by a later non-skipped attempt for the same entity and platform
func (r *GormSyncAttemptRepository) FindFailedLatest(ctx context.Context, since time.Time, limit int) ([]*integration.SyncAttempt, error) {
	var rows []models.SyncAttemptModel
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND outcome = ?", since, integration.SyncOutcomeFailed).
		Where(`NOT EXISTS (SELECT 1 FROM sync_attempts later
			WHERE later.entity_id = sync_attempts.entity_id
			AND later.platform = sync_attempts.platform
			AND later.outcome <> ?
			AND later.created_at > sync_attempts.created_at)`, integration.SyncOutcomeSkipped).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return attemptsToDomain(rows), nil
}

// FindOlderThan returns a page of attempts created before the given time.
// The order is stable while no attempt older than before is inserted.
func (r *GormSyncAttemptRepository) FindOlderThan(ctx context.Context, before time.Time, offset, limit int) ([]*integration.SyncAttempt, error) {
	var rows []models.SyncAttemptModel
	err := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return attemptsToDomain(rows), nil
}

// DeleteOlderThan removes attempts created before the given time
func (r *GormSyncAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.SyncAttemptModel{})
	return result.RowsAffected, result.Error
}

func attemptsToDomain(rows []models.SyncAttemptModel) []*integration.SyncAttempt {
	out := make([]*integration.SyncAttempt, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out
}

// Ensure GormSyncAttemptRepository implements integration.SyncAttemptRepository
var _ integration.SyncAttemptRepository = (*GormSyncAttemptRepository)(nil)
