package models

import (
	"time"

	"github.com/erp/catalogsync/internal/domain/notification"
	"github.com/google/uuid"
)

// SendRecordModel is the persistence model for notification.SendRecord
type SendRecordModel struct {
	ID         uuid.UUID               `gorm:"type:uuid;primaryKey"`
	KeyHash    string                  `gorm:"type:char(64);not null;index:idx_send_records_key_created,priority:1"`
	TemplateID string                  `gorm:"type:varchar(100);not null"`
	Recipient  string                  `gorm:"type:varchar(320);not null"`
	CampaignID string                  `gorm:"type:varchar(100)"`
	Status     notification.SendStatus `gorm:"type:varchar(20);not null"`
	Error      string                  `gorm:"type:text"`
	CreatedAt  time.Time               `gorm:"not null;index:idx_send_records_key_created,priority:2"`
}

// TableName returns the table name for GORM
func (SendRecordModel) TableName() string {
	return "notification_send_records"
}

// ToDomain converts the persistence model to a domain SendRecord
func (m *SendRecordModel) ToDomain() *notification.SendRecord {
	return &notification.SendRecord{
		ID: m.ID,
		Key: notification.DedupKey{
			TemplateID: m.TemplateID,
			Recipient:  m.Recipient,
			CampaignID: m.CampaignID,
		},
		KeyHash:   m.KeyHash,
		Status:    m.Status,
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
	}
}

// SendRecordModelFromDomain creates a new persistence model from a domain SendRecord
func SendRecordModelFromDomain(r *notification.SendRecord) *SendRecordModel {
	return &SendRecordModel{
		ID:         r.ID,
		KeyHash:    r.KeyHash,
		TemplateID: r.Key.TemplateID,
		Recipient:  r.Key.Recipient,
		CampaignID: r.Key.CampaignID,
		Status:     r.Status,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
	}
}
