// Package notification holds the deduplication contract for outbound
// notifications: the same template is not sent twice to the same recipient
// (and campaign) within a window.
package notification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
)

// DefaultDedupWindow is how long a sent notification blocks an identical one
const DefaultDedupWindow = 180 * 24 * time.Hour

var (
	ErrDuplicateNotification = shared.NewDomainError("CONFLICT", "Notification already sent to this recipient within the dedup window")
	ErrInvalidDedupKey       = shared.NewDomainError("INVALID_INPUT", "Template and recipient are required")
	ErrDispatchFailed        = errors.New("notification: dispatch failed")
)

// DedupKey identifies a notification for deduplication
type DedupKey struct {
	TemplateID string `json:"template_id"`
	Recipient  string `json:"recipient"`
	CampaignID string `json:"campaign_id,omitempty"`
}

// NewDedupKey builds a key with a normalized recipient
func NewDedupKey(templateID, recipient, campaignID string) (DedupKey, error) {
	k := DedupKey{
		TemplateID: strings.TrimSpace(templateID),
		Recipient:  catalog.NormalizeNaturalKey(recipient),
		CampaignID: strings.TrimSpace(campaignID),
	}
	if k.TemplateID == "" || k.Recipient == "" {
		return DedupKey{}, ErrInvalidDedupKey
	}
	return k, nil
}

// Hash returns the stable digest the key is stored under
func (k DedupKey) Hash() string {
	sum := sha256.Sum256([]byte(k.TemplateID + "\x00" + k.Recipient + "\x00" + k.CampaignID))
	return hex.EncodeToString(sum[:])
}

// SendStatus is the outcome of a send request
type SendStatus string

const (
	SendStatusSent    SendStatus = "sent"
	SendStatusBlocked SendStatus = "blocked"
	SendStatusFailed  SendStatus = "failed"
)

// SendRecord is the durable log entry of one send request
type SendRecord struct {
	ID        uuid.UUID
	Key       DedupKey
	KeyHash   string
	Status    SendStatus
	Error     string
	CreatedAt time.Time
}

// NewSendRecord creates a record for key with status
func NewSendRecord(key DedupKey, status SendStatus) *SendRecord {
	return &SendRecord{
		ID:        uuid.New(),
		Key:       key,
		KeyHash:   key.Hash(),
		Status:    status,
		CreatedAt: time.Now(),
	}
}

// Message is what a dispatcher delivers
type Message struct {
	Key       DedupKey
	Subject   string
	Variables map[string]string
}

// Dispatcher delivers a message; template rendering and transport live behind it
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// SendRecordRepository persists send records
type SendRecordRepository interface {
	// FindLastSent returns the latest sent record for keyHash created after since,
	// or shared.ErrNotFound
	FindLastSent(ctx context.Context, keyHash string, since time.Time) (*SendRecord, error)
	Save(ctx context.Context, record *SendRecord) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}
