package broker

import (
	"strings"
	"time"

	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/notification"
)

// AttemptMessage is the body published for one sync attempt
type AttemptMessage struct {
	ID         string `json:"id"`
	EventID    string `json:"event_id"`
	Platform   string `json:"platform"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	NaturalKey string `json:"natural_key"`
	Operation  string `json:"operation"`
	Outcome    string `json:"outcome"`
	ExternalID string `json:"external_id,omitempty"`
	Created    bool   `json:"created,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	Calls      int    `json:"calls"`
	Cascade    bool   `json:"cascade,omitempty"`
	Trigger    string `json:"trigger,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	OccurredAt string `json:"occurred_at"`
}

// NewAttemptMessage converts an attempt record into its wire form
func NewAttemptMessage(a *integration.SyncAttempt) AttemptMessage {
	return AttemptMessage{
		ID:         a.ID.String(),
		EventID:    a.EventID.String(),
		Platform:   string(a.Platform),
		EntityID:   a.Entity.ID.String(),
		EntityKind: string(a.Entity.Kind),
		NaturalKey: a.Entity.NaturalKey,
		Operation:  string(a.Operation),
		Outcome:    string(a.Outcome),
		ExternalID: a.ExternalID.String(),
		Created:    a.Created,
		Reason:     a.Reason,
		Error:      a.Error,
		Calls:      a.Calls,
		Cascade:    a.Cascade,
		Trigger:    a.Trigger,
		DurationMS: a.Duration.Milliseconds(),
		OccurredAt: a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// RoutingKey returns attempt.<platform>.<outcome>. Dots in platform codes are
// replaced so the key keeps three words.
func RoutingKey(a *integration.SyncAttempt) string {
	platform := strings.ReplaceAll(string(a.Platform), ".", "_")
	return "attempt." + platform + "." + string(a.Outcome)
}

// NotificationMessage is the body published for one notification send
type NotificationMessage struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Campaign  string            `json:"campaign,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
	DedupKey  string            `json:"dedup_key"`
}

// NewNotificationMessage converts a notification into its wire form
func NewNotificationMessage(msg notification.Message) NotificationMessage {
	return NotificationMessage{
		Template:  msg.Key.TemplateID,
		Recipient: msg.Key.Recipient,
		Campaign:  msg.Key.CampaignID,
		Subject:   msg.Subject,
		Variables: msg.Variables,
		DedupKey:  msg.Key.Hash(),
	}
}

// NotificationRoutingKey returns notification.<template>
func NotificationRoutingKey(key notification.DedupKey) string {
	return "notification." + strings.ReplaceAll(key.TemplateID, ".", "_")
}
