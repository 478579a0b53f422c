package event

import (
	"testing"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogDeleteEvent(t *testing.T) *catalog.EntityDeletedEvent {
	t.Helper()
	entity, err := catalog.NewEntity(catalog.KindTerm, "fiction", "Fiction",
		catalog.TermDetail{Taxonomy: catalog.TaxonomyCategory})
	require.NoError(t, err)
	require.NoError(t, entity.ExternalIDs.Set("shop", "42"))
	sc := shared.FromPlatform("notes")
	return catalog.NewEntityDeletedEvent(entity, entity.Tombstone(sc.EventID), sc)
}

func TestNewOutboxEntry_CatalogEvent(t *testing.T) {
	serializer := NewEventSerializer()
	RegisterAllEvents(serializer)
	event := newCatalogDeleteEvent(t)
	payload, err := serializer.Serialize(event)
	require.NoError(t, err)

	entry := shared.NewOutboxEntry(event, payload)

	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, event.EventID(), entry.EventID)
	assert.Equal(t, catalog.EventTypeEntityDeleted, entry.EventType)
	assert.Equal(t, event.Entity().ID, entry.AggregateID)
	assert.Equal(t, catalog.AggregateTypeEntity, entry.AggregateType)
	assert.Equal(t, shared.OutboxStatusPending, entry.Status)
	assert.Zero(t, entry.RetryCount)
	assert.Equal(t, shared.DefaultMaxRetries, entry.MaxRetries)

	decoded, err := serializer.Deserialize(entry.EventType, entry.Payload)
	require.NoError(t, err)
	assert.Equal(t, "notes", decoded.(*catalog.EntityDeletedEvent).Sync().Origin)
}

func TestNewOutboxEntry_WithMaxRetries(t *testing.T) {
	event := newCatalogDeleteEvent(t)

	assert.Equal(t, 9, shared.NewOutboxEntry(event, nil, shared.WithMaxRetries(9)).MaxRetries)
	assert.Equal(t, shared.DefaultMaxRetries, shared.NewOutboxEntry(event, nil, shared.WithMaxRetries(0)).MaxRetries)
}

func TestOutboxEntry_CanRetry(t *testing.T) {
	tests := []struct {
		name       string
		status     shared.OutboxStatus
		retryCount int
		expected   bool
	}{
		{"pending", shared.OutboxStatusPending, 0, false},
		{"failed with retries left", shared.OutboxStatusFailed, 2, true},
		{"failed at max retries", shared.OutboxStatusFailed, 5, false},
		{"dead", shared.OutboxStatusDead, 5, false},
		{"sent", shared.OutboxStatusSent, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &shared.OutboxEntry{Status: tt.status, RetryCount: tt.retryCount, MaxRetries: 5}
			assert.Equal(t, tt.expected, entry.CanRetry())
		})
	}
}

func TestOutboxEntry_Lifecycle(t *testing.T) {
	entry := shared.NewOutboxEntry(newCatalogDeleteEvent(t), []byte(`{}`), shared.WithMaxRetries(2))

	require.NoError(t, entry.MarkProcessing())
	assert.Equal(t, shared.OutboxStatusProcessing, entry.Status)
	assert.Error(t, entry.MarkProcessing(), "already claimed")

	entry.MarkFailed("shop: 503")
	assert.Equal(t, shared.OutboxStatusFailed, entry.Status)
	require.NotNil(t, entry.NextRetryAt)

	require.NoError(t, entry.MarkProcessing())
	entry.MarkFailed("shop: 503")
	assert.True(t, entry.IsDead())
	assert.Equal(t, "shop: 503", entry.LastError)

	require.NoError(t, entry.ResetForRetry())
	require.NoError(t, entry.MarkProcessing())
	entry.MarkSent()
	assert.Equal(t, shared.OutboxStatusSent, entry.Status)
	assert.NotNil(t, entry.ProcessedAt)
	assert.Error(t, entry.MarkProcessing())
}

func TestOutboxEntry_MarkFailed_SchedulesBackoff(t *testing.T) {
	entry := &shared.OutboxEntry{
		Status:     shared.OutboxStatusProcessing,
		RetryCount: 3,
		MaxRetries: 5,
	}

	before := time.Now()
	entry.MarkFailed("error")

	assert.True(t, entry.NextRetryAt.After(before.Add(7*time.Second)))
	assert.True(t, entry.NextRetryAt.Before(before.Add(10*time.Second)))
}

func TestRetryBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{9, 256 * time.Second},
		{10, shared.DefaultMaxBackoff},
		{64, shared.DefaultMaxBackoff},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, shared.RetryBackoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestOutboxEntry_MarkFailed_BackoffIsCapped(t *testing.T) {
	entry := &shared.OutboxEntry{
		Status:     shared.OutboxStatusProcessing,
		RetryCount: 30,
		MaxRetries: 50,
	}

	before := time.Now()
	entry.MarkFailed("rate limited")

	require.NotNil(t, entry.NextRetryAt)
	assert.False(t, entry.NextRetryAt.After(before.Add(shared.DefaultMaxBackoff+time.Second)))
}
