package event

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memOutbox is an in-memory OutboxRepository for OutboxService tests
type memOutbox struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*shared.OutboxEntry
}

func newMemOutbox() *memOutbox {
	return &memOutbox{entries: make(map[uuid.UUID]*shared.OutboxEntry)}
}

func (r *memOutbox) Save(_ context.Context, entries ...*shared.OutboxEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.ID] = e
	}
	return nil
}

func (r *memOutbox) FindPending(_ context.Context, limit int) ([]*shared.OutboxEntry, error) {
	return r.byStatus(shared.OutboxStatusPending, limit), nil
}

func (r *memOutbox) FindRetryable(context.Context, time.Time, int) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memOutbox) FindDead(_ context.Context, page, pageSize int) ([]*shared.OutboxEntry, int64, error) {
	dead := r.byStatus(shared.OutboxStatusDead, 0)
	total := int64(len(dead))
	start := (page - 1) * pageSize
	if start >= len(dead) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(dead) {
		end = len(dead)
	}
	return dead[start:end], total, nil
}

func (r *memOutbox) FindByID(_ context.Context, id uuid.UUID) (*shared.OutboxEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e, nil
	}
	return nil, shared.ErrNotFound
}

func (r *memOutbox) MarkProcessing(context.Context, []uuid.UUID) ([]*shared.OutboxEntry, error) {
	return nil, nil
}

func (r *memOutbox) Update(_ context.Context, entry *shared.OutboxEntry) error {
	return r.Save(context.Background(), entry)
}

func (r *memOutbox) DeleteOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (r *memOutbox) CountByStatus(context.Context) (map[shared.OutboxStatus]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[shared.OutboxStatus]int64)
	for _, e := range r.entries {
		counts[e.Status]++
	}
	return counts, nil
}

func (r *memOutbox) byStatus(status shared.OutboxStatus, limit int) []*shared.OutboxEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*shared.OutboxEntry
	for _, e := range r.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func deadEntry(offset time.Duration) *shared.OutboxEntry {
	now := time.Now().Add(offset)
	return &shared.OutboxEntry{
		ID:            uuid.New(),
		EventID:       uuid.New(),
		EventType:     "catalog.entity.updated",
		AggregateID:   uuid.New(),
		AggregateType: "PRODUCT",
		Status:        shared.OutboxStatusDead,
		RetryCount:    5,
		MaxRetries:    5,
		LastError:     "shop: 503 Service Unavailable",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOutboxService_GetDeadLetterEntries(t *testing.T) {
	repo := newMemOutbox()
	svc := NewOutboxService(repo, zap.NewNop())
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Save(context.Background(), deadEntry(time.Duration(i)*time.Second)))
	}
	require.NoError(t, repo.Save(context.Background(), &shared.OutboxEntry{ID: uuid.New(), Status: shared.OutboxStatusPending}))

	result, err := svc.GetDeadLetterEntries(context.Background(), OutboxFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Total)
	assert.Len(t, result.Entries, 2)
	for _, entry := range result.Entries {
		assert.Equal(t, "DEAD", entry.Status)
		assert.Equal(t, "PRODUCT", entry.EntityKind)
		assert.NotEqual(t, uuid.Nil, entry.EntityID)
	}
}

func TestOutboxService_GetDeadLetterEntries_ClampsPaging(t *testing.T) {
	svc := NewOutboxService(newMemOutbox(), nil)

	result, err := svc.GetDeadLetterEntries(context.Background(), OutboxFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 100, result.PageSize)
	assert.Empty(t, result.Entries)
}

func TestOutboxService_GetEntry_NotFound(t *testing.T) {
	svc := NewOutboxService(newMemOutbox(), nil)

	_, err := svc.GetEntry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOutboxService_RetryDeadEntry(t *testing.T) {
	repo := newMemOutbox()
	svc := NewOutboxService(repo, zap.NewNop())
	entry := deadEntry(0)
	require.NoError(t, repo.Save(context.Background(), entry))

	result, err := svc.RetryDeadEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", result.Status)
	assert.Equal(t, 0, result.RetryCount)
	assert.Empty(t, result.LastError)
	assert.Equal(t, entry.EventID, result.EventID, "the replayed event keeps its id")
}

func TestOutboxService_RetryDeadEntry_Errors(t *testing.T) {
	repo := newMemOutbox()
	svc := NewOutboxService(repo, zap.NewNop())
	pending := &shared.OutboxEntry{ID: uuid.New(), Status: shared.OutboxStatusPending}
	require.NoError(t, repo.Save(context.Background(), pending))

	_, err := svc.RetryDeadEntry(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.RetryDeadEntry(context.Background(), pending.ID)
	assert.ErrorIs(t, err, ErrEntryNotDead)
}

func TestOutboxService_RetryAllDeadEntries(t *testing.T) {
	repo := newMemOutbox()
	svc := NewOutboxService(repo, zap.NewNop())
	for i := 0; i < 230; i++ {
		require.NoError(t, repo.Save(context.Background(), deadEntry(time.Duration(i)*time.Millisecond)))
	}
	pending := &shared.OutboxEntry{ID: uuid.New(), Status: shared.OutboxStatusPending}
	require.NoError(t, repo.Save(context.Background(), pending))

	count, err := svc.RetryAllDeadEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(230), count)

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts[shared.OutboxStatusDead])
	assert.Equal(t, int64(231), counts[shared.OutboxStatusPending])
}

func TestOutboxService_GetStats(t *testing.T) {
	repo := newMemOutbox()
	svc := NewOutboxService(repo, zap.NewNop())
	for _, status := range []shared.OutboxStatus{
		shared.OutboxStatusPending,
		shared.OutboxStatusPending,
		shared.OutboxStatusProcessing,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusSent,
		shared.OutboxStatusFailed,
		shared.OutboxStatusDead,
	} {
		require.NoError(t, repo.Save(context.Background(), &shared.OutboxEntry{ID: uuid.New(), Status: status}))
	}

	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutboxStatsDTO{Pending: 2, Processing: 1, Sent: 3, Failed: 1, Dead: 1, Total: 8}, *stats)
}
