package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	catalogapp "github.com/erp/catalogsync/internal/application/catalog"
	"github.com/erp/catalogsync/internal/application/event"
	integrationapp "github.com/erp/catalogsync/internal/application/integration"
	notificationapp "github.com/erp/catalogsync/internal/application/notification"
	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func performRequest(r http.Handler, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func newTestEngine() *gin.Engine {
	return gin.New()
}

// MockEntityService is a mock implementation of EntityService
type MockEntityService struct {
	mock.Mock
}

func (m *MockEntityService) Create(ctx context.Context, req catalogapp.CreateEntityRequest) (*catalogapp.EntityResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.EntityResponse), args.Error(1)
}

func (m *MockEntityService) GetByID(ctx context.Context, id uuid.UUID) (*catalogapp.EntityResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.EntityResponse), args.Error(1)
}

func (m *MockEntityService) List(ctx context.Context, filter catalogapp.EntityListFilter) ([]catalogapp.EntityListResponse, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]catalogapp.EntityListResponse), args.Get(1).(int64), args.Error(2)
}

func (m *MockEntityService) Update(ctx context.Context, id uuid.UUID, req catalogapp.UpdateEntityRequest) (*catalogapp.EntityResponse, error) {
	args := m.Called(ctx, id, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.EntityResponse), args.Error(1)
}

func (m *MockEntityService) Publish(ctx context.Context, id uuid.UUID) (*catalogapp.EntityResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.EntityResponse), args.Error(1)
}

func (m *MockEntityService) Unpublish(ctx context.Context, id uuid.UUID) (*catalogapp.EntityResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.EntityResponse), args.Error(1)
}

func (m *MockEntityService) AssignChannel(ctx context.Context, id uuid.UUID, platform string) (*catalogapp.EntityResponse, error) {
	args := m.Called(ctx, id, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.EntityResponse), args.Error(1)
}

func (m *MockEntityService) UnassignChannel(ctx context.Context, id uuid.UUID, platform string) (*catalogapp.EntityResponse, error) {
	args := m.Called(ctx, id, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogapp.EntityResponse), args.Error(1)
}

func (m *MockEntityService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// MockResyncService is a mock implementation of ResyncService
type MockResyncService struct {
	mock.Mock
}

func (m *MockResyncService) ResyncEntity(ctx context.Context, id uuid.UUID) (*integrationapp.Report, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integrationapp.Report), args.Error(1)
}

func (m *MockResyncService) Sweep(ctx context.Context) (integrationapp.SweepResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(integrationapp.SweepResult), args.Error(1)
}

func (m *MockResyncService) ListAttempts(ctx context.Context, filter integrationapp.AttemptListFilter) ([]integrationapp.AttemptResponse, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]integrationapp.AttemptResponse), args.Get(1).(int64), args.Error(2)
}

// MockInboundService is a mock implementation of InboundService
type MockInboundService struct {
	mock.Mock
}

func (m *MockInboundService) Platform(code integration.PlatformCode) (integration.PlatformConfig, bool) {
	args := m.Called(code)
	return args.Get(0).(integration.PlatformConfig), args.Bool(1)
}

func (m *MockInboundService) Ingest(ctx context.Context, d integrationapp.InboundDelivery) (*integrationapp.InboundResult, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integrationapp.InboundResult), args.Error(1)
}

// MockPayloadValidator is a mock implementation of PayloadValidator
type MockPayloadValidator struct {
	mock.Mock
}

func (m *MockPayloadValidator) Validate(pk integration.PlatformKind, kind catalog.EntityKind, topic integration.InboundTopic, body []byte) error {
	return m.Called(pk, kind, topic, body).Error(0)
}

// MockNotificationService is a mock implementation of NotificationService
type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Send(ctx context.Context, req notificationapp.SendRequest) (*notificationapp.SendResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notificationapp.SendResponse), args.Error(1)
}

func (m *MockNotificationService) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	args := m.Called(ctx, retention)
	return args.Get(0).(int64), args.Error(1)
}

// MockOutboxService is a mock implementation of OutboxService
type MockOutboxService struct {
	mock.Mock
}

func (m *MockOutboxService) GetDeadLetterEntries(ctx context.Context, filter event.OutboxFilter) (*event.OutboxListResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxListResult), args.Error(1)
}

func (m *MockOutboxService) GetEntry(ctx context.Context, id uuid.UUID) (*event.OutboxEntryDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxEntryDTO), args.Error(1)
}

func (m *MockOutboxService) RetryDeadEntry(ctx context.Context, id uuid.UUID) (*event.OutboxEntryDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxEntryDTO), args.Error(1)
}

func (m *MockOutboxService) RetryAllDeadEntries(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxService) GetStats(ctx context.Context) (*event.OutboxStatsDTO, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*event.OutboxStatsDTO), args.Error(1)
}
