package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/notification"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// SendRequest represents a request to send a notification
type SendRequest struct {
	TemplateID string            `json:"template_id" binding:"required,min=1,max=100"`
	Recipient  string            `json:"recipient" binding:"required,min=1,max=320"`
	CampaignID string            `json:"campaign_id" binding:"omitempty,max=100"`
	Subject    string            `json:"subject" binding:"omitempty,max=300"`
	Variables  map[string]string `json:"variables"`
}

// SendResponse reports the outcome of a send
type SendResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	DedupKey  string    `json:"dedup_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Option configures a Service
type Option func(*Service)

// WithDedupWindow overrides notification.DefaultDedupWindow
func WithDedupWindow(window time.Duration) Option {
	return func(s *Service) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithMetrics counts sends by status
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithInflightMarkers claims each key in markers while it is being sent, so
// concurrent sends of one key (across instances when markers is Redis) cannot
// both pass the dedup lookup
func WithInflightMarkers(markers shared.IdempotencyStore) Option {
	return func(s *Service) { s.markers = markers }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service sends notifications at most once per (template, recipient, campaign)
// within the dedup window. Every send, blocked or not, leaves a record.
type Service struct {
	records    notification.SendRecordRepository
	dispatcher notification.Dispatcher
	window     time.Duration
	markers    shared.IdempotencyStore
	metrics    *telemetry.SyncMetrics
	logger     *zap.Logger
	now        func() time.Time
}

// inflightTTL bounds how long a crashed sender can hold a key
const inflightTTL = time.Minute

// NewService creates a new notification Service
func NewService(records notification.SendRecordRepository, dispatcher notification.Dispatcher, opts ...Option) *Service {
	s := &Service{
		records:    records,
		dispatcher: dispatcher,
		window:     notification.DefaultDedupWindow,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send dispatches the notification unless the same key was sent within the
// window, in which case a blocked record is written and
// notification.ErrDuplicateNotification is returned. A failed dispatch is
// recorded as failed and does not block a later attempt.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	key, err := notification.NewDedupKey(req.TemplateID, req.Recipient, req.CampaignID)
	if err != nil {
		return nil, err
	}

	if s.markers != nil {
		marker := "notification:" + key.Hash()
		claimed, err := s.markers.MarkProcessed(ctx, marker, inflightTTL)
		if err != nil {
			return nil, fmt.Errorf("notification: claim key: %w", err)
		}
		if !claimed {
			return nil, s.block(ctx, key, "send in progress")
		}
		defer func() {
			if err := s.markers.Release(context.WithoutCancel(ctx), marker); err != nil {
				s.logger.Warn("failed to release notification marker", zap.Error(err))
			}
		}()
	}

	last, err := s.records.FindLastSent(ctx, key.Hash(), s.now().Add(-s.window))
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("notification: dedup lookup: %w", err)
	}
	if last != nil {
		return nil, s.block(ctx, key, "sent at "+last.CreatedAt.UTC().Format(time.RFC3339))
	}

	msg := notification.Message{Key: key, Subject: req.Subject, Variables: req.Variables}
	record := notification.NewSendRecord(key, notification.SendStatusSent)
	dispatchErr := s.dispatcher.Dispatch(ctx, msg)
	if dispatchErr != nil {
		record.Status = notification.SendStatusFailed
		record.Error = dispatchErr.Error()
	}
	if err := s.records.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("notification: save send record: %w", err)
	}
	s.metrics.IncNotification(string(record.Status))

	if dispatchErr != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("template", key.TemplateID),
			zap.Error(dispatchErr),
		)
		return nil, fmt.Errorf("%w: %w", notification.ErrDispatchFailed, dispatchErr)
	}
	return &SendResponse{
		ID:        record.ID.String(),
		Status:    string(record.Status),
		DedupKey:  record.KeyHash,
		CreatedAt: record.CreatedAt,
	}, nil
}

// block records a blocked send and returns the duplicate error
func (s *Service) block(ctx context.Context, key notification.DedupKey, reason string) error {
	record := notification.NewSendRecord(key, notification.SendStatusBlocked)
	record.Error = reason
	if err := s.records.Save(ctx, record); err != nil {
		s.logger.Warn("failed to record blocked notification", zap.Error(err))
	}
	s.metrics.IncNotification(string(notification.SendStatusBlocked))
	s.logger.Info("notification blocked as duplicate",
		zap.String("template", key.TemplateID),
		zap.String("campaign", key.CampaignID),
		zap.String("reason", reason),
	)
	return notification.ErrDuplicateNotification
}

// Cleanup deletes send records older than retention. Retention shorter than
// the dedup window would let duplicates through, so it is raised to the window.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention < s.window {
		retention = s.window
	}
	deleted, err := s.records.DeleteOlderThan(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("notification records cleaned up", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}
