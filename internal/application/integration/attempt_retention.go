package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/catalogsync/internal/domain/integration"
	"go.uber.org/zap"
)

// DefaultArchiveBatch is how many attempts go into one archive object
const DefaultArchiveBatch = 500

// PruneResult summarizes one retention run
type PruneResult struct {
	Archived int
	Deleted  int64
}

// AttemptRetentionService removes attempt records past their retention,
// optionally archiving them first
type AttemptRetentionService struct {
	attempts  integration.SyncAttemptRepository
	archiver  integration.AttemptArchiver
	retention time.Duration
	batch     int
	logger    *zap.Logger
	now       func() time.Time
}

// RetentionOption configures an AttemptRetentionService
type RetentionOption func(*AttemptRetentionService)

// WithArchiver archives attempts before they are deleted
func WithArchiver(a integration.AttemptArchiver, batch int) RetentionOption {
	return func(s *AttemptRetentionService) {
		s.archiver = a
		if batch > 0 {
			s.batch = batch
		}
	}
}

// WithRetentionLogger sets the logger
func WithRetentionLogger(l *zap.Logger) RetentionOption {
	return func(s *AttemptRetentionService) {
		s.logger = l
	}
}

// NewAttemptRetentionService creates an AttemptRetentionService
func NewAttemptRetentionService(attempts integration.SyncAttemptRepository, retention time.Duration, opts ...RetentionOption) *AttemptRetentionService {
	s := &AttemptRetentionService{
		attempts:  attempts,
		retention: retention,
		batch:     DefaultArchiveBatch,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prune deletes attempts older than the retention window. With an archiver,
// nothing is deleted unless every batch was archived.
func (s *AttemptRetentionService) Prune(ctx context.Context) (*PruneResult, error) {
	cutoff := s.now().Add(-s.retention)
	result := &PruneResult{}

	if s.archiver != nil {
		for offset := 0; ; offset += s.batch {
			page, err := s.attempts.FindOlderThan(ctx, cutoff, offset, s.batch)
			if err != nil {
				return result, fmt.Errorf("load attempts to archive: %w", err)
			}
			if len(page) == 0 {
				break
			}
			if err := s.archiver.Archive(ctx, page); err != nil {
				return result, fmt.Errorf("archive attempts: %w", err)
			}
			result.Archived += len(page)
			if len(page) < s.batch {
				break
			}
		}
	}

	deleted, err := s.attempts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return result, fmt.Errorf("delete attempts: %w", err)
	}
	result.Deleted = deleted

	if deleted > 0 {
		s.logger.Info("Pruned sync attempts",
			zap.Time("cutoff", cutoff),
			zap.Int("archived", result.Archived),
			zap.Int64("deleted", deleted),
		)
	}
	return result, nil
}
