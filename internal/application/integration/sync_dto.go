package integration

import (
	"time"

	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/google/uuid"
)

// AttemptListFilter represents filter options for listing sync attempts
type AttemptListFilter struct {
	EntityID string `form:"entity_id" binding:"omitempty,uuid"`
	Platform string `form:"platform" binding:"omitempty,max=50"`
	Outcome  string `form:"outcome" binding:"omitempty,oneof=success failed skipped"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// AttemptResponse represents a sync attempt in API responses
type AttemptResponse struct {
	ID         uuid.UUID `json:"id"`
	EventID    uuid.UUID `json:"event_id"`
	Platform   string    `json:"platform"`
	EntityID   uuid.UUID `json:"entity_id"`
	EntityKind string    `json:"entity_kind"`
	NaturalKey string    `json:"natural_key"`
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	ExternalID string    `json:"external_id,omitempty"`
	Created    bool      `json:"created"`
	Reason     string    `json:"reason,omitempty"`
	Error      string    `json:"error,omitempty"`
	Calls      int       `json:"calls"`
	Cascade    bool      `json:"cascade"`
	Trigger    string    `json:"trigger"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReportResponse is the outcome of one reconciliation
type ReportResponse struct {
	EventID   uuid.UUID         `json:"event_id"`
	EntityID  uuid.UUID         `json:"entity_id"`
	Operation string            `json:"operation"`
	Failed    int               `json:"failed"`
	Cascaded  int               `json:"cascaded"`
	Attempts  []AttemptResponse `json:"attempts"`
}

// SweepResponse summarizes a re-sync sweep
type SweepResponse struct {
	Candidates int `json:"candidates"`
	Resynced   int `json:"resynced"`
	Failing    int `json:"failing"`
	Skipped    int `json:"skipped"`
}

// ToAttemptResponse converts a domain SyncAttempt to AttemptResponse
func ToAttemptResponse(a *integration.SyncAttempt) AttemptResponse {
	return AttemptResponse{
		ID:         a.ID,
		EventID:    a.EventID,
		Platform:   a.Platform.String(),
		EntityID:   a.Entity.ID,
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
		DurationMs: a.Duration.Milliseconds(),
		CreatedAt:  a.CreatedAt,
	}
}

// ToAttemptResponses converts a slice of attempts
func ToAttemptResponses(attempts []*integration.SyncAttempt) []AttemptResponse {
	out := make([]AttemptResponse, len(attempts))
	for i, a := range attempts {
		out[i] = ToAttemptResponse(a)
	}
	return out
}

// ToReportResponse converts a reconciliation Report
func ToReportResponse(r *Report) ReportResponse {
	return ReportResponse{
		EventID:   r.EventID,
		EntityID:  r.Entity.ID,
		Operation: string(r.Operation),
		Failed:    r.Failed(),
		Cascaded:  r.Cascaded,
		Attempts:  ToAttemptResponses(r.Attempts),
	}
}

// ToSweepResponse converts a SweepResult
func ToSweepResponse(r SweepResult) SweepResponse {
	return SweepResponse{
		Candidates: r.Candidates,
		Resynced:   r.Resynced,
		Failing:    r.Failing,
		Skipped:    r.Skipped,
	}
}
