package handler

import (
	"context"
	"net/http"

	integrationapp "github.com/erp/catalogsync/internal/application/integration"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/erp/catalogsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResyncService runs reconciliation on demand and reads the attempt log
type ResyncService interface {
	ResyncEntity(ctx context.Context, id uuid.UUID) (*integrationapp.Report, error)
	Sweep(ctx context.Context) (integrationapp.SweepResult, error)
	ListAttempts(ctx context.Context, filter integrationapp.AttemptListFilter) ([]integrationapp.AttemptResponse, int64, error)
}

// KillSwitch stops and resumes all outbound propagation
type KillSwitch interface {
	Kill()
	Revive()
	Killed() bool
}

// SyncHandler serves the operator side of reconciliation
type SyncHandler struct {
	BaseHandler
	resync ResyncService
	sw     KillSwitch
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(resync ResyncService, sw KillSwitch) *SyncHandler {
	return &SyncHandler{resync: resync, sw: sw}
}

// KillSwitchRequest sets the kill switch
type KillSwitchRequest struct {
	Killed *bool `json:"killed" binding:"required"`
}

// KillSwitchResponse is the state of the kill switch
type KillSwitchResponse struct {
	Killed bool `json:"killed"`
}

// ResyncEntity reconciles one entity to every platform now
// POST /sync/entities/:id/resync
func (h *SyncHandler) ResyncEntity(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if h.sw.Killed() {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSyncDisabled, "Synchronization is stopped by the kill switch")
		return
	}

	report, err := h.resync.ResyncEntity(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, integrationapp.ToReportResponse(report))
}

// Sweep re-syncs every entity whose latest attempt failed
// POST /sync/sweep
func (h *SyncHandler) Sweep(c *gin.Context) {
	if h.sw.Killed() {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeSyncDisabled, "Synchronization is stopped by the kill switch")
		return
	}
	result, err := h.resync.Sweep(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, integrationapp.ToSweepResponse(result))
}

// ListAttempts pages through sync attempts
// GET /sync/attempts
func (h *SyncHandler) ListAttempts(c *gin.Context) {
	var filter integrationapp.AttemptListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	attempts, total, err := h.resync.ListAttempts(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	h.SuccessWithMeta(c, attempts, total, page, pageSize)
}

// GetKillSwitch reports whether propagation is stopped
// GET /sync/kill-switch
func (h *SyncHandler) GetKillSwitch(c *gin.Context) {
	h.Success(c, KillSwitchResponse{Killed: h.sw.Killed()})
}

// SetKillSwitch stops or resumes propagation
// PUT /sync/kill-switch
func (h *SyncHandler) SetKillSwitch(c *gin.Context) {
	var req KillSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	if *req.Killed {
		h.sw.Kill()
	} else {
		h.sw.Revive()
	}
	logger.GetGinLogger(c).Warn("kill switch changed",
		zap.Bool("killed", *req.Killed),
		zap.String("by", middleware.GetJWTSubject(c)),
	)
	h.Success(c, KillSwitchResponse{Killed: h.sw.Killed()})
}
