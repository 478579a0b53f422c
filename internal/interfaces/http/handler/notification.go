package handler

import (
	"context"
	"time"

	notificationapp "github.com/erp/catalogsync/internal/application/notification"
	"github.com/gin-gonic/gin"
)

// NotificationService sends deduplicated notifications
type NotificationService interface {
	Send(ctx context.Context, req notificationapp.SendRequest) (*notificationapp.SendResponse, error)
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// NotificationHandler serves the notification API
type NotificationHandler struct {
	BaseHandler
	service   NotificationService
	retention time.Duration
}

// NewNotificationHandler creates a new NotificationHandler. retention is used
// by the manual cleanup endpoint.
func NewNotificationHandler(service NotificationService, retention time.Duration) *NotificationHandler {
	return &NotificationHandler{service: service, retention: retention}
}

// Send dispatches a notification. A send that repeats one from the dedup
// window answers 409 and is not dispatched.
// POST /notifications/send
func (h *NotificationHandler) Send(c *gin.Context) {
	var req notificationapp.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	resp, err := h.service.Send(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// Cleanup deletes send records older than the retention
// POST /notifications/cleanup
func (h *NotificationHandler) Cleanup(c *gin.Context) {
	deleted, err := h.service.Cleanup(c.Request.Context(), h.retention)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, CountData{Count: deleted})
}
