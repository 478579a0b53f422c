package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	integrationapp "github.com/erp/catalogsync/internal/application/integration"
	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/infrastructure/logger"
	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/erp/catalogsync/internal/interfaces/http/webhook"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InboundService applies verified webhook deliveries to the canonical store
type InboundService interface {
	Platform(code integration.PlatformCode) (integration.PlatformConfig, bool)
	Ingest(ctx context.Context, d integrationapp.InboundDelivery) (*integrationapp.InboundResult, error)
}

// PayloadValidator checks a webhook body against the schema of its platform and kind
type PayloadValidator interface {
	Validate(pk integration.PlatformKind, kind catalog.EntityKind, topic integration.InboundTopic, body []byte) error
}

// WebhookHandler receives platform webhooks
type WebhookHandler struct {
	BaseHandler
	inbound          InboundService
	validator        PayloadValidator
	requireSignature bool
}

// NewWebhookHandler creates a new WebhookHandler. With requireSignature set,
// platforms without a webhook secret cannot deliver at all.
func NewWebhookHandler(inbound InboundService, validator PayloadValidator, requireSignature bool) *WebhookHandler {
	return &WebhookHandler{inbound: inbound, validator: validator, requireSignature: requireSignature}
}

// WebhookResponse acknowledges a delivery
type WebhookResponse struct {
	Outcome  string     `json:"outcome"`
	EntityID *uuid.UUID `json:"entity_id,omitempty"`
	EventID  *uuid.UUID `json:"event_id,omitempty"`
}

// Receive verifies, validates and ingests one delivery. Duplicates and
// echoes of our own writes are acknowledged with 200 so the platform stops
// retrying them.
// POST /webhooks/:platform/:kind
func (h *WebhookHandler) Receive(c *gin.Context) {
	code := integration.PlatformCode(c.Param("platform"))
	cfg, ok := h.inbound.Platform(code)
	if !ok {
		h.HandleError(c, fmt.Errorf("%w: %s", integration.ErrPlatformNotConfigured, code))
		return
	}
	kind, err := catalog.ParseEntityKind(c.Param("kind"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidKind, err.Error())
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeBadRequest, "Request body too large")
			return
		}
		h.BadRequest(c, "Failed to read request body")
		return
	}

	if cfg.WebhookSecret != "" || h.requireSignature {
		if err := webhook.VerifySignature(cfg.WebhookSecret, body, c.GetHeader(webhook.HeaderSignature)); err != nil {
			logger.GetGinLogger(c).Warn("webhook signature rejected", zap.String("platform", code.String()))
			h.HandleError(c, err)
			return
		}
	}

	topic := integration.InboundUpdated
	if raw := c.GetHeader(webhook.HeaderTopic); raw != "" {
		if topic, err = integration.ParseInboundTopic(raw); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	if h.validator != nil {
		if err := h.validator.Validate(cfg.Kind, kind, topic, body); err != nil {
			h.HandleError(c, err)
			return
		}
	}

	res, err := h.inbound.Ingest(c.Request.Context(), integrationapp.InboundDelivery{
		Platform:   code,
		Kind:       kind,
		Topic:      topic,
		DeliveryID: c.GetHeader(webhook.HeaderDelivery),
		Body:       body,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := WebhookResponse{Outcome: string(res.Outcome)}
	if res.EntityID != uuid.Nil {
		resp.EntityID = &res.EntityID
	}
	if res.EventID != uuid.Nil {
		resp.EventID = &res.EventID
	}
	h.Success(c, resp)
}
