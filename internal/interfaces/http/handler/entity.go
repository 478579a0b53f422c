package handler

import (
	"context"

	catalogapp "github.com/erp/catalogsync/internal/application/catalog"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EntityService is the canonical entity API used by EntityHandler
type EntityService interface {
	Create(ctx context.Context, req catalogapp.CreateEntityRequest) (*catalogapp.EntityResponse, error)
	GetByID(ctx context.Context, id uuid.UUID) (*catalogapp.EntityResponse, error)
	List(ctx context.Context, filter catalogapp.EntityListFilter) ([]catalogapp.EntityListResponse, int64, error)
	Update(ctx context.Context, id uuid.UUID, req catalogapp.UpdateEntityRequest) (*catalogapp.EntityResponse, error)
	Publish(ctx context.Context, id uuid.UUID) (*catalogapp.EntityResponse, error)
	Unpublish(ctx context.Context, id uuid.UUID) (*catalogapp.EntityResponse, error)
	AssignChannel(ctx context.Context, id uuid.UUID, platform string) (*catalogapp.EntityResponse, error)
	UnassignChannel(ctx context.Context, id uuid.UUID, platform string) (*catalogapp.EntityResponse, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// EntityHandler serves admin writes to canonical entities. Each write is
// reconciled to the platforms asynchronously through the outbox.
type EntityHandler struct {
	BaseHandler
	entityService EntityService
}

// NewEntityHandler creates a new EntityHandler
func NewEntityHandler(entityService EntityService) *EntityHandler {
	return &EntityHandler{entityService: entityService}
}

// Create creates an entity
// POST /catalog/entities
func (h *EntityHandler) Create(c *gin.Context) {
	var req catalogapp.CreateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	entity, err := h.entityService.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, entity)
}

// GetByID returns one entity
// GET /catalog/entities/:id
func (h *EntityHandler) GetByID(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := h.entityService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entity)
}

// List lists entities with optional kind, state and search filters
// GET /catalog/entities
func (h *EntityHandler) List(c *gin.Context) {
	var filter catalogapp.EntityListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.ValidationError(c, err)
		return
	}

	entities, total, err := h.entityService.List(c.Request.Context(), filter)
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
	h.SuccessWithMeta(c, entities, total, page, pageSize)
}

// Update changes natural key, name or detail
// PUT /catalog/entities/:id
func (h *EntityHandler) Update(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req catalogapp.UpdateEntityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.ValidationError(c, err)
		return
	}

	entity, err := h.entityService.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entity)
}

// Publish makes an entity eligible for propagation
// POST /catalog/entities/:id/publish
func (h *EntityHandler) Publish(c *gin.Context) {
	h.transition(c, h.entityService.Publish)
}

// Unpublish returns an entity to draft
// POST /catalog/entities/:id/unpublish
func (h *EntityHandler) Unpublish(c *gin.Context) {
	h.transition(c, h.entityService.Unpublish)
}

// AssignChannel flags an entity for propagation to a platform
// PUT /catalog/entities/:id/channels/:platform
func (h *EntityHandler) AssignChannel(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := h.entityService.AssignChannel(c.Request.Context(), id, c.Param("platform"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entity)
}

// UnassignChannel stops propagation to a platform
// DELETE /catalog/entities/:id/channels/:platform
func (h *EntityHandler) UnassignChannel(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := h.entityService.UnassignChannel(c.Request.Context(), id, c.Param("platform"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entity)
}

// Delete hard deletes an entity; remote copies are removed asynchronously
// DELETE /catalog/entities/:id
func (h *EntityHandler) Delete(c *gin.Context) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.entityService.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

func (h *EntityHandler) transition(c *gin.Context, fn func(context.Context, uuid.UUID) (*catalogapp.EntityResponse, error)) {
	id, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	entity, err := fn(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entity)
}
