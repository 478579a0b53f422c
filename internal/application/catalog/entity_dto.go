package catalog

import (
	"encoding/json"
	"time"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/google/uuid"
)

// CreateEntityRequest represents a request to create a canonical entity
type CreateEntityRequest struct {
	Kind       string          `json:"kind" binding:"required,oneof=PRODUCT TERM CUSTOMER COUPON ORDER product term customer coupon order"`
	NaturalKey string          `json:"natural_key" binding:"required,min=1,max=200"`
	Name       string          `json:"name" binding:"required,min=1,max=300"`
	Detail     json.RawMessage `json:"detail" binding:"required"`
	Channels   []string        `json:"channels" binding:"omitempty,dive,min=1,max=50"`
	Publish    bool            `json:"publish"`
}

// UpdateEntityRequest represents a request to update a canonical entity.
// Omitted fields keep their value; a present detail replaces the whole detail.
type UpdateEntityRequest struct {
	NaturalKey *string         `json:"natural_key" binding:"omitempty,min=1,max=200"`
	Name       *string         `json:"name" binding:"omitempty,min=1,max=300"`
	Detail     json.RawMessage `json:"detail"`
}

// EntityListFilter represents filter options for listing entities
type EntityListFilter struct {
	Kind     string `form:"kind"`
	State    string `form:"state" binding:"omitempty,oneof=draft published"`
	Search   string `form:"search"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc"`
}

// EntityResponse represents a canonical entity in API responses
type EntityResponse struct {
	ID            uuid.UUID                     `json:"id"`
	Kind          string                        `json:"kind"`
	NaturalKey    string                        `json:"natural_key"`
	Name          string                        `json:"name"`
	State         string                        `json:"state"`
	Channels      []string                      `json:"channels"`
	ExternalIDs   map[string]catalog.ExternalID `json:"external_ids"`
	Detail        catalog.Detail                `json:"detail"`
	EverPublished bool                          `json:"ever_published"`
	Version       int                           `json:"version"`
	CreatedAt     time.Time                     `json:"created_at"`
	UpdatedAt     time.Time                     `json:"updated_at"`
}

// EntityListResponse represents a list item for entities
type EntityListResponse struct {
	ID         uuid.UUID `json:"id"`
	Kind       string    `json:"kind"`
	NaturalKey string    `json:"natural_key"`
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Channels   []string  `json:"channels"`
	Platforms  []string  `json:"platforms"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ToEntityResponse converts a domain Entity to EntityResponse
func ToEntityResponse(e *catalog.Entity) EntityResponse {
	ids := make(map[string]catalog.ExternalID, len(e.ExternalIDs))
	for _, p := range e.ExternalIDs.Platforms() {
		ids[p], _ = e.ExternalIDs.Get(p)
	}
	channels := e.Channels
	if channels == nil {
		channels = []string{}
	}
	return EntityResponse{
		ID:            e.ID,
		Kind:          string(e.Kind),
		NaturalKey:    e.NaturalKey,
		Name:          e.Name,
		State:         string(e.State),
		Channels:      channels,
		ExternalIDs:   ids,
		Detail:        e.Detail,
		EverPublished: e.EverPublished,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// ToEntityListResponse converts a domain Entity to EntityListResponse
func ToEntityListResponse(e *catalog.Entity) EntityListResponse {
	channels := e.Channels
	if channels == nil {
		channels = []string{}
	}
	return EntityListResponse{
		ID:         e.ID,
		Kind:       string(e.Kind),
		NaturalKey: e.NaturalKey,
		Name:       e.Name,
		State:      string(e.State),
		Channels:   channels,
		Platforms:  e.ExternalIDs.Platforms(),
		UpdatedAt:  e.UpdatedAt,
	}
}

// ToEntityListResponses converts a slice of domain Entities to list responses
func ToEntityListResponses(entities []*catalog.Entity) []EntityListResponse {
	responses := make([]EntityListResponse, len(entities))
	for i, e := range entities {
		responses[i] = ToEntityListResponse(e)
	}
	return responses
}
