package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	catalogapp "github.com/erp/catalogsync/internal/application/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/erp/catalogsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func entityRouter(svc *MockEntityService) *gin.Engine {
	h := NewEntityHandler(svc)
	r := newTestEngine()
	r.POST("/catalog/entities", h.Create)
	r.GET("/catalog/entities", h.List)
	r.GET("/catalog/entities/:id", h.GetByID)
	r.PUT("/catalog/entities/:id", h.Update)
	r.DELETE("/catalog/entities/:id", h.Delete)
	r.POST("/catalog/entities/:id/publish", h.Publish)
	r.POST("/catalog/entities/:id/unpublish", h.Unpublish)
	r.PUT("/catalog/entities/:id/channels/:platform", h.AssignChannel)
	r.DELETE("/catalog/entities/:id/channels/:platform", h.UnassignChannel)
	return r
}

func sampleEntity(id uuid.UUID) *catalogapp.EntityResponse {
	return &catalogapp.EntityResponse{
		ID:         id,
		Kind:       "PRODUCT",
		NaturalKey: "9783161484100",
		Name:       "Go in Practice",
		State:      "draft",
		Channels:   []string{"shop"},
		Version:    1,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestEntityHandler_Create(t *testing.T) {
	svc := new(MockEntityService)
	id := uuid.New()
	svc.On("Create", mock.Anything, mock.MatchedBy(func(req catalogapp.CreateEntityRequest) bool {
		return req.Kind == "PRODUCT" && req.NaturalKey == "9783161484100"
	})).Return(sampleEntity(id), nil)

	body := []byte(`{"kind":"PRODUCT","natural_key":"9783161484100","name":"Go in Practice","detail":{"price":"12.50"},"channels":["shop"]}`)
	w := performRequest(entityRouter(svc), http.MethodPost, "/catalog/entities", body, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, id.String(), data["id"])
	svc.AssertExpectations(t)
}

func TestEntityHandler_Create_ValidationError(t *testing.T) {
	svc := new(MockEntityService)

	w := performRequest(entityRouter(svc), http.MethodPost, "/catalog/entities",
		[]byte(`{"kind":"WIDGET","natural_key":"x","name":"x","detail":{}}`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, decodeResponse(t, w).Success)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestEntityHandler_Create_DuplicateNaturalKey(t *testing.T) {
	svc := new(MockEntityService)
	svc.On("Create", mock.Anything, mock.Anything).
		Return(nil, shared.NewDomainError("ALREADY_EXISTS", "An entity with this natural key already exists"))

	body := []byte(`{"kind":"product","natural_key":"9783161484100","name":"Go","detail":{}}`)
	w := performRequest(entityRouter(svc), http.MethodPost, "/catalog/entities", body, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, dto.ErrCodeAlreadyExists, decodeResponse(t, w).Error.Code)
}

func TestEntityHandler_GetByID(t *testing.T) {
	svc := new(MockEntityService)
	id := uuid.New()
	svc.On("GetByID", mock.Anything, id).Return(sampleEntity(id), nil)

	w := performRequest(entityRouter(svc), http.MethodGet, "/catalog/entities/"+id.String(), nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestEntityHandler_GetByID_NotFound(t *testing.T) {
	svc := new(MockEntityService)
	id := uuid.New()
	svc.On("GetByID", mock.Anything, id).Return(nil, shared.NewDomainError("NOT_FOUND", "Entity not found"))

	w := performRequest(entityRouter(svc), http.MethodGet, "/catalog/entities/"+id.String(), nil, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.ErrCodeNotFound, decodeResponse(t, w).Error.Code)
}

func TestEntityHandler_GetByID_InvalidID(t *testing.T) {
	svc := new(MockEntityService)

	w := performRequest(entityRouter(svc), http.MethodGet, "/catalog/entities/not-a-uuid", nil, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestEntityHandler_List(t *testing.T) {
	svc := new(MockEntityService)
	items := []catalogapp.EntityListResponse{
		{ID: uuid.New(), Kind: "TERM", NaturalKey: "category:programming", Name: "Programming", State: "published"},
	}
	svc.On("List", mock.Anything, catalogapp.EntityListFilter{Kind: "TERM", Page: 2, PageSize: 10}).
		Return(items, int64(11), nil)

	w := performRequest(entityRouter(svc), http.MethodGet, "/catalog/entities?kind=TERM&page=2&page_size=10", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(11), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.Page)
	assert.Equal(t, 2, resp.Meta.TotalPages)
}

func TestEntityHandler_List_DefaultPaging(t *testing.T) {
	svc := new(MockEntityService)
	svc.On("List", mock.Anything, catalogapp.EntityListFilter{}).Return([]catalogapp.EntityListResponse{}, int64(0), nil)

	w := performRequest(entityRouter(svc), http.MethodGet, "/catalog/entities", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 1, resp.Meta.Page)
	assert.Equal(t, 20, resp.Meta.PageSize)
}

func TestEntityHandler_Update(t *testing.T) {
	svc := new(MockEntityService)
	id := uuid.New()
	svc.On("Update", mock.Anything, id, mock.MatchedBy(func(req catalogapp.UpdateEntityRequest) bool {
		return req.Name != nil && *req.Name == "Go in Practice, 2nd ed." && req.NaturalKey == nil
	})).Return(sampleEntity(id), nil)

	w := performRequest(entityRouter(svc), http.MethodPut, "/catalog/entities/"+id.String(),
		[]byte(`{"name":"Go in Practice, 2nd ed."}`), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestEntityHandler_PublishTransitions(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		method string
		err    error
		status int
	}{
		{name: "publish", path: "/publish", method: "Publish", status: http.StatusOK},
		{name: "unpublish", path: "/unpublish", method: "Unpublish", status: http.StatusOK},
		{
			name:   "publish twice",
			path:   "/publish",
			method: "Publish",
			err:    shared.NewDomainError("INVALID_STATE", "Entity is already published"),
			status: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockEntityService)
			id := uuid.New()
			if tt.err != nil {
				svc.On(tt.method, mock.Anything, id).Return(nil, tt.err)
			} else {
				svc.On(tt.method, mock.Anything, id).Return(sampleEntity(id), nil)
			}

			w := performRequest(entityRouter(svc), http.MethodPost, "/catalog/entities/"+id.String()+tt.path, nil, nil)

			assert.Equal(t, tt.status, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestEntityHandler_Channels(t *testing.T) {
	svc := new(MockEntityService)
	id := uuid.New()
	svc.On("AssignChannel", mock.Anything, id, "notes").Return(sampleEntity(id), nil)
	svc.On("UnassignChannel", mock.Anything, id, "ghost").
		Return(nil, shared.NewDomainError("INVALID_CHANNEL", "Unknown platform"))
	r := entityRouter(svc)

	w := performRequest(r, http.MethodPut, "/catalog/entities/"+id.String()+"/channels/notes", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRequest(r, http.MethodDelete, "/catalog/entities/"+id.String()+"/channels/ghost", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidChannel, decodeResponse(t, w).Error.Code)
	svc.AssertExpectations(t)
}

func TestEntityHandler_Delete(t *testing.T) {
	svc := new(MockEntityService)
	id := uuid.New()
	svc.On("Delete", mock.Anything, id).Return(nil)

	w := performRequest(entityRouter(svc), http.MethodDelete, "/catalog/entities/"+id.String(), nil, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.Bytes())
}

func TestEntityHandler_Update_InvalidJSON(t *testing.T) {
	svc := new(MockEntityService)
	id := uuid.New()

	w := performRequest(entityRouter(svc), http.MethodPut, "/catalog/entities/"+id.String(), []byte(`{"name":`), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Contains(t, raw, "error")
}
