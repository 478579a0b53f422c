package event

import (
	"context"
	"testing"

	"github.com/erp/catalogsync/internal/domain/catalog"
	"github.com/erp/catalogsync/internal/domain/shared"
	"github.com/stretchr/testify/assert"
)

// mockHandler implements EventHandler for testing
type mockHandler struct {
	eventTypes []string
	handled    []shared.DomainEvent
}

func newMockHandler(eventTypes ...string) *mockHandler {
	return &mockHandler{
		eventTypes: eventTypes,
		handled:    make([]shared.DomainEvent, 0),
	}
}

func (h *mockHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.handled = append(h.handled, event)
	return nil
}

func (h *mockHandler) EventTypes() []string {
	return h.eventTypes
}

const entityEvents = "catalog.entity.*"

func TestHandlerRegistry_ExactTypes(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newMockHandler()

	registry.Register(handler, catalog.EventTypeEntityCreated, catalog.EventTypeEntityUpdated)

	assert.Equal(t, []shared.EventHandler{handler}, registry.GetHandlers(catalog.EventTypeEntityCreated))
	assert.Equal(t, []shared.EventHandler{handler}, registry.GetHandlers(catalog.EventTypeEntityUpdated))
	assert.Empty(t, registry.GetHandlers(catalog.EventTypeEntityDeleted))
}

func TestHandlerRegistry_CatchAll(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newMockHandler()

	registry.Register(handler)

	assert.Len(t, registry.GetHandlers(catalog.EventTypeEntityDeleted), 1)
	assert.Len(t, registry.GetHandlers("anything.else"), 1)
}

func TestHandlerRegistry_Pattern(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newMockHandler()

	registry.Register(handler, entityEvents)

	for _, eventType := range []string{
		catalog.EventTypeEntityCreated,
		catalog.EventTypeEntityUpdated,
		catalog.EventTypeEntityDeleted,
	} {
		assert.Len(t, registry.GetHandlers(eventType), 1, eventType)
	}
	assert.Empty(t, registry.GetHandlers("catalog.entity"))
	assert.Empty(t, registry.GetHandlers("catalog.relation.created"))
}

func TestHandlerRegistry_OrderAndDedup(t *testing.T) {
	registry := NewHandlerRegistry()
	exact := newMockHandler("exact")
	pattern := newMockHandler("pattern")
	all := newMockHandler("all")
	both := newMockHandler("both")

	registry.Register(all)
	registry.Register(pattern, entityEvents)
	registry.Register(exact, catalog.EventTypeEntityDeleted)
	registry.Register(both, catalog.EventTypeEntityDeleted, entityEvents)

	handlers := registry.GetHandlers(catalog.EventTypeEntityDeleted)

	assert.Equal(t, []shared.EventHandler{exact, both, pattern, all}, handlers)
}

func TestHandlerRegistry_Unregister(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newMockHandler("handler")
	other := newMockHandler("other")

	registry.Register(handler, catalog.EventTypeEntityCreated, entityEvents)
	registry.Register(handler)
	registry.Register(other, entityEvents)

	registry.Unregister(handler)

	assert.Equal(t, []shared.EventHandler{other}, registry.GetHandlers(catalog.EventTypeEntityCreated))
	assert.Equal(t, []shared.EventHandler{other}, registry.GetAllHandlers())
}

func TestHandlerRegistry_GetAllHandlers_NoDuplicates(t *testing.T) {
	registry := NewHandlerRegistry()
	handler := newMockHandler("handler")
	other := newMockHandler("other")

	registry.Register(handler, catalog.EventTypeEntityCreated, catalog.EventTypeEntityUpdated, entityEvents)
	registry.Register(other)

	assert.ElementsMatch(t, []shared.EventHandler{handler, other}, registry.GetAllHandlers())
}

func TestMatchEventType(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{catalog.EventTypeEntityCreated, catalog.EventTypeEntityCreated, true},
		{catalog.EventTypeEntityCreated, catalog.EventTypeEntityDeleted, false},
		{entityEvents, catalog.EventTypeEntityDeleted, true},
		{entityEvents, "catalog.entity.", false},
		{entityEvents, "catalog.entityx.created", false},
		{"catalog.*", catalog.EventTypeEntityUpdated, true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.eventType, func(t *testing.T) {
			assert.Equal(t, tt.want, shared.MatchEventType(tt.pattern, tt.eventType))
		})
	}
}
