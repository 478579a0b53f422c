package event

import (
	"sync"

	"github.com/erp/catalogsync/internal/domain/shared"
)

type patternSubscription struct {
	pattern string
	handler shared.EventHandler
}

// HandlerRegistry maps event types to handlers. A handler may subscribe by
// exact type, by a wildcard pattern such as "catalog.entity.*", or to all
// events. A handler matched more than one way receives an event once.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]shared.EventHandler
	patterns []patternSubscription
	wildcard []shared.EventHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string][]shared.EventHandler),
	}
}

// Register adds handler for the given types or patterns. With none it
// receives all events.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		r.wildcard = append(r.wildcard, handler)
		return
	}
	for _, eventType := range eventTypes {
		if shared.IsEventTypePattern(eventType) {
			r.patterns = append(r.patterns, patternSubscription{pattern: eventType, handler: handler})
			continue
		}
		r.handlers[eventType] = append(r.handlers[eventType], handler)
	}
}

// Unregister removes handler from every subscription
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.wildcard = removeHandler(r.wildcard, handler)
	for eventType, handlers := range r.handlers {
		r.handlers[eventType] = removeHandler(handlers, handler)
		if len(r.handlers[eventType]) == 0 {
			delete(r.handlers, eventType)
		}
	}
	kept := r.patterns[:0]
	for _, p := range r.patterns {
		if p.handler != handler {
			kept = append(kept, p)
		}
	}
	r.patterns = kept
}

// GetHandlers returns the handlers for eventType in subscription order:
// exact, then pattern, then catch-all.
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]shared.EventHandler, 0, len(r.handlers[eventType])+len(r.wildcard))
	seen := make(map[shared.EventHandler]bool)
	add := func(h shared.EventHandler) {
		if !seen[h] {
			seen[h] = true
			result = append(result, h)
		}
	}
	for _, h := range r.handlers[eventType] {
		add(h)
	}
	for _, p := range r.patterns {
		if shared.MatchEventType(p.pattern, eventType) {
			add(p.handler)
		}
	}
	for _, h := range r.wildcard {
		add(h)
	}
	return result
}

// GetAllHandlers returns every registered handler once
func (r *HandlerRegistry) GetAllHandlers() []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[shared.EventHandler]bool)
	result := make([]shared.EventHandler, 0)
	add := func(h shared.EventHandler) {
		if !seen[h] {
			seen[h] = true
			result = append(result, h)
		}
	}
	for _, h := range r.wildcard {
		add(h)
	}
	for _, handlers := range r.handlers {
		for _, h := range handlers {
			add(h)
		}
	}
	for _, p := range r.patterns {
		add(p.handler)
	}
	return result
}

func removeHandler(handlers []shared.EventHandler, target shared.EventHandler) []shared.EventHandler {
	result := make([]shared.EventHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != target {
			result = append(result, h)
		}
	}
	return result
}
