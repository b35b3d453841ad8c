package event

import (
	"sync"

	"github.com/procure/backend/internal/domain/shared"
)

// HandlerRegistry maps event types to their subscribed handlers. Handlers
// registered without any event type land in a wildcard bucket and receive
// every event. Safe for concurrent use.
type HandlerRegistry struct {
	mu        sync.RWMutex
	handlers  map[string][]shared.EventHandler
	wildcards []shared.EventHandler
}

// NewHandlerRegistry creates a new handler registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[string][]shared.EventHandler),
	}
}

// Register subscribes a handler to the given event types, or to all events
// when none are given
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		r.wildcards = append(r.wildcards, handler)
		return
	}
	for _, eventType := range eventTypes {
		r.handlers[eventType] = append(r.handlers[eventType], handler)
	}
}

// Unregister removes the handler from every subscription
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for eventType, list := range r.handlers {
		r.handlers[eventType] = removeHandler(list, handler)
	}
	r.wildcards = removeHandler(r.wildcards, handler)
}

// GetHandlers returns the handlers subscribed to the given event type,
// including wildcard subscribers
func (r *HandlerRegistry) GetHandlers(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.handlers[eventType]
	result := make([]shared.EventHandler, 0, len(typed)+len(r.wildcards))
	result = append(result, typed...)
	result = append(result, r.wildcards...)
	return result
}

func removeHandler(list []shared.EventHandler, handler shared.EventHandler) []shared.EventHandler {
	filtered := list[:0]
	for _, h := range list {
		if h != handler {
			filtered = append(filtered, h)
		}
	}
	return filtered
}
