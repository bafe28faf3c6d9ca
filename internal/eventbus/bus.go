// Package eventbus dispatches domain events (spec §4.5) to in-process
// subscribers — principally the rolling aggregator. It is adapted from the
// teacher's hook-event Bus (internal/eventbus/bus.go upstream): the same
// Register/Dispatch/priority-ordering shape, stripped of the NATS
// JetStream publishing path (the external bus is the separate
// internal/publisher package, modeled on AWS EventBridge rather than NATS;
// see DESIGN.md).
package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Bus dispatches events to registered handlers in priority order.
type Bus struct {
	log      *zap.Logger
	handlers []Handler
	mu       sync.RWMutex
}

// New creates an event bus that logs handler errors through log.
func New(log *zap.Logger) *Bus {
	return &Bus{log: log}
}

// Register adds a handler to the bus. Handlers are sorted by priority on
// each Dispatch call, so registration order does not matter.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID. Returns true if a handler was removed.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Dispatch sends an event to all registered handlers that handle its type.
// Handlers run sequentially in priority order (lowest first). A handler
// error is logged and collected in Result but never stops the chain or
// propagates to the caller — the bus is resilient by construction, matching
// the teacher's dispatch contract.
func (b *Bus) Dispatch(ctx context.Context, event *Event) (*Result, error) {
	if event == nil {
		return nil, fmt.Errorf("eventbus: nil event")
	}

	b.mu.RLock()
	matching := b.matchingHandlers(event.Type)
	b.mu.RUnlock()

	result := &Result{}
	for _, h := range matching {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("eventbus: context canceled: %w", err)
		}
		if err := h.Handle(ctx, event); err != nil {
			result.Errors = append(result.Errors, err)
			b.log.Warn("eventbus: handler error",
				zap.String("handler", h.ID()),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
	return result, nil
}

// Handlers returns all registered handlers (for introspection).
func (b *Bus) Handlers() []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// matchingHandlers returns handlers that handle the given event type, sorted
// by priority (lowest first). Must be called with at least a read lock held.
func (b *Bus) matchingHandlers(eventType EventType) []Handler {
	var matched []Handler
	for _, h := range b.handlers {
		for _, t := range h.Handles() {
			if t == eventType {
				matched = append(matched, h)
				break
			}
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Priority() < matched[j].Priority()
	})
	return matched
}
