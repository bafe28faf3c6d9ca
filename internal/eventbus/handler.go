package eventbus

import "context"

// Handler processes events on the bus. Handlers are called in priority order
// (lower priority value = called earlier) for matching event types. The
// aggregator registers itself as a Handler; the external Publisher is
// invoked separately by the caller after Dispatch, since its failures must
// never affect a Handler's return value (spec §4.5 "best-effort").
type Handler interface {
	ID() string
	Handles() []EventType
	Priority() int
	Handle(ctx context.Context, event *Event) error
}
