package eventbus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeHandler struct {
	id       string
	handles  []EventType
	priority int
	err      error
	calls    *[]string
}

func (h *fakeHandler) ID() string           { return h.id }
func (h *fakeHandler) Handles() []EventType { return h.handles }
func (h *fakeHandler) Priority() int        { return h.priority }
func (h *fakeHandler) Handle(_ context.Context, _ *Event) error {
	*h.calls = append(*h.calls, h.id)
	return h.err
}

func newBus(t *testing.T) *Bus {
	t.Helper()
	return New(zap.NewNop())
}

func TestDispatch_InvokesOnlyMatchingHandlersInPriorityOrder(t *testing.T) {
	bus := newBus(t)
	var calls []string

	low := &fakeHandler{id: "low", handles: []EventType{EventListingCreated}, priority: 10, calls: &calls}
	high := &fakeHandler{id: "high", handles: []EventType{EventListingCreated}, priority: 1, calls: &calls}
	other := &fakeHandler{id: "other", handles: []EventType{EventClaimCreated}, priority: 0, calls: &calls}

	bus.Register(low)
	bus.Register(high)
	bus.Register(other)

	_, err := bus.Dispatch(context.Background(), &Event{Type: EventListingCreated, OccurredAt: time.Now()})
	require.NoError(t, err)
	require.Equal(t, []string{"high", "low"}, calls)
}

func TestDispatch_RejectsNilEvent(t *testing.T) {
	bus := newBus(t)
	_, err := bus.Dispatch(context.Background(), nil)
	require.Error(t, err)
}

func TestDispatch_CollectsHandlerErrorsWithoutHaltingChain(t *testing.T) {
	bus := newBus(t)
	var calls []string

	failing := &fakeHandler{id: "failing", handles: []EventType{EventClaimCreated}, priority: 0, err: fmt.Errorf("boom"), calls: &calls}
	after := &fakeHandler{id: "after", handles: []EventType{EventClaimCreated}, priority: 1, calls: &calls}

	bus.Register(failing)
	bus.Register(after)

	result, err := bus.Dispatch(context.Background(), &Event{Type: EventClaimCreated, OccurredAt: time.Now()})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	require.Equal(t, []string{"failing", "after"}, calls)
}

func TestDispatch_HaltsOnCanceledContext(t *testing.T) {
	bus := newBus(t)
	var calls []string
	bus.Register(&fakeHandler{id: "h", handles: []EventType{EventClaimCreated}, priority: 0, calls: &calls})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bus.Dispatch(ctx, &Event{Type: EventClaimCreated, OccurredAt: time.Now()})
	require.Error(t, err)
	require.Empty(t, calls)
}

func TestRegisterAndUnregister(t *testing.T) {
	bus := newBus(t)
	var calls []string
	h := &fakeHandler{id: "h1", handles: []EventType{EventRequestCreated}, calls: &calls}
	bus.Register(h)
	require.Len(t, bus.Handlers(), 1)

	require.True(t, bus.Unregister("h1"))
	require.Empty(t, bus.Handlers())
	require.False(t, bus.Unregister("h1"), "second unregister of the same id is a no-op")
}

func TestDispatch_IgnoresNonMatchingEventTypes(t *testing.T) {
	bus := newBus(t)
	var calls []string
	bus.Register(&fakeHandler{id: "h", handles: []EventType{EventListingCreated}, calls: &calls})

	_, err := bus.Dispatch(context.Background(), &Event{Type: EventClaimUpdated, OccurredAt: time.Now()})
	require.NoError(t, err)
	require.Empty(t, calls)
}
