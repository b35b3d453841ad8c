package event

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "requisition", uuid.New()),
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	types  []string
	seen   []string
	err    error
	panics bool
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	if h.panics {
		panic("handler blew up")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, event.EventType())
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func (h *recordingHandler) seenTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func TestInMemoryEventBus_PublishDispatchesToSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))
	defer func() { _ = bus.Stop(context.Background()) }()

	handler := &recordingHandler{types: []string{"RequisitionSubmitted"}}
	bus.Subscribe(handler)

	err := bus.Publish(context.Background(),
		newTestEvent("RequisitionSubmitted"),
		newTestEvent("RequisitionApproved"),
	)

	require.NoError(t, err)
	assert.Equal(t, []string{"RequisitionSubmitted"}, handler.seenTypes())
}

func TestInMemoryEventBus_ExplicitSubscriptionOverridesHandlerTypes(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := &recordingHandler{types: []string{"RequisitionSubmitted"}}
	bus.Subscribe(handler, "RequisitionRejected")

	_ = bus.Publish(context.Background(),
		newTestEvent("RequisitionSubmitted"),
		newTestEvent("RequisitionRejected"),
	)

	assert.Equal(t, []string{"RequisitionRejected"}, handler.seenTypes())
}

func TestInMemoryEventBus_HandlerErrorDoesNotPropagate(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	failing := &recordingHandler{types: []string{"RequisitionSubmitted"}, err: assert.AnError}
	healthy := &recordingHandler{types: []string{"RequisitionSubmitted"}}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)

	err := bus.Publish(context.Background(), newTestEvent("RequisitionSubmitted"))

	require.NoError(t, err)
	assert.Len(t, healthy.seenTypes(), 1)
}

func TestInMemoryEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	panicking := &recordingHandler{types: []string{"InvoiceMatched"}, panics: true}
	healthy := &recordingHandler{types: []string{"InvoiceMatched"}}
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NotPanics(t, func() {
		_ = bus.Publish(context.Background(), newTestEvent("InvoiceMatched"))
	})
	assert.Len(t, healthy.seenTypes(), 1)
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())

	handler := &recordingHandler{types: []string{"RequisitionSubmitted"}}
	bus.Subscribe(handler)
	bus.Unsubscribe(handler)

	_ = bus.Publish(context.Background(), newTestEvent("RequisitionSubmitted"))

	assert.Empty(t, handler.seenTypes())
}
