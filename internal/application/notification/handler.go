// Package notification reacts to workflow events by notifying the people who
// have to act next: approvers when a level becomes pending, requesters when a
// decision lands, accounts payable when a match run completes.
package notification

import (
	"context"
	"time"

	"github.com/procure/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// processedTTL bounds how long an event ID is remembered for deduplication
const processedTTL = 24 * time.Hour

// Notifier delivers one notification to a channel (mail, chat, webhook).
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// LogNotifier writes notifications to the application log. Stands in until a
// real channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier backed by the application log
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification
func (n *LogNotifier) Notify(_ context.Context, subject, body string) error {
	n.logger.Info("notification", zap.String("subject", subject), zap.String("body", body))
	return nil
}

// WorkflowNotificationHandler turns workflow events into notifications. Event
// delivery is at-least-once, so the handler deduplicates by event ID before
// notifying; a redelivered event is dropped silently.
type WorkflowNotificationHandler struct {
	notifier    Notifier
	idempotency shared.IdempotencyStore
	logger      *zap.Logger
}

// NewWorkflowNotificationHandler creates a new notification handler
func NewWorkflowNotificationHandler(notifier Notifier, idempotency shared.IdempotencyStore, logger *zap.Logger) *WorkflowNotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowNotificationHandler{
		notifier:    notifier,
		idempotency: idempotency,
		logger:      logger,
	}
}

// EventTypes returns the event types this handler subscribes to
func (h *WorkflowNotificationHandler) EventTypes() []string {
	return []string{
		"RequisitionSubmitted",
		"ApprovalLevelAdvanced",
		"RequisitionApproved",
		"RequisitionRejected",
		"ClarificationRequested",
		"ReconciliationCompleted",
	}
}

// Handle processes a domain event
func (h *WorkflowNotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.idempotency != nil {
		fresh, err := h.idempotency.MarkProcessed(ctx, event.EventID().String(), processedTTL)
		if err != nil {
			return err
		}
		if !fresh {
			h.logger.Debug("duplicate event dropped",
				zap.String("event_id", event.EventID().String()),
				zap.String("event_type", event.EventType()))
			return nil
		}
	}

	subject, body := h.compose(event)
	if subject == "" {
		return nil
	}
	return h.notifier.Notify(ctx, subject, body)
}

func (h *WorkflowNotificationHandler) compose(event shared.DomainEvent) (string, string) {
	aggregateID := event.AggregateID().String()
	switch event.EventType() {
	case "RequisitionSubmitted":
		return "Requisition awaiting approval",
			"Requisition " + aggregateID + " has been submitted and awaits its first approval."
	case "ApprovalLevelAdvanced":
		return "Requisition advanced to next approval level",
			"Requisition " + aggregateID + " cleared a level and awaits the next approver."
	case "RequisitionApproved":
		return "Requisition approved",
			"Requisition " + aggregateID + " is fully approved and may be converted to a purchase order."
	case "RequisitionRejected":
		return "Requisition rejected",
			"Requisition " + aggregateID + " was rejected; see the approval history for the motif."
	case "ClarificationRequested":
		return "Clarification requested",
			"An approver requested clarification on requisition " + aggregateID + "."
	case "ReconciliationCompleted":
		return "Three-way match completed",
			"Match run " + aggregateID + " finished; review the result for the decision and findings."
	}
	return "", ""
}

var _ shared.EventHandler = (*WorkflowNotificationHandler)(nil)
