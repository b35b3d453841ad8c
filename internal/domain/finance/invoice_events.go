package finance

import (
	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// InvoiceReceivedEvent is raised when a supplier invoice is captured
type InvoiceReceivedEvent struct {
	shared.BaseDomainEvent
	InvoiceID       uuid.UUID       `json:"invoice_id"`
	InvoiceNumber   string          `json:"invoice_number"`
	PurchaseOrderID uuid.UUID       `json:"purchase_order_id"`
	SupplierID      uuid.UUID       `json:"supplier_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// EventType returns the event type name
func (e *InvoiceReceivedEvent) EventType() string {
	return "InvoiceReceived"
}

// NewInvoiceReceivedEvent creates a new InvoiceReceivedEvent
func NewInvoiceReceivedEvent(i *Invoice) *InvoiceReceivedEvent {
	return &InvoiceReceivedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceReceived", "Invoice", i.ID),
		InvoiceID:       i.ID,
		InvoiceNumber:   i.InvoiceNumber,
		PurchaseOrderID: i.PurchaseOrderID,
		SupplierID:      i.SupplierID,
		TotalAmount:     i.TotalAmount,
	}
}

// InvoiceMatchedEvent is raised when a match decision is applied to an
// invoice
type InvoiceMatchedEvent struct {
	shared.BaseDomainEvent
	InvoiceID     uuid.UUID     `json:"invoice_id"`
	InvoiceNumber string        `json:"invoice_number"`
	MatchResultID uuid.UUID     `json:"match_result_id"`
	Decision      MatchDecision `json:"decision"`
	Score         int           `json:"score"`
	Status        InvoiceStatus `json:"status"`
}

// EventType returns the event type name
func (e *InvoiceMatchedEvent) EventType() string {
	return "InvoiceMatched"
}

// NewInvoiceMatchedEvent creates a new InvoiceMatchedEvent
func NewInvoiceMatchedEvent(i *Invoice, result *ThreeWayMatchResult) *InvoiceMatchedEvent {
	return &InvoiceMatchedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InvoiceMatched", "Invoice", i.ID),
		InvoiceID:       i.ID,
		InvoiceNumber:   i.InvoiceNumber,
		MatchResultID:   result.ID,
		Decision:        result.Decision,
		Score:           result.Score,
		Status:          i.Status,
	}
}

// ReconciliationCompletedEvent is raised when a three-way match run finishes,
// whatever its outcome
type ReconciliationCompletedEvent struct {
	shared.BaseDomainEvent
	MatchResultID    uuid.UUID     `json:"match_result_id"`
	InvoiceID        uuid.UUID     `json:"invoice_id"`
	PurchaseOrderID  uuid.UUID     `json:"purchase_order_id"`
	RequisitionID    uuid.UUID     `json:"requisition_id"`
	Score            int           `json:"score"`
	Decision         MatchDecision `json:"decision"`
	DiscrepancyCount int           `json:"discrepancy_count"`
}

// EventType returns the event type name
func (e *ReconciliationCompletedEvent) EventType() string {
	return "ReconciliationCompleted"
}

// NewReconciliationCompletedEvent creates a new ReconciliationCompletedEvent
func NewReconciliationCompletedEvent(result *ThreeWayMatchResult) *ReconciliationCompletedEvent {
	return &ReconciliationCompletedEvent{
		BaseDomainEvent:  shared.NewBaseDomainEvent("ReconciliationCompleted", "ThreeWayMatchResult", result.ID),
		MatchResultID:    result.ID,
		InvoiceID:        result.InvoiceID,
		PurchaseOrderID:  result.PurchaseOrderID,
		RequisitionID:    result.RequisitionID,
		Score:            result.Score,
		Decision:         result.Decision,
		DiscrepancyCount: len(result.Discrepancies),
	}
}
