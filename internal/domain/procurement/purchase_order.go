package procurement

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/procure/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PurchaseOrderStatus represents the status of a purchase order
type PurchaseOrderStatus string

const (
	PurchaseOrderStatusOpen      PurchaseOrderStatus = "OPEN"
	PurchaseOrderStatusReceived  PurchaseOrderStatus = "RECEIVED"
	PurchaseOrderStatusInvoiced  PurchaseOrderStatus = "INVOICED"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "CANCELLED"
)

// IsValid checks if the status is a valid PurchaseOrderStatus
func (s PurchaseOrderStatus) IsValid() bool {
	switch s {
	case PurchaseOrderStatusOpen, PurchaseOrderStatusReceived, PurchaseOrderStatusInvoiced, PurchaseOrderStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of PurchaseOrderStatus
func (s PurchaseOrderStatus) String() string {
	return string(s)
}

// PurchaseOrderLine represents a line item in a purchase order
type PurchaseOrderLine struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	PurchaseOrderID uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber      int             `gorm:"not null"`
	Designation     string          `gorm:"type:varchar(200);not null"`
	QuantityOrdered decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PurchaseOrderLine) TableName() string {
	return "purchase_order_lines"
}

// PurchaseOrder is the purchase order aggregate root (bon de commande).
// It is cut from a fully approved requisition and later matched against the
// supplier invoice; its lines and total are immutable after creation.
type PurchaseOrder struct {
	shared.BaseAggregateRoot
	OrderNumber   string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	RequisitionID uuid.UUID            `gorm:"type:uuid;not null;index"`
	SupplierID    uuid.UUID            `gorm:"type:uuid;not null;index"`
	SupplierName  string               `gorm:"type:varchar(200);not null"`
	Currency      valueobject.Currency `gorm:"type:varchar(3);not null;default:'EUR'"`
	TotalAmount   decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	Status        PurchaseOrderStatus  `gorm:"type:varchar(20);not null;default:'OPEN'"`
	Lines         []PurchaseOrderLine  `gorm:"foreignKey:PurchaseOrderID;references:ID"`
	ReceivedAt    *time.Time
	CancelledAt   *time.Time
	CancelReason  string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

// NewPurchaseOrderFromRequisition creates a purchase order from a fully
// approved requisition, copying its lines with sequential line numbers
func NewPurchaseOrderFromRequisition(r *Requisition, orderNumber string) (*PurchaseOrder, error) {
	if r == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Requisition cannot be nil")
	}
	if !r.IsApproved() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot create purchase order from requisition in %s status", r.Status))
	}
	if orderNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Order number cannot be empty")
	}
	if len(r.Lines) == 0 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Cannot create purchase order without lines")
	}

	po := &PurchaseOrder{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       orderNumber,
		RequisitionID:     r.ID,
		SupplierID:        r.SupplierID,
		SupplierName:      r.SupplierName,
		Currency:          r.Currency,
		TotalAmount:       r.TotalAmount,
		Status:            PurchaseOrderStatusOpen,
		Lines:             make([]PurchaseOrderLine, 0, len(r.Lines)),
	}

	now := time.Now()
	for i, line := range r.Lines {
		po.Lines = append(po.Lines, PurchaseOrderLine{
			ID:              uuid.New(),
			PurchaseOrderID: po.ID,
			LineNumber:      i + 1,
			Designation:     line.Designation,
			QuantityOrdered: line.Quantity,
			UnitPrice:       line.UnitPrice,
			Amount:          line.Amount,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	po.AddDomainEvent(NewPurchaseOrderCreatedEvent(po))

	return po, nil
}

// MarkReceived records that the ordered goods have been received
func (o *PurchaseOrder) MarkReceived() error {
	if o.Status != PurchaseOrderStatusOpen {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot receive purchase order in %s status", o.Status))
	}
	now := time.Now()
	o.Status = PurchaseOrderStatusReceived
	o.ReceivedAt = &now
	o.UpdatedAt = now
	o.IncrementVersion()
	return nil
}

// MarkInvoiced records that a supplier invoice has been matched and cleared
// for payment against this order
func (o *PurchaseOrder) MarkInvoiced() error {
	if o.Status != PurchaseOrderStatusOpen && o.Status != PurchaseOrderStatusReceived {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot invoice purchase order in %s status", o.Status))
	}
	o.Status = PurchaseOrderStatusInvoiced
	o.UpdatedAt = time.Now()
	o.IncrementVersion()
	return nil
}

// Cancel cancels the order. Only open orders can be cancelled.
func (o *PurchaseOrder) Cancel(reason string) error {
	if o.Status != PurchaseOrderStatusOpen {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel purchase order in %s status", o.Status))
	}
	if reason == "" {
		return shared.NewDomainError("INVALID_INPUT", "Cancel reason is required")
	}
	now := time.Now()
	o.Status = PurchaseOrderStatusCancelled
	o.CancelledAt = &now
	o.CancelReason = reason
	o.UpdatedAt = now
	o.IncrementVersion()
	return nil
}

// GetTotalAmountMoney returns the total amount as a Money value object
func (o *PurchaseOrder) GetTotalAmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(o.TotalAmount, o.Currency)
	return m
}

// GetLine returns the line with the given line number, or nil
func (o *PurchaseOrder) GetLine(lineNumber int) *PurchaseOrderLine {
	for idx := range o.Lines {
		if o.Lines[idx].LineNumber == lineNumber {
			return &o.Lines[idx]
		}
	}
	return nil
}

// PurchaseOrderCreatedEvent is raised when a purchase order is cut from an
// approved requisition
type PurchaseOrderCreatedEvent struct {
	shared.BaseDomainEvent
	PurchaseOrderID uuid.UUID       `json:"purchase_order_id"`
	OrderNumber     string          `json:"order_number"`
	RequisitionID   uuid.UUID       `json:"requisition_id"`
	SupplierID      uuid.UUID       `json:"supplier_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// EventType returns the event type name
func (e *PurchaseOrderCreatedEvent) EventType() string {
	return "PurchaseOrderCreated"
}

// NewPurchaseOrderCreatedEvent creates a new PurchaseOrderCreatedEvent
func NewPurchaseOrderCreatedEvent(o *PurchaseOrder) *PurchaseOrderCreatedEvent {
	return &PurchaseOrderCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PurchaseOrderCreated", "PurchaseOrder", o.ID),
		PurchaseOrderID: o.ID,
		OrderNumber:     o.OrderNumber,
		RequisitionID:   o.RequisitionID,
		SupplierID:      o.SupplierID,
		TotalAmount:     o.TotalAmount,
	}
}
