package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/procurement"
	"github.com/shopspring/decimal"
)

// CreateRequisitionRequest is the input for creating a requisition
type CreateRequisitionRequest struct {
	RequesterID  uuid.UUID                `json:"requester_id"`
	SupplierID   uuid.UUID                `json:"supplier_id"`
	SupplierName string                   `json:"supplier_name"`
	Currency     string                   `json:"currency"`
	Lines        []RequisitionLineRequest `json:"lines"`
}

// RequisitionLineRequest is one line of a create request
type RequisitionLineRequest struct {
	Designation string          `json:"designation"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SupplierRef string          `json:"supplier_ref"`
}

// AddLineRequest is the input for adding a line to a draft requisition
type AddLineRequest struct {
	ActorID     uuid.UUID       `json:"actor_id"`
	Designation string          `json:"designation"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SupplierRef string          `json:"supplier_ref"`
}

// ApprovalActionRequest is the input for approve, reject and clarification
// actions
type ApprovalActionRequest struct {
	Level      procurement.ApprovalLevel `json:"level"`
	ApproverID uuid.UUID                 `json:"approver_id"`
	Comment    string                    `json:"comment"`
}

// RequisitionListFilter narrows requisition listings
type RequisitionListFilter struct {
	Page        int
	PageSize    int
	OrderBy     string
	OrderDir    string
	Status      *procurement.RequisitionStatus
	RequesterID *uuid.UUID
	SupplierID  *uuid.UUID
	Search      string
}

// ApprovalRecordResponse is one approval history entry
type ApprovalRecordResponse struct {
	Level      procurement.ApprovalLevel    `json:"level"`
	Decision   procurement.ApprovalDecision `json:"decision"`
	ApproverID uuid.UUID                    `json:"approver_id"`
	Comment    string                       `json:"comment"`
	CreatedAt  time.Time                    `json:"created_at"`
}

// RequisitionLineResponse is one line of a requisition response
type RequisitionLineResponse struct {
	ID          uuid.UUID       `json:"id"`
	LineNumber  int             `json:"line_number"`
	Designation string          `json:"designation"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
	SupplierRef string          `json:"supplier_ref,omitempty"`
}

// RequisitionResponse is the full requisition view
type RequisitionResponse struct {
	ID                uuid.UUID                     `json:"id"`
	RequisitionNumber string                        `json:"requisition_number"`
	RequesterID       uuid.UUID                     `json:"requester_id"`
	SupplierID        uuid.UUID                     `json:"supplier_id"`
	SupplierName      string                        `json:"supplier_name"`
	Currency          string                        `json:"currency"`
	TotalAmount       decimal.Decimal               `json:"total_amount"`
	Status            procurement.RequisitionStatus `json:"status"`
	RequiredLevels    []procurement.ApprovalLevel   `json:"required_levels"`
	CurrentLevel      procurement.ApprovalLevel     `json:"current_level"`
	PendingLevel      procurement.ApprovalLevel     `json:"pending_level,omitempty"`
	History           []ApprovalRecordResponse      `json:"history"`
	Lines             []RequisitionLineResponse     `json:"lines"`
	Version           int                           `json:"version"`
	CreatedAt         time.Time                     `json:"created_at"`
	SubmittedAt       *time.Time                    `json:"submitted_at,omitempty"`
	FinalApprovedAt   *time.Time                    `json:"final_approved_at,omitempty"`
	RejectedAt        *time.Time                    `json:"rejected_at,omitempty"`
}

// PurchaseOrderLineResponse is one line of a purchase order response
type PurchaseOrderLineResponse struct {
	ID              uuid.UUID       `json:"id"`
	LineNumber      int             `json:"line_number"`
	Designation     string          `json:"designation"`
	QuantityOrdered decimal.Decimal `json:"quantity_ordered"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Amount          decimal.Decimal `json:"amount"`
}

// PurchaseOrderResponse is the full purchase order view
type PurchaseOrderResponse struct {
	ID            uuid.UUID                       `json:"id"`
	OrderNumber   string                          `json:"order_number"`
	RequisitionID uuid.UUID                       `json:"requisition_id"`
	SupplierID    uuid.UUID                       `json:"supplier_id"`
	SupplierName  string                          `json:"supplier_name"`
	Currency      string                          `json:"currency"`
	TotalAmount   decimal.Decimal                 `json:"total_amount"`
	Status        procurement.PurchaseOrderStatus `json:"status"`
	Lines         []PurchaseOrderLineResponse     `json:"lines"`
	CreatedAt     time.Time                       `json:"created_at"`
}

// ToRequisitionResponse maps a requisition aggregate to its response view
func ToRequisitionResponse(r *procurement.Requisition) RequisitionResponse {
	history := make([]ApprovalRecordResponse, 0, len(r.Workflow.History))
	for _, record := range r.Workflow.History {
		history = append(history, ApprovalRecordResponse{
			Level:      record.Level,
			Decision:   record.Decision,
			ApproverID: record.ApproverID,
			Comment:    record.Comment,
			CreatedAt:  record.CreatedAt,
		})
	}

	lines := make([]RequisitionLineResponse, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, RequisitionLineResponse{
			ID:          line.ID,
			LineNumber:  line.LineNumber,
			Designation: line.Designation,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			Amount:      line.Amount,
			SupplierRef: line.SupplierRef,
		})
	}

	return RequisitionResponse{
		ID:                r.ID,
		RequisitionNumber: r.RequisitionNumber,
		RequesterID:       r.RequesterID,
		SupplierID:        r.SupplierID,
		SupplierName:      r.SupplierName,
		Currency:          string(r.Currency),
		TotalAmount:       r.TotalAmount,
		Status:            r.Status,
		RequiredLevels:    r.Workflow.RequiredLevels,
		CurrentLevel:      r.Workflow.CurrentLevel,
		PendingLevel:      r.PendingLevel(),
		History:           history,
		Lines:             lines,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		SubmittedAt:       r.SubmittedAt,
		FinalApprovedAt:   r.FinalApprovedAt,
		RejectedAt:        r.RejectedAt,
	}
}

// ToPurchaseOrderResponse maps a purchase order aggregate to its response view
func ToPurchaseOrderResponse(o *procurement.PurchaseOrder) PurchaseOrderResponse {
	lines := make([]PurchaseOrderLineResponse, 0, len(o.Lines))
	for _, line := range o.Lines {
		lines = append(lines, PurchaseOrderLineResponse{
			ID:              line.ID,
			LineNumber:      line.LineNumber,
			Designation:     line.Designation,
			QuantityOrdered: line.QuantityOrdered,
			UnitPrice:       line.UnitPrice,
			Amount:          line.Amount,
		})
	}

	return PurchaseOrderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		RequisitionID: o.RequisitionID,
		SupplierID:    o.SupplierID,
		SupplierName:  o.SupplierName,
		Currency:      string(o.Currency),
		TotalAmount:   o.TotalAmount,
		Status:        o.Status,
		Lines:         lines,
		CreatedAt:     o.CreatedAt,
	}
}
