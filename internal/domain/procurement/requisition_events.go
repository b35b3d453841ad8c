package procurement

import (
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// RequisitionCreatedEvent is raised when a new requisition is created
type RequisitionCreatedEvent struct {
	shared.BaseDomainEvent
	RequisitionID     uuid.UUID       `json:"requisition_id"`
	RequisitionNumber string          `json:"requisition_number"`
	RequesterID       uuid.UUID       `json:"requester_id"`
	SupplierID        uuid.UUID       `json:"supplier_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}

// EventType returns the event type name
func (e *RequisitionCreatedEvent) EventType() string {
	return "RequisitionCreated"
}

// NewRequisitionCreatedEvent creates a new RequisitionCreatedEvent
func NewRequisitionCreatedEvent(r *Requisition) *RequisitionCreatedEvent {
	return &RequisitionCreatedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("RequisitionCreated", "Requisition", r.ID),
		RequisitionID:     r.ID,
		RequisitionNumber: r.RequisitionNumber,
		RequesterID:       r.RequesterID,
		SupplierID:        r.SupplierID,
		TotalAmount:       r.TotalAmount,
	}
}

// RequisitionSubmittedEvent is raised when a requisition enters review
type RequisitionSubmittedEvent struct {
	shared.BaseDomainEvent
	RequisitionID     uuid.UUID         `json:"requisition_id"`
	RequisitionNumber string            `json:"requisition_number"`
	RequesterID       uuid.UUID         `json:"requester_id"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	RequiredLevels    ApprovalLevelList `json:"required_levels"`
	PendingLevel      ApprovalLevel     `json:"pending_level"`
}

// EventType returns the event type name
func (e *RequisitionSubmittedEvent) EventType() string {
	return "RequisitionSubmitted"
}

// NewRequisitionSubmittedEvent creates a new RequisitionSubmittedEvent
func NewRequisitionSubmittedEvent(r *Requisition) *RequisitionSubmittedEvent {
	return &RequisitionSubmittedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("RequisitionSubmitted", "Requisition", r.ID),
		RequisitionID:     r.ID,
		RequisitionNumber: r.RequisitionNumber,
		RequesterID:       r.RequesterID,
		TotalAmount:       r.TotalAmount,
		RequiredLevels:    r.Workflow.RequiredLevels,
		PendingLevel:      r.PendingLevel(),
	}
}

// ApprovalLevelAdvancedEvent is raised when a level is approved and a higher
// level is still pending
type ApprovalLevelAdvancedEvent struct {
	shared.BaseDomainEvent
	RequisitionID     uuid.UUID     `json:"requisition_id"`
	RequisitionNumber string        `json:"requisition_number"`
	ApprovedLevel     ApprovalLevel `json:"approved_level"`
	NextLevel         ApprovalLevel `json:"next_level"`
	ApproverID        uuid.UUID     `json:"approver_id"`
}

// EventType returns the event type name
func (e *ApprovalLevelAdvancedEvent) EventType() string {
	return "ApprovalLevelAdvanced"
}

// NewApprovalLevelAdvancedEvent creates a new ApprovalLevelAdvancedEvent
func NewApprovalLevelAdvancedEvent(r *Requisition, approved, next ApprovalLevel, approverID uuid.UUID) *ApprovalLevelAdvancedEvent {
	return &ApprovalLevelAdvancedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("ApprovalLevelAdvanced", "Requisition", r.ID),
		RequisitionID:     r.ID,
		RequisitionNumber: r.RequisitionNumber,
		ApprovedLevel:     approved,
		NextLevel:         next,
		ApproverID:        approverID,
	}
}

// RequisitionApprovedEvent is raised when the final required level approves,
// or immediately on submit when no level is required
type RequisitionApprovedEvent struct {
	shared.BaseDomainEvent
	RequisitionID     uuid.UUID       `json:"requisition_id"`
	RequisitionNumber string          `json:"requisition_number"`
	RequesterID       uuid.UUID       `json:"requester_id"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	FinalApproverID   uuid.UUID       `json:"final_approver_id"` // Nil when auto-approved
	FinalApprovedAt   time.Time       `json:"final_approved_at"`
}

// EventType returns the event type name
func (e *RequisitionApprovedEvent) EventType() string {
	return "RequisitionApproved"
}

// NewRequisitionApprovedEvent creates a new RequisitionApprovedEvent
func NewRequisitionApprovedEvent(r *Requisition, finalApproverID uuid.UUID) *RequisitionApprovedEvent {
	approvedAt := time.Now()
	if r.FinalApprovedAt != nil {
		approvedAt = *r.FinalApprovedAt
	}
	return &RequisitionApprovedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("RequisitionApproved", "Requisition", r.ID),
		RequisitionID:     r.ID,
		RequisitionNumber: r.RequisitionNumber,
		RequesterID:       r.RequesterID,
		TotalAmount:       r.TotalAmount,
		FinalApproverID:   finalApproverID,
		FinalApprovedAt:   approvedAt,
	}
}

// RequisitionRejectedEvent is raised when a requisition is rejected
type RequisitionRejectedEvent struct {
	shared.BaseDomainEvent
	RequisitionID     uuid.UUID     `json:"requisition_id"`
	RequisitionNumber string        `json:"requisition_number"`
	RequesterID       uuid.UUID     `json:"requester_id"`
	Level             ApprovalLevel `json:"level"`
	ApproverID        uuid.UUID     `json:"approver_id"`
	Motif             string        `json:"motif"`
}

// EventType returns the event type name
func (e *RequisitionRejectedEvent) EventType() string {
	return "RequisitionRejected"
}

// NewRequisitionRejectedEvent creates a new RequisitionRejectedEvent
func NewRequisitionRejectedEvent(r *Requisition, level ApprovalLevel, approverID uuid.UUID, motif string) *RequisitionRejectedEvent {
	return &RequisitionRejectedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("RequisitionRejected", "Requisition", r.ID),
		RequisitionID:     r.ID,
		RequisitionNumber: r.RequisitionNumber,
		RequesterID:       r.RequesterID,
		Level:             level,
		ApproverID:        approverID,
		Motif:             motif,
	}
}

// ClarificationRequestedEvent is raised when an approver asks the requester
// for more information without advancing the workflow
type ClarificationRequestedEvent struct {
	shared.BaseDomainEvent
	RequisitionID     uuid.UUID     `json:"requisition_id"`
	RequisitionNumber string        `json:"requisition_number"`
	RequesterID       uuid.UUID     `json:"requester_id"`
	Level             ApprovalLevel `json:"level"`
	ApproverID        uuid.UUID     `json:"approver_id"`
	Questions         string        `json:"questions"`
}

// EventType returns the event type name
func (e *ClarificationRequestedEvent) EventType() string {
	return "ClarificationRequested"
}

// NewClarificationRequestedEvent creates a new ClarificationRequestedEvent
func NewClarificationRequestedEvent(r *Requisition, level ApprovalLevel, approverID uuid.UUID, questions string) *ClarificationRequestedEvent {
	return &ClarificationRequestedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("ClarificationRequested", "Requisition", r.ID),
		RequisitionID:     r.ID,
		RequisitionNumber: r.RequisitionNumber,
		RequesterID:       r.RequesterID,
		Level:             level,
		ApproverID:        approverID,
		Questions:         questions,
	}
}
