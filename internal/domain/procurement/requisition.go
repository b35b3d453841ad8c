package procurement

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/procure/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// RequisitionStatus represents the status of a purchase requisition
type RequisitionStatus string

const (
	RequisitionStatusDraft    RequisitionStatus = "DRAFT"
	RequisitionStatusInReview RequisitionStatus = "IN_REVIEW"
	RequisitionStatusApproved RequisitionStatus = "APPROVED"
	RequisitionStatusRejected RequisitionStatus = "REJECTED"
)

// IsValid checks if the status is a valid RequisitionStatus
func (s RequisitionStatus) IsValid() bool {
	switch s {
	case RequisitionStatusDraft, RequisitionStatusInReview, RequisitionStatusApproved, RequisitionStatusRejected:
		return true
	}
	return false
}

// String returns the string representation of RequisitionStatus
func (s RequisitionStatus) String() string {
	return string(s)
}

// IsTerminal returns true for statuses that permit no further transitions
func (s RequisitionStatus) IsTerminal() bool {
	return s == RequisitionStatusApproved || s == RequisitionStatusRejected
}

// ApprovalDecision is the outcome recorded by an approver acting on a level
type ApprovalDecision string

const (
	ApprovalDecisionApproved               ApprovalDecision = "APPROVED"
	ApprovalDecisionRejected               ApprovalDecision = "REJECTED"
	ApprovalDecisionClarificationRequested ApprovalDecision = "CLARIFICATION_REQUESTED"
)

// IsValid checks if the decision is a valid ApprovalDecision
func (d ApprovalDecision) IsValid() bool {
	switch d {
	case ApprovalDecisionApproved, ApprovalDecisionRejected, ApprovalDecisionClarificationRequested:
		return true
	}
	return false
}

// ApprovalRecord is one entry of a requisition's approval history.
// Records are append-only and immutable once written.
type ApprovalRecord struct {
	ID            uuid.UUID        `gorm:"type:uuid;primary_key"`
	RequisitionID uuid.UUID        `gorm:"type:uuid;not null;index"`
	Level         ApprovalLevel    `gorm:"not null"`
	Decision      ApprovalDecision `gorm:"type:varchar(30);not null"`
	ApproverID    uuid.UUID        `gorm:"type:uuid;not null;index"`
	Comment       string           `gorm:"type:varchar(1000)"`
	CreatedAt     time.Time        `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (ApprovalRecord) TableName() string {
	return "requisition_approval_records"
}

// ApprovalLevelList is a sorted, duplicate-free list of approval levels,
// stored as a comma-joined string column.
type ApprovalLevelList []ApprovalLevel

// Contains reports whether the list contains the given level
func (l ApprovalLevelList) Contains(level ApprovalLevel) bool {
	for _, v := range l {
		if v == level {
			return true
		}
	}
	return false
}

// First returns the lowest level, or 0 for an empty list
func (l ApprovalLevelList) First() ApprovalLevel {
	if len(l) == 0 {
		return 0
	}
	return l[0]
}

// NextAfter returns the smallest level strictly greater than the given one,
// or 0 if none exists. Relies on the list being sorted ascending.
func (l ApprovalLevelList) NextAfter(level ApprovalLevel) ApprovalLevel {
	for _, v := range l {
		if v > level {
			return v
		}
	}
	return 0
}

// Value implements driver.Valuer for database storage
func (l ApprovalLevelList) Value() (driver.Value, error) {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = strconv.Itoa(int(v))
	}
	return strings.Join(parts, ","), nil
}

// Scan implements sql.Scanner for database retrieval
func (l *ApprovalLevelList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var strVal string
	switch v := value.(type) {
	case string:
		strVal = v
	case []byte:
		strVal = string(v)
	default:
		return fmt.Errorf("cannot scan %T into ApprovalLevelList", value)
	}
	if strVal == "" {
		*l = nil
		return nil
	}
	parts := strings.Split(strVal, ",")
	levels := make(ApprovalLevelList, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fmt.Errorf("invalid approval level %q: %w", p, err)
		}
		levels = append(levels, ApprovalLevel(n))
	}
	*l = levels
	return nil
}

// ApprovalWorkflow carries the approval state of a requisition.
// Invariant: CurrentLevel is monotonically non-decreasing and always equals
// the level of the most recent APPROVED record, or 0 when nothing has been
// approved yet. The current state is a projection over the append-only
// History; it is never rewritten in place.
type ApprovalWorkflow struct {
	RequiredLevels ApprovalLevelList `gorm:"type:varchar(20);not null;default:''"`
	CurrentLevel   ApprovalLevel     `gorm:"not null;default:0"`
	History        []ApprovalRecord  `gorm:"foreignKey:RequisitionID;references:ID"`
}

// RequisitionLine represents a line item of a purchase requisition
type RequisitionLine struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	RequisitionID uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber    int             `gorm:"not null"`
	Designation   string          `gorm:"type:varchar(200);not null"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	SupplierRef   string          `gorm:"type:varchar(100)"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RequisitionLine) TableName() string {
	return "requisition_lines"
}

// Requisition is the purchase requisition aggregate root (demande d'achat).
// It owns the multi-level approval lifecycle: DRAFT -> IN_REVIEW(level) ->
// APPROVED | REJECTED. While DRAFT it may only be mutated by its original
// requester; once submitted it changes only through the state machine
// operations below. Every operation is all-or-nothing: no field is touched
// until all checks have passed.
type Requisition struct {
	shared.BaseAggregateRoot
	RequisitionNumber string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	RequesterID       uuid.UUID            `gorm:"type:uuid;not null;index"`
	SupplierID        uuid.UUID            `gorm:"type:uuid;not null;index"`
	SupplierName      string               `gorm:"type:varchar(200);not null"`
	Currency          valueobject.Currency `gorm:"type:varchar(3);not null;default:'EUR'"`
	TotalAmount       decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	Status            RequisitionStatus    `gorm:"type:varchar(20);not null;default:'DRAFT'"`
	Workflow          ApprovalWorkflow     `gorm:"embedded;embeddedPrefix:workflow_"`
	Lines             []RequisitionLine    `gorm:"foreignKey:RequisitionID;references:ID"`
	SubmittedAt       *time.Time           `gorm:"index"`
	FinalApprovedAt   *time.Time
	RejectedAt        *time.Time
}

// TableName returns the table name for GORM
func (Requisition) TableName() string {
	return "requisitions"
}

// NewRequisition creates a new requisition in DRAFT status
func NewRequisition(requisitionNumber string, requesterID, supplierID uuid.UUID, supplierName string, currency valueobject.Currency) (*Requisition, error) {
	if requisitionNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Requisition number cannot be empty")
	}
	if len(requisitionNumber) > 50 {
		return nil, shared.NewDomainError("INVALID_INPUT", "Requisition number cannot exceed 50 characters")
	}
	if requesterID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Requester ID cannot be empty")
	}
	if supplierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Supplier ID cannot be empty")
	}
	if supplierName == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Supplier name cannot be empty")
	}
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Unsupported currency %q", currency))
	}

	req := &Requisition{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		RequisitionNumber: requisitionNumber,
		RequesterID:       requesterID,
		SupplierID:        supplierID,
		SupplierName:      supplierName,
		Currency:          currency,
		TotalAmount:       decimal.Zero,
		Status:            RequisitionStatusDraft,
		Lines:             make([]RequisitionLine, 0),
	}

	req.AddDomainEvent(NewRequisitionCreatedEvent(req))

	return req, nil
}

// AddLine adds a line item to the requisition.
// Only the original requester may modify a DRAFT requisition.
func (r *Requisition) AddLine(actorID uuid.UUID, designation string, quantity, unitPrice decimal.Decimal, supplierRef string) (*RequisitionLine, error) {
	if err := r.checkDraftMutable(actorID); err != nil {
		return nil, err
	}
	if designation == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Line designation cannot be empty")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_INPUT", "Line quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Line unit price cannot be negative")
	}

	now := time.Now()
	line := RequisitionLine{
		ID:            uuid.New(),
		RequisitionID: r.ID,
		LineNumber:    len(r.Lines) + 1,
		Designation:   designation,
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		Amount:        quantity.Mul(unitPrice),
		SupplierRef:   supplierRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	r.Lines = append(r.Lines, line)
	r.recalculateTotal()
	r.UpdatedAt = now
	r.IncrementVersion()

	return &r.Lines[len(r.Lines)-1], nil
}

// RemoveLine removes a line item and renumbers the remaining lines
func (r *Requisition) RemoveLine(actorID uuid.UUID, lineID uuid.UUID) error {
	if err := r.checkDraftMutable(actorID); err != nil {
		return err
	}

	for idx, line := range r.Lines {
		if line.ID == lineID {
			r.Lines = append(r.Lines[:idx], r.Lines[idx+1:]...)
			for i := range r.Lines {
				r.Lines[i].LineNumber = i + 1
			}
			r.recalculateTotal()
			r.UpdatedAt = time.Now()
			r.IncrementVersion()
			return nil
		}
	}

	return shared.NewDomainError("NOT_FOUND", "Requisition line not found")
}

// PendingLevel returns the approval level currently awaiting a decision,
// or 0 when the requisition is not under review.
func (r *Requisition) PendingLevel() ApprovalLevel {
	if r.Status != RequisitionStatusInReview {
		return 0
	}
	return r.Workflow.RequiredLevels.NextAfter(r.Workflow.CurrentLevel)
}

// Submit submits the requisition for approval. Valid only from DRAFT.
// The policy determines the required levels from the total amount; an empty
// level set (amount <= 0) approves the requisition immediately, without any
// approval record.
func (r *Requisition) Submit(policy *ApprovalPolicy) error {
	if r.Status != RequisitionStatusDraft {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot submit requisition in %s status", r.Status))
	}

	levels, err := policy.RequiredLevels(r.TotalAmount)
	if err != nil {
		return err
	}

	now := time.Now()
	r.Workflow.RequiredLevels = levels
	r.Workflow.CurrentLevel = 0
	r.SubmittedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	if len(levels) == 0 {
		r.Status = RequisitionStatusApproved
		r.FinalApprovedAt = &now
		r.AddDomainEvent(NewRequisitionApprovedEvent(r, uuid.Nil))
		return nil
	}

	r.Status = RequisitionStatusInReview
	r.AddDomainEvent(NewRequisitionSubmittedEvent(r))
	return nil
}

// Approve records an approval at the given level. Valid only while the
// requisition is IN_REVIEW with exactly that level pending: stale retries and
// out-of-order approvals both fail INVALID_STATE, and a level can never be
// skipped or re-approved. Advancing past the highest required level approves
// the requisition and stamps the final approval timestamp.
//
// The approver's authority for the level is resolved by the caller; this
// method only drives the state machine.
func (r *Requisition) Approve(level ApprovalLevel, approverID uuid.UUID, comment string) error {
	if approverID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Approver ID cannot be empty")
	}
	if !level.IsValid() {
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Approval level %d is not valid", level))
	}
	if err := r.checkActionableAt(level); err != nil {
		return err
	}

	now := time.Now()
	r.appendRecord(level, ApprovalDecisionApproved, approverID, comment, now)
	r.Workflow.CurrentLevel = level
	r.UpdatedAt = now
	r.IncrementVersion()

	next := r.Workflow.RequiredLevels.NextAfter(level)
	if next == 0 {
		r.Status = RequisitionStatusApproved
		r.FinalApprovedAt = &now
		r.AddDomainEvent(NewRequisitionApprovedEvent(r, approverID))
		return nil
	}

	r.AddDomainEvent(NewApprovalLevelAdvancedEvent(r, level, next, approverID))
	return nil
}

// Reject rejects the requisition at the given level. Requires a non-empty
// motif. Terminal and irreversible.
func (r *Requisition) Reject(level ApprovalLevel, approverID uuid.UUID, motif string) error {
	if approverID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Approver ID cannot be empty")
	}
	if strings.TrimSpace(motif) == "" {
		return shared.NewDomainError("INVALID_INPUT", "Rejection motif is required")
	}
	if err := r.checkActionableAt(level); err != nil {
		return err
	}

	now := time.Now()
	r.appendRecord(level, ApprovalDecisionRejected, approverID, motif, now)
	r.Status = RequisitionStatusRejected
	r.RejectedAt = &now
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewRequisitionRejectedEvent(r, level, approverID, motif))
	return nil
}

// RequestClarification appends a clarification request to the history without
// advancing the workflow: the requisition stays IN_REVIEW at the same pending
// level and still awaits an approve or reject decision.
func (r *Requisition) RequestClarification(level ApprovalLevel, approverID uuid.UUID, questions string) error {
	if approverID == uuid.Nil {
		return shared.NewDomainError("INVALID_INPUT", "Approver ID cannot be empty")
	}
	if strings.TrimSpace(questions) == "" {
		return shared.NewDomainError("INVALID_INPUT", "Clarification questions are required")
	}
	if err := r.checkActionableAt(level); err != nil {
		return err
	}

	now := time.Now()
	r.appendRecord(level, ApprovalDecisionClarificationRequested, approverID, questions, now)
	r.UpdatedAt = now
	r.IncrementVersion()

	r.AddDomainEvent(NewClarificationRequestedEvent(r, level, approverID, questions))
	return nil
}

// IsDraft returns true if the requisition is in draft status
func (r *Requisition) IsDraft() bool {
	return r.Status == RequisitionStatusDraft
}

// IsApproved returns true if the requisition is fully approved
func (r *Requisition) IsApproved() bool {
	return r.Status == RequisitionStatusApproved
}

// IsRejected returns true if the requisition was rejected
func (r *Requisition) IsRejected() bool {
	return r.Status == RequisitionStatusRejected
}

// GetTotalAmountMoney returns the total amount as a Money value object
func (r *Requisition) GetTotalAmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(r.TotalAmount, r.Currency)
	return m
}

// checkDraftMutable verifies that the requisition is DRAFT and the actor is
// its original requester
func (r *Requisition) checkDraftMutable(actorID uuid.UUID) error {
	if r.Status != RequisitionStatusDraft {
		return shared.NewDomainError("INVALID_STATE", "Requisition is immutable once submitted")
	}
	if actorID != r.RequesterID {
		return shared.NewDomainError("PERMISSION_DENIED", "Only the original requester may modify a draft requisition")
	}
	return nil
}

// checkActionableAt verifies the requisition is IN_REVIEW with exactly the
// given level pending
func (r *Requisition) checkActionableAt(level ApprovalLevel) error {
	if r.Status != RequisitionStatusInReview {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot act on requisition in %s status", r.Status))
	}
	pending := r.PendingLevel()
	if pending != level {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Requisition is awaiting level %d approval, not level %d", pending, level))
	}
	return nil
}

func (r *Requisition) appendRecord(level ApprovalLevel, decision ApprovalDecision, approverID uuid.UUID, comment string, at time.Time) {
	r.Workflow.History = append(r.Workflow.History, ApprovalRecord{
		ID:            uuid.New(),
		RequisitionID: r.ID,
		Level:         level,
		Decision:      decision,
		ApproverID:    approverID,
		Comment:       comment,
		CreatedAt:     at,
	})
}

func (r *Requisition) recalculateTotal() {
	total := decimal.Zero
	for _, line := range r.Lines {
		total = total.Add(line.Amount)
	}
	r.TotalAmount = total
}
