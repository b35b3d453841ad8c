package finance

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/procure/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the status of a supplier invoice
type InvoiceStatus string

const (
	InvoiceStatusPendingMatch       InvoiceStatus = "PENDING_MATCH"
	InvoiceStatusApprovedForPayment InvoiceStatus = "APPROVED_FOR_PAYMENT"
	InvoiceStatusOnHold             InvoiceStatus = "ON_HOLD"
	InvoiceStatusRejected           InvoiceStatus = "REJECTED"
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusPendingMatch, InvoiceStatusApprovedForPayment, InvoiceStatusOnHold, InvoiceStatusRejected:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status admits no further transition
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusApprovedForPayment || s == InvoiceStatusRejected
}

// InvoiceLine represents a line item on a supplier invoice
type InvoiceLine struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key"`
	InvoiceID        uuid.UUID       `gorm:"type:uuid;not null;index"`
	LineNumber       int             `gorm:"not null"`
	Designation      string          `gorm:"type:varchar(200);not null"`
	QuantityInvoiced decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Amount           decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceLine) TableName() string {
	return "invoice_lines"
}

// Invoice is the supplier invoice aggregate root. Header fields, including
// the declared total, are captured as the supplier stated them and are never
// recomputed from the lines; surfacing that kind of inconsistency is the
// three-way match's job, not the capture form's.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber   string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	PurchaseOrderID uuid.UUID            `gorm:"type:uuid;not null;index"`
	SupplierID      uuid.UUID            `gorm:"type:uuid;not null;index"`
	SupplierName    string               `gorm:"type:varchar(200);not null"`
	Currency        valueobject.Currency `gorm:"type:varchar(3);not null;default:'EUR'"`
	TotalAmount     decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	VATRate         decimal.Decimal      `gorm:"type:decimal(5,2);not null;default:0"`
	TotalInclVAT    decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	Status          InvoiceStatus        `gorm:"type:varchar(30);not null;default:'PENDING_MATCH'"`
	Lines           []InvoiceLine        `gorm:"foreignKey:InvoiceID;references:ID"`
	InvoiceDate     time.Time            `gorm:"not null"`
	MatchedAt       *time.Time
	HoldReason      string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

// NewInvoice captures a supplier invoice against a purchase order. The total
// is the amount excluding VAT as declared on the invoice header.
func NewInvoice(invoiceNumber string, purchaseOrderID, supplierID uuid.UUID, supplierName string, currency valueobject.Currency, totalAmount, vatRate decimal.Decimal, invoiceDate time.Time) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invoice number cannot be empty")
	}
	if purchaseOrderID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Purchase order ID cannot be empty")
	}
	if supplierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Supplier ID cannot be empty")
	}
	if supplierName == "" {
		return nil, shared.NewDomainError("INVALID_INPUT", "Supplier name cannot be empty")
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid currency: %s", currency))
	}
	if totalAmount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invoice total cannot be negative")
	}
	if vatRate.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "VAT rate cannot be negative")
	}
	if invoiceDate.IsZero() {
		invoiceDate = time.Now()
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     invoiceNumber,
		PurchaseOrderID:   purchaseOrderID,
		SupplierID:        supplierID,
		SupplierName:      supplierName,
		Currency:          currency,
		TotalAmount:       totalAmount,
		VATRate:           vatRate,
		Status:            InvoiceStatusPendingMatch,
		Lines:             make([]InvoiceLine, 0),
		InvoiceDate:       invoiceDate,
	}
	inv.recalculateInclVAT()

	inv.AddDomainEvent(NewInvoiceReceivedEvent(inv))

	return inv, nil
}

// AddLine appends an invoiced line. Lines can only be captured before the
// first match run.
func (i *Invoice) AddLine(lineNumber int, designation string, quantity, unitPrice decimal.Decimal) error {
	if i.Status != InvoiceStatusPendingMatch {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify invoice in %s status", i.Status))
	}
	if lineNumber <= 0 {
		return shared.NewDomainError("INVALID_INPUT", "Line number must be positive")
	}
	if designation == "" {
		return shared.NewDomainError("INVALID_INPUT", "Designation cannot be empty")
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_INPUT", "Quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return shared.NewDomainError("INVALID_INPUT", "Unit price cannot be negative")
	}
	for _, line := range i.Lines {
		if line.LineNumber == lineNumber {
			return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Line number %d already exists", lineNumber))
		}
	}

	now := time.Now()
	i.Lines = append(i.Lines, InvoiceLine{
		ID:               uuid.New(),
		InvoiceID:        i.ID,
		LineNumber:       lineNumber,
		Designation:      designation,
		QuantityInvoiced: quantity,
		UnitPrice:        unitPrice,
		Amount:           quantity.Mul(unitPrice).Round(2),
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	i.UpdatedAt = now
	i.IncrementVersion()

	return nil
}

// ApplyMatchDecision moves the invoice along the approval path dictated by a
// three-way match outcome. An invoice on hold may be re-matched; a later run
// supersedes the earlier one.
func (i *Invoice) ApplyMatchDecision(result *ThreeWayMatchResult) error {
	if result == nil {
		return shared.NewDomainError("INVALID_INPUT", "Match result cannot be nil")
	}
	if result.InvoiceID != i.ID {
		return shared.NewDomainError("INVALID_INPUT", "Match result belongs to a different invoice")
	}
	if i.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot apply match decision to invoice in %s status", i.Status))
	}

	now := time.Now()
	switch result.Decision {
	case MatchDecisionApprove:
		i.Status = InvoiceStatusApprovedForPayment
		i.HoldReason = ""
	case MatchDecisionInvestigate:
		i.Status = InvoiceStatusOnHold
		i.HoldReason = fmt.Sprintf("Conformity score %d, manual review required", result.Score)
	case MatchDecisionReject:
		i.Status = InvoiceStatusRejected
		i.HoldReason = ""
	default:
		return shared.NewDomainError("INVALID_INPUT", fmt.Sprintf("Invalid match decision: %s", result.Decision))
	}
	i.MatchedAt = &now
	i.UpdatedAt = now
	i.IncrementVersion()

	i.AddDomainEvent(NewInvoiceMatchedEvent(i, result))

	return nil
}

// GetLine returns the line with the given line number, or nil
func (i *Invoice) GetLine(lineNumber int) *InvoiceLine {
	for idx := range i.Lines {
		if i.Lines[idx].LineNumber == lineNumber {
			return &i.Lines[idx]
		}
	}
	return nil
}

// GetTotalAmountMoney returns the declared total as a Money value object
func (i *Invoice) GetTotalAmountMoney() valueobject.Money {
	m, _ := valueobject.NewMoney(i.TotalAmount, i.Currency)
	return m
}

// LinesTotal sums the line amounts, which may legitimately differ from the
// declared header total
func (i *Invoice) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range i.Lines {
		total = total.Add(line.Amount)
	}
	return total
}

func (i *Invoice) recalculateInclVAT() {
	money, err := valueobject.NewMoney(i.TotalAmount, i.Currency)
	if err != nil {
		i.TotalInclVAT = i.TotalAmount
		return
	}
	i.TotalInclVAT = money.ApplyVAT(i.VATRate).Round(2).Amount()
}
