package finance

import (
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/finance"
	"github.com/shopspring/decimal"
)

// CaptureInvoiceRequest is the input for capturing a supplier invoice
type CaptureInvoiceRequest struct {
	InvoiceNumber   string               `json:"invoice_number"`
	PurchaseOrderID uuid.UUID            `json:"purchase_order_id"`
	SupplierID      uuid.UUID            `json:"supplier_id"`
	SupplierName    string               `json:"supplier_name"`
	Currency        string               `json:"currency"`
	TotalAmount     decimal.Decimal      `json:"total_amount"`
	VATRate         decimal.Decimal      `json:"vat_rate"`
	InvoiceDate     time.Time            `json:"invoice_date"`
	Lines           []InvoiceLineRequest `json:"lines"`
}

// InvoiceLineRequest is one invoiced line of a capture request
type InvoiceLineRequest struct {
	LineNumber  int             `json:"line_number"`
	Designation string          `json:"designation"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// RunMatchRequest is the input for a three-way match run
type RunMatchRequest struct {
	InvoiceID   uuid.UUID `json:"invoice_id"`
	PerformedBy uuid.UUID `json:"performed_by"`
}

// InvoiceListFilter narrows invoice listings
type InvoiceListFilter struct {
	Page            int
	PageSize        int
	OrderBy         string
	OrderDir        string
	Status          *finance.InvoiceStatus
	SupplierID      *uuid.UUID
	PurchaseOrderID *uuid.UUID
	Search          string
}

// InvoiceLineResponse is one line of an invoice response
type InvoiceLineResponse struct {
	ID               uuid.UUID       `json:"id"`
	LineNumber       int             `json:"line_number"`
	Designation      string          `json:"designation"`
	QuantityInvoiced decimal.Decimal `json:"quantity_invoiced"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	Amount           decimal.Decimal `json:"amount"`
}

// InvoiceResponse is the full invoice view
type InvoiceResponse struct {
	ID              uuid.UUID             `json:"id"`
	InvoiceNumber   string                `json:"invoice_number"`
	PurchaseOrderID uuid.UUID             `json:"purchase_order_id"`
	SupplierID      uuid.UUID             `json:"supplier_id"`
	SupplierName    string                `json:"supplier_name"`
	Currency        string                `json:"currency"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	VATRate         decimal.Decimal       `json:"vat_rate"`
	TotalInclVAT    decimal.Decimal       `json:"total_incl_vat"`
	Status          finance.InvoiceStatus `json:"status"`
	Lines           []InvoiceLineResponse `json:"lines"`
	InvoiceDate     time.Time             `json:"invoice_date"`
	MatchedAt       *time.Time            `json:"matched_at,omitempty"`
	HoldReason      string                `json:"hold_reason,omitempty"`
	Version         int                   `json:"version"`
	CreatedAt       time.Time             `json:"created_at"`
}

// DiscrepancyResponse is one finding of a match run
type DiscrepancyResponse struct {
	Type       finance.DiscrepancyType     `json:"type"`
	Severity   finance.DiscrepancySeverity `json:"severity"`
	Expected   string                      `json:"expected"`
	Actual     string                      `json:"actual"`
	Deviation  decimal.Decimal             `json:"deviation"`
	LineNumber *int                        `json:"line_number,omitempty"`
}

// MatchResultResponse is the audit view of one match run
type MatchResultResponse struct {
	ID              uuid.UUID             `json:"id"`
	InvoiceID       uuid.UUID             `json:"invoice_id"`
	PurchaseOrderID uuid.UUID             `json:"purchase_order_id"`
	RequisitionID   uuid.UUID             `json:"requisition_id"`
	PerformedBy     uuid.UUID             `json:"performed_by"`
	Score           int                   `json:"score"`
	Decision        finance.MatchDecision `json:"decision"`
	Discrepancies   []DiscrepancyResponse `json:"discrepancies"`
	Recommendations []string              `json:"recommendations"`
	MatchedAt       time.Time             `json:"matched_at"`
}

// ToInvoiceResponse maps an invoice aggregate to its response view
func ToInvoiceResponse(i *finance.Invoice) InvoiceResponse {
	lines := make([]InvoiceLineResponse, 0, len(i.Lines))
	for _, line := range i.Lines {
		lines = append(lines, InvoiceLineResponse{
			ID:               line.ID,
			LineNumber:       line.LineNumber,
			Designation:      line.Designation,
			QuantityInvoiced: line.QuantityInvoiced,
			UnitPrice:        line.UnitPrice,
			Amount:           line.Amount,
		})
	}

	return InvoiceResponse{
		ID:              i.ID,
		InvoiceNumber:   i.InvoiceNumber,
		PurchaseOrderID: i.PurchaseOrderID,
		SupplierID:      i.SupplierID,
		SupplierName:    i.SupplierName,
		Currency:        string(i.Currency),
		TotalAmount:     i.TotalAmount,
		VATRate:         i.VATRate,
		TotalInclVAT:    i.TotalInclVAT,
		Status:          i.Status,
		Lines:           lines,
		InvoiceDate:     i.InvoiceDate,
		MatchedAt:       i.MatchedAt,
		HoldReason:      i.HoldReason,
		Version:         i.Version,
		CreatedAt:       i.CreatedAt,
	}
}

// ToMatchResultResponse maps a match result to its response view
func ToMatchResultResponse(r *finance.ThreeWayMatchResult) MatchResultResponse {
	discrepancies := make([]DiscrepancyResponse, 0, len(r.Discrepancies))
	for _, d := range r.Discrepancies {
		discrepancies = append(discrepancies, DiscrepancyResponse{
			Type:       d.Type,
			Severity:   d.Severity,
			Expected:   d.Expected,
			Actual:     d.Actual,
			Deviation:  d.Deviation,
			LineNumber: d.LineNumber,
		})
	}

	return MatchResultResponse{
		ID:              r.ID,
		InvoiceID:       r.InvoiceID,
		PurchaseOrderID: r.PurchaseOrderID,
		RequisitionID:   r.RequisitionID,
		PerformedBy:     r.PerformedBy,
		Score:           r.Score,
		Decision:        r.Decision,
		Discrepancies:   discrepancies,
		Recommendations: r.Recommendations,
		MatchedAt:       r.MatchedAt,
	}
}
