package finance

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/procurement"
	"github.com/procure/backend/internal/domain/shared"
)

// StringList is a JSON-serialized list of strings stored in one column
type StringList []string

// Value implements driver.Valuer for database storage
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for database retrieval
func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	return json.Unmarshal(data, l)
}

// ThreeWayMatchResult is the immutable audit record of one match run. A
// re-run produces a new row; existing rows are never updated.
type ThreeWayMatchResult struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	InvoiceID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	PurchaseOrderID uuid.UUID       `gorm:"type:uuid;not null;index"`
	RequisitionID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	PerformedBy     uuid.UUID       `gorm:"type:uuid;not null"`
	Score           int             `gorm:"not null"`
	Decision        MatchDecision   `gorm:"type:varchar(20);not null"`
	Discrepancies   DiscrepancyList `gorm:"type:jsonb"`
	Recommendations StringList      `gorm:"type:jsonb"`
	MatchedAt       time.Time       `gorm:"not null"`
	CreatedAt       time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ThreeWayMatchResult) TableName() string {
	return "three_way_match_results"
}

// HasDiscrepancies reports whether the run found any deviation
func (r *ThreeWayMatchResult) HasDiscrepancies() bool {
	return len(r.Discrepancies) > 0
}

// ThreeWayMatchService reconciles a supplier invoice against the purchase
// order it references and the requisition that authorized the purchase. Match
// is a pure function of its inputs: no clock reads feed the decision, no
// stored state is consulted, so re-running it over the same documents yields
// the same discrepancies, score and decision.
type ThreeWayMatchService struct {
	matcher *LineMatcher
}

// ThreeWayMatchOption configures a ThreeWayMatchService
type ThreeWayMatchOption func(*ThreeWayMatchService)

// WithLineMatcher overrides the line matcher
func WithLineMatcher(m *LineMatcher) ThreeWayMatchOption {
	return func(s *ThreeWayMatchService) {
		s.matcher = m
	}
}

// NewThreeWayMatchService creates a three-way match service with the default
// line matcher
func NewThreeWayMatchService(opts ...ThreeWayMatchOption) *ThreeWayMatchService {
	s := &ThreeWayMatchService{
		matcher: NewLineMatcher(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Match runs the three-way reconciliation and returns the audit record. The
// three documents must form a chain: the order cut from the requisition, the
// invoice raised against the order.
func (s *ThreeWayMatchService) Match(requisition *procurement.Requisition, order *procurement.PurchaseOrder, invoice *Invoice, performedBy uuid.UUID) (*ThreeWayMatchResult, error) {
	if requisition == nil || order == nil || invoice == nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "Requisition, purchase order and invoice are all required")
	}
	if !requisition.IsApproved() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot match against requisition in %s status", requisition.Status))
	}
	if order.RequisitionID != requisition.ID {
		return nil, shared.NewDomainError("INVALID_INPUT", "Purchase order was not cut from this requisition")
	}
	if invoice.PurchaseOrderID != order.ID {
		return nil, shared.NewDomainError("INVALID_INPUT", "Invoice does not reference this purchase order")
	}

	discrepancies := make(DiscrepancyList, 0)

	// Supplier identity check
	if invoice.SupplierID != order.SupplierID {
		discrepancies = append(discrepancies, Discrepancy{
			Type:      DiscrepancyTypeSupplierMismatch,
			Severity:  SeverityHigh,
			Expected:  fmt.Sprintf("%s (%s)", order.SupplierName, order.SupplierID),
			Actual:    fmt.Sprintf("%s (%s)", invoice.SupplierName, invoice.SupplierID),
			Deviation: decimalOne(),
		})
	}

	// Header total check
	totalRatio := deviationRatio(order.TotalAmount, invoice.TotalAmount)
	if totalRatio.GreaterThan(TotalAmountTolerance) {
		discrepancies = append(discrepancies, Discrepancy{
			Type:      DiscrepancyTypeTotalAmount,
			Severity:  severityForDeviation(totalRatio),
			Expected:  order.TotalAmount.StringFixed(2),
			Actual:    invoice.TotalAmount.StringFixed(2),
			Deviation: totalRatio,
		})
	}

	// Line-level checks over the paired lines
	lineMatch := s.matcher.Match(order.Lines, invoice.Lines)
	for _, pair := range lineMatch.Pairs {
		lineNumber := pair.OrderLine.LineNumber

		qtyRatio := deviationRatio(pair.OrderLine.QuantityOrdered, pair.InvoiceLine.QuantityInvoiced)
		if qtyRatio.GreaterThan(QuantityTolerance) {
			severity := SeverityMedium
			if qtyRatio.GreaterThan(QuantityHighDeviationThreshold) {
				severity = SeverityHigh
			}
			ln := lineNumber
			discrepancies = append(discrepancies, Discrepancy{
				Type:       DiscrepancyTypeQuantity,
				Severity:   severity,
				Expected:   pair.OrderLine.QuantityOrdered.String(),
				Actual:     pair.InvoiceLine.QuantityInvoiced.String(),
				Deviation:  qtyRatio,
				LineNumber: &ln,
			})
		}

		priceRatio := deviationRatio(pair.OrderLine.UnitPrice, pair.InvoiceLine.UnitPrice)
		if priceRatio.GreaterThan(UnitPriceTolerance) {
			ln := lineNumber
			discrepancies = append(discrepancies, Discrepancy{
				Type:       DiscrepancyTypeUnitPrice,
				Severity:   severityForDeviation(priceRatio),
				Expected:   pair.OrderLine.UnitPrice.StringFixed(2),
				Actual:     pair.InvoiceLine.UnitPrice.StringFixed(2),
				Deviation:  priceRatio,
				LineNumber: &ln,
			})
		}
	}

	// Ordered but never invoiced
	for _, ol := range lineMatch.UnmatchedOrderLines {
		ln := ol.LineNumber
		discrepancies = append(discrepancies, Discrepancy{
			Type:       DiscrepancyTypeMissingLine,
			Severity:   SeverityHigh,
			Expected:   ol.Designation,
			Actual:     "",
			Deviation:  decimalOne(),
			LineNumber: &ln,
		})
	}

	// Invoiced but never ordered
	for _, il := range lineMatch.UnmatchedInvoiceLines {
		ln := il.LineNumber
		discrepancies = append(discrepancies, Discrepancy{
			Type:       DiscrepancyTypeExtraLine,
			Severity:   SeverityHigh,
			Expected:   "",
			Actual:     il.Designation,
			Deviation:  decimalOne(),
			LineNumber: &ln,
		})
	}

	score := ConformityScore(discrepancies)
	decision := DecideOutcome(score, discrepancies)

	now := time.Now()
	result := &ThreeWayMatchResult{
		ID:              uuid.New(),
		InvoiceID:       invoice.ID,
		PurchaseOrderID: order.ID,
		RequisitionID:   requisition.ID,
		PerformedBy:     performedBy,
		Score:           score,
		Decision:        decision,
		Discrepancies:   discrepancies,
		Recommendations: BuildRecommendations(decision, discrepancies),
		MatchedAt:       now,
		CreatedAt:       now,
	}

	return result, nil
}
