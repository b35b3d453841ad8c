package finance

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscrepancyType classifies a difference found by the three-way match
type DiscrepancyType string

const (
	DiscrepancyTypeSupplierMismatch DiscrepancyType = "SUPPLIER_MISMATCH"
	DiscrepancyTypeTotalAmount      DiscrepancyType = "TOTAL_AMOUNT"
	DiscrepancyTypeQuantity         DiscrepancyType = "QUANTITY"
	DiscrepancyTypeUnitPrice        DiscrepancyType = "UNIT_PRICE"
	DiscrepancyTypeMissingLine      DiscrepancyType = "MISSING_LINE"
	DiscrepancyTypeExtraLine        DiscrepancyType = "EXTRA_LINE"
)

// DiscrepancySeverity ranks how serious a discrepancy is
type DiscrepancySeverity string

const (
	SeverityLow    DiscrepancySeverity = "LOW"
	SeverityMedium DiscrepancySeverity = "MEDIUM"
	SeverityHigh   DiscrepancySeverity = "HIGH"
)

// Tolerance and classification thresholds for the three-way match, expressed
// as deviation ratios. Business configuration constants; the literals must
// not appear inline in the matching logic.
var (
	// TotalAmountTolerance: header totals deviating beyond it raise a discrepancy
	TotalAmountTolerance = decimal.NewFromFloat(0.02)
	// QuantityTolerance: matched-line quantity deviations beyond it raise a discrepancy
	QuantityTolerance = decimal.NewFromFloat(0.01)
	// UnitPriceTolerance: matched-line price deviations beyond it raise a discrepancy
	UnitPriceTolerance = decimal.NewFromFloat(0.02)
	// MediumDeviationThreshold upgrades a deviation to MEDIUM severity
	MediumDeviationThreshold = decimal.NewFromFloat(0.05)
	// HighDeviationThreshold upgrades a deviation to HIGH severity
	HighDeviationThreshold = decimal.NewFromFloat(0.10)
	// QuantityHighDeviationThreshold upgrades a quantity deviation to HIGH severity
	QuantityHighDeviationThreshold = decimal.NewFromFloat(0.05)
)

// Conformity score penalties per severity and decision score floors
const (
	PenaltyLow    = 2
	PenaltyMedium = 5
	PenaltyHigh   = 15

	ApproveScoreFloor     = 95
	InvestigateScoreFloor = 85
)

// Discrepancy is one typed difference between the purchase order and the
// invoice, with the expected and actual values kept for display
type Discrepancy struct {
	Type       DiscrepancyType     `json:"type"`
	Severity   DiscrepancySeverity `json:"severity"`
	Expected   string              `json:"expected"`
	Actual     string              `json:"actual"`
	Deviation  decimal.Decimal     `json:"deviation"`
	LineNumber *int                `json:"line_number,omitempty"`
}

// DiscrepancyList is a JSON-serialized list of discrepancies, stored as a
// single column on the match result audit row
type DiscrepancyList []Discrepancy

// Value implements driver.Valuer for database storage
func (l DiscrepancyList) Value() (driver.Value, error) {
	if l == nil {
		l = DiscrepancyList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for database retrieval
func (l *DiscrepancyList) Scan(value any) error {
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
		return fmt.Errorf("cannot scan %T into DiscrepancyList", value)
	}
	return json.Unmarshal(data, l)
}

// HasType reports whether the list contains a discrepancy of the given type
func (l DiscrepancyList) HasType(t DiscrepancyType) bool {
	for _, d := range l {
		if d.Type == t {
			return true
		}
	}
	return false
}

// MatchDecision is the outcome of a three-way match run. The same vocabulary
// drives the invoice's post-match approval path.
type MatchDecision string

const (
	MatchDecisionApprove     MatchDecision = "APPROVE"
	MatchDecisionInvestigate MatchDecision = "INVESTIGATE"
	MatchDecisionReject      MatchDecision = "REJECT"
)

// IsValid checks if the decision is a valid MatchDecision
func (d MatchDecision) IsValid() bool {
	switch d {
	case MatchDecisionApprove, MatchDecisionInvestigate, MatchDecisionReject:
		return true
	}
	return false
}

// String returns the string representation of MatchDecision
func (d MatchDecision) String() string {
	return string(d)
}

func decimalOne() decimal.Decimal {
	return decimal.NewFromInt(1)
}

// deviationRatio returns |actual - expected| / expected. A zero expected
// value yields ratio 0 when actual is also zero and ratio 1 otherwise, so
// the classification stays total without dividing by zero.
func deviationRatio(expected, actual decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		if actual.IsZero() {
			return decimal.Zero
		}
		return decimal.NewFromInt(1)
	}
	return actual.Sub(expected).Abs().Div(expected.Abs())
}

// severityForDeviation grades a deviation ratio on the LOW/MEDIUM/HIGH scale
func severityForDeviation(ratio decimal.Decimal) DiscrepancySeverity {
	if ratio.GreaterThan(HighDeviationThreshold) {
		return SeverityHigh
	}
	if ratio.GreaterThan(MediumDeviationThreshold) {
		return SeverityMedium
	}
	return SeverityLow
}

// ConformityScore aggregates discrepancies into a 0-100 score: start at 100,
// subtract a per-severity penalty for each discrepancy, clamp to [0,100]
func ConformityScore(discrepancies []Discrepancy) int {
	score := 100
	for _, d := range discrepancies {
		switch d.Severity {
		case SeverityLow:
			score -= PenaltyLow
		case SeverityMedium:
			score -= PenaltyMedium
		case SeverityHigh:
			score -= PenaltyHigh
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

// DecideOutcome maps a score and discrepancy set to a pay/hold/reject
// decision. A supplier mismatch or an invoiced line with no counterpart on
// the order rejects unconditionally, regardless of score.
func DecideOutcome(score int, discrepancies DiscrepancyList) MatchDecision {
	if discrepancies.HasType(DiscrepancyTypeSupplierMismatch) || discrepancies.HasType(DiscrepancyTypeExtraLine) {
		return MatchDecisionReject
	}
	if score >= ApproveScoreFloor {
		return MatchDecisionApprove
	}
	if score >= InvestigateScoreFloor {
		return MatchDecisionInvestigate
	}
	return MatchDecisionReject
}

// BuildRecommendations generates operator guidance bound to the decision and
// the discrepancy set. Output order is deterministic.
func BuildRecommendations(decision MatchDecision, discrepancies DiscrepancyList) []string {
	recs := make([]string, 0, 4)

	switch decision {
	case MatchDecisionApprove:
		if len(discrepancies) == 0 {
			recs = append(recs, "Invoice matches the purchase order, release for payment")
		} else {
			recs = append(recs, "Deviations are within tolerance, release for payment")
		}
		return recs
	case MatchDecisionInvestigate:
		recs = append(recs, "Review the flagged lines with the purchasing department before payment")
	case MatchDecisionReject:
		recs = append(recs, "Do not pay before resolution")
	}

	if discrepancies.HasType(DiscrepancyTypeSupplierMismatch) {
		recs = append(recs, "Invoice supplier does not match the purchase order, verify the invoice provenance")
	}
	if discrepancies.HasType(DiscrepancyTypeExtraLine) {
		recs = append(recs, "Invoice bills items that were never ordered, contact the supplier for a corrected invoice")
	}
	if discrepancies.HasType(DiscrepancyTypeMissingLine) {
		recs = append(recs, "Ordered items are absent from the invoice, check for a partial delivery or a second invoice")
	}
	if discrepancies.HasType(DiscrepancyTypeTotalAmount) || discrepancies.HasType(DiscrepancyTypeUnitPrice) {
		recs = append(recs, "Contact the supplier about the price difference")
	}
	if discrepancies.HasType(DiscrepancyTypeQuantity) {
		recs = append(recs, "Reconcile invoiced quantities against the goods receipt")
	}

	return recs
}
