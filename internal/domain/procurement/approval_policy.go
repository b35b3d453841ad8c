package procurement

import (
	"github.com/procure/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ApprovalLevel identifies one step of the sequential approval workflow
type ApprovalLevel int

const (
	ApprovalLevelOne   ApprovalLevel = 1
	ApprovalLevelTwo   ApprovalLevel = 2
	ApprovalLevelThree ApprovalLevel = 3
)

// IsValid checks if the level is a valid ApprovalLevel
func (l ApprovalLevel) IsValid() bool {
	return l >= ApprovalLevelOne && l <= ApprovalLevelThree
}

// Monetary thresholds governing which approval levels a requisition requires.
// These are business configuration constants; the literals must not leak into
// the resolution logic.
var (
	// LevelTwoThreshold: amounts strictly above it additionally require level 2
	LevelTwoThreshold = decimal.NewFromInt(5000)
	// LevelThreeThreshold: amounts strictly above it additionally require level 3
	LevelThreeThreshold = decimal.NewFromInt(10000)
)

// ApprovalPolicy resolves the ordered set of approval levels a monetary amount
// requires. It is a pure, stateless computation.
type ApprovalPolicy struct{}

// NewApprovalPolicy creates a new ApprovalPolicy
func NewApprovalPolicy() *ApprovalPolicy {
	return &ApprovalPolicy{}
}

// RequiredLevels maps an amount to the sorted, duplicate-free list of approval
// levels it requires:
//   - amount <= 0: no levels (auto-approved)
//   - amount > 0: level 1
//   - amount > LevelTwoThreshold: levels 1, 2
//   - amount > LevelThreeThreshold: levels 1, 2, 3
//
// Fails INVALID_INPUT for negative amounts; zero is a valid auto-approve case.
func (p *ApprovalPolicy) RequiredLevels(amount decimal.Decimal) ([]ApprovalLevel, error) {
	if amount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_INPUT", "Requisition amount cannot be negative")
	}

	levels := make([]ApprovalLevel, 0, 3)
	if amount.GreaterThan(decimal.Zero) {
		levels = append(levels, ApprovalLevelOne)
	}
	if amount.GreaterThan(LevelTwoThreshold) {
		levels = append(levels, ApprovalLevelTwo)
	}
	if amount.GreaterThan(LevelThreeThreshold) {
		levels = append(levels, ApprovalLevelThree)
	}
	return levels, nil
}
