package procurement

import (
	"context"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
)

// RequisitionRepository persists requisition aggregates.
// Save enforces single-writer-per-document semantics: the update commits only
// if the stored version still matches the version the aggregate was loaded
// with, otherwise shared.ErrConcurrencyConflict is returned and the caller
// may reload and retry.
type RequisitionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Requisition, error)
	FindByNumber(ctx context.Context, number string) (*Requisition, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Requisition, int64, error)
	Save(ctx context.Context, requisition *Requisition) error
	GenerateNumber(ctx context.Context) (string, error)
}

// PurchaseOrderRepository persists purchase order aggregates
type PurchaseOrderRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)
	FindByRequisitionID(ctx context.Context, requisitionID uuid.UUID) (*PurchaseOrder, error)
	Save(ctx context.Context, order *PurchaseOrder) error
	GenerateNumber(ctx context.Context) (string, error)
}

// AuthorityResolver answers whether an approver holds the capability for a
// given approval level. Backed externally by per-user capability flags.
type AuthorityResolver interface {
	CanApprove(ctx context.Context, approverID uuid.UUID, level ApprovalLevel) (bool, error)
}
