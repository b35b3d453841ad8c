package finance

import (
	"context"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
)

// InvoiceRepository persists invoice aggregates. Save enforces the same
// optimistic version check as the procurement repositories.
type InvoiceRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	FindByNumber(ctx context.Context, number string) (*Invoice, error)
	FindByPurchaseOrderID(ctx context.Context, purchaseOrderID uuid.UUID) ([]Invoice, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Invoice, int64, error)
	Save(ctx context.Context, invoice *Invoice) error
}

// MatchResultRepository persists three-way match audit records. Records are
// insert-only.
type MatchResultRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*ThreeWayMatchResult, error)
	FindByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]ThreeWayMatchResult, error)
	Save(ctx context.Context, result *ThreeWayMatchResult) error
}
