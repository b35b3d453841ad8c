package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/finance"
	"github.com/procure/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormMatchResultRepository implements MatchResultRepository using GORM.
// Match results are an insert-only audit trail.
type GormMatchResultRepository struct {
	db *gorm.DB
}

// NewGormMatchResultRepository creates a new GormMatchResultRepository
func NewGormMatchResultRepository(db *gorm.DB) *GormMatchResultRepository {
	return &GormMatchResultRepository{db: db}
}

// FindByID finds a match result by its ID
func (r *GormMatchResultRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.ThreeWayMatchResult, error) {
	var result finance.ThreeWayMatchResult
	if err := r.db.WithContext(ctx).First(&result, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &result, nil
}

// FindByInvoiceID finds all match runs for an invoice, newest first
func (r *GormMatchResultRepository) FindByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]finance.ThreeWayMatchResult, error) {
	var results []finance.ThreeWayMatchResult
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("matched_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Save inserts a new match result. Existing rows are never updated.
func (r *GormMatchResultRepository) Save(ctx context.Context, result *finance.ThreeWayMatchResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

var _ finance.MatchResultRepository = (*GormMatchResultRepository)(nil)
