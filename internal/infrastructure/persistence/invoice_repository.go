package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/finance"
	"github.com/procure/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormInvoiceRepository implements InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*finance.Invoice, error) {
	var invoice finance.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		First(&invoice, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// FindByNumber finds an invoice by its business number
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, number string) (*finance.Invoice, error) {
	var invoice finance.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Where("invoice_number = ?", number).
		First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

// FindByPurchaseOrderID finds all invoices raised against a purchase order
func (r *GormInvoiceRepository) FindByPurchaseOrderID(ctx context.Context, purchaseOrderID uuid.UUID) ([]finance.Invoice, error) {
	var invoices []finance.Invoice
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Where("purchase_order_id = ?", purchaseOrderID).
		Order("created_at ASC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// FindAll finds invoices matching the filter, returning the page and the
// total count
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter shared.Filter) ([]finance.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&finance.Invoice{})
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "supplier_id":
			query = query.Where("supplier_id = ?", value)
		case "purchase_order_id":
			query = query.Where("purchase_order_id = ?", value)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	sortField := ValidateSortField(filter.OrderBy, InvoiceSortFields, "created_at")
	query = query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir))

	var invoices []finance.Invoice
	if err := query.Preload("Lines").Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// Save persists the invoice under the same version guard as the other
// aggregates
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *finance.Invoice) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&finance.Invoice{}).
			Where("id = ?", invoice.ID).
			Count(&exists).Error; err != nil {
			return err
		}

		if exists == 0 {
			return tx.Create(invoice).Error
		}

		result := tx.Model(&finance.Invoice{}).
			Where("id = ? AND version < ?", invoice.ID, invoice.Version).
			Updates(map[string]interface{}{
				"status":      invoice.Status,
				"matched_at":  invoice.MatchedAt,
				"hold_reason": invoice.HoldReason,
				"version":     invoice.Version,
				"updated_at":  invoice.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		// Lines only change before the first match; replace the stored set
		currentLineIDs := make([]uuid.UUID, len(invoice.Lines))
		for i, line := range invoice.Lines {
			currentLineIDs[i] = line.ID
		}
		if len(currentLineIDs) > 0 {
			if err := tx.Where("invoice_id = ? AND id NOT IN ?", invoice.ID, currentLineIDs).
				Delete(&finance.InvoiceLine{}).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Where("invoice_id = ?", invoice.ID).
				Delete(&finance.InvoiceLine{}).Error; err != nil {
				return err
			}
		}
		for i := range invoice.Lines {
			invoice.Lines[i].InvoiceID = invoice.ID
			if err := tx.Save(&invoice.Lines[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

var _ finance.InvoiceRepository = (*GormInvoiceRepository)(nil)
