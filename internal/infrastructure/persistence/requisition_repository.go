package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/procurement"
	"github.com/procure/backend/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRequisitionRepository implements RequisitionRepository using GORM
type GormRequisitionRepository struct {
	db *gorm.DB
}

// NewGormRequisitionRepository creates a new GormRequisitionRepository
func NewGormRequisitionRepository(db *gorm.DB) *GormRequisitionRepository {
	return &GormRequisitionRepository{db: db}
}

// FindByID finds a requisition by its ID, loading lines and approval history
func (r *GormRequisitionRepository) FindByID(ctx context.Context, id uuid.UUID) (*procurement.Requisition, error) {
	var requisition procurement.Requisition
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&requisition, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &requisition, nil
}

// FindByNumber finds a requisition by its business number
func (r *GormRequisitionRepository) FindByNumber(ctx context.Context, number string) (*procurement.Requisition, error) {
	var requisition procurement.Requisition
	if err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("requisition_number = ?", number).
		First(&requisition).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &requisition, nil
}

// FindAll finds requisitions matching the filter, returning the page and the
// total count
func (r *GormRequisitionRepository) FindAll(ctx context.Context, filter shared.Filter) ([]procurement.Requisition, int64, error) {
	query := r.db.WithContext(ctx).Model(&procurement.Requisition{})
	query = applyRequisitionFilter(query, filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}
	sortField := ValidateSortField(filter.OrderBy, RequisitionSortFields, "created_at")
	query = query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir))

	var requisitions []procurement.Requisition
	if err := query.Preload("Lines").Find(&requisitions).Error; err != nil {
		return nil, 0, err
	}
	return requisitions, total, nil
}

// Save persists the requisition under optimistic concurrency control. New
// aggregates are inserted with their associations; existing ones are updated
// only if the stored version is still behind the aggregate's, otherwise
// shared.ErrConcurrencyConflict. Approval records are append-only: existing
// rows are never updated or deleted.
func (r *GormRequisitionRepository) Save(ctx context.Context, requisition *procurement.Requisition) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&procurement.Requisition{}).
			Where("id = ?", requisition.ID).
			Count(&exists).Error; err != nil {
			return err
		}

		if exists == 0 {
			return tx.Create(requisition).Error
		}

		// The guarded update is the single concurrency control point: the
		// header row advances to the aggregate's version only if nobody
		// else got there first.
		result := tx.Model(&procurement.Requisition{}).
			Where("id = ? AND version < ?", requisition.ID, requisition.Version).
			Updates(map[string]interface{}{
				"supplier_id":              requisition.SupplierID,
				"supplier_name":            requisition.SupplierName,
				"currency":                 requisition.Currency,
				"total_amount":             requisition.TotalAmount,
				"status":                   requisition.Status,
				"workflow_required_levels": requisition.Workflow.RequiredLevels,
				"workflow_current_level":   requisition.Workflow.CurrentLevel,
				"submitted_at":             requisition.SubmittedAt,
				"final_approved_at":        requisition.FinalApprovedAt,
				"rejected_at":              requisition.RejectedAt,
				"version":                  requisition.Version,
				"updated_at":               requisition.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		// Append new approval records; the primary key makes re-inserting
		// already persisted history a no-op
		if len(requisition.Workflow.History) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(requisition.Workflow.History).Error; err != nil {
				return err
			}
		}

		// Lines only change while DRAFT; replace the stored set
		currentLineIDs := make([]uuid.UUID, len(requisition.Lines))
		for i, line := range requisition.Lines {
			currentLineIDs[i] = line.ID
		}
		if len(currentLineIDs) > 0 {
			if err := tx.Where("requisition_id = ? AND id NOT IN ?", requisition.ID, currentLineIDs).
				Delete(&procurement.RequisitionLine{}).Error; err != nil {
				return err
			}
		} else {
			if err := tx.Where("requisition_id = ?", requisition.ID).
				Delete(&procurement.RequisitionLine{}).Error; err != nil {
				return err
			}
		}
		for i := range requisition.Lines {
			requisition.Lines[i].RequisitionID = requisition.ID
			if err := tx.Save(&requisition.Lines[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// GenerateNumber generates the next requisition number.
// Format: REQ-YYYY-NNNNN (e.g., REQ-2026-00001)
func (r *GormRequisitionRepository) GenerateNumber(ctx context.Context) (string, error) {
	return generateSequentialNumber(ctx, r.db, &procurement.Requisition{}, "requisition_number", "REQ")
}

func applyRequisitionFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for key, value := range filter.Filters {
		switch key {
		case "status":
			query = query.Where("status = ?", value)
		case "requester_id":
			query = query.Where("requester_id = ?", value)
		case "supplier_id":
			query = query.Where("supplier_id = ?", value)
		case "search":
			if s, ok := value.(string); ok && s != "" {
				pattern := "%" + s + "%"
				query = query.Where("requisition_number ILIKE ? OR supplier_name ILIKE ?", pattern, pattern)
			}
		}
	}
	return query
}

// generateSequentialNumber produces the next PREFIX-YYYY-NNNNN business
// number by scanning the highest existing number for the current year
func generateSequentialNumber(ctx context.Context, db *gorm.DB, model interface{}, column, prefix string) (string, error) {
	yearPrefix := fmt.Sprintf("%s-%d-", prefix, time.Now().Year())

	var last string
	err := db.WithContext(ctx).
		Model(model).
		Select(column).
		Where(column+" LIKE ?", yearPrefix+"%").
		Order(column + " DESC").
		Limit(1).
		Scan(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	var nextNum int64 = 1
	if last != "" {
		parts := strings.Split(last, "-")
		if len(parts) == 3 {
			var num int64
			if _, parseErr := fmt.Sscanf(parts[2], "%d", &num); parseErr == nil {
				nextNum = num + 1
			}
		}
	}

	return fmt.Sprintf("%s%05d", yearPrefix, nextNum), nil
}

var _ procurement.RequisitionRepository = (*GormRequisitionRepository)(nil)
