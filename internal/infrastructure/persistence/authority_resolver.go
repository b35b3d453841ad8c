package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/procurement"
	"gorm.io/gorm"
)

// ApprovalAuthority is one capability grant: the user may decide at the
// given approval level. Grants are managed out of band by administration.
type ApprovalAuthority struct {
	ID        uuid.UUID                 `gorm:"type:uuid;primary_key"`
	UserID    uuid.UUID                 `gorm:"type:uuid;not null;uniqueIndex:idx_authority_user_level"`
	Level     procurement.ApprovalLevel `gorm:"not null;uniqueIndex:idx_authority_user_level"`
	GrantedBy uuid.UUID                 `gorm:"type:uuid"`
	CreatedAt time.Time                 `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ApprovalAuthority) TableName() string {
	return "approval_authorities"
}

// GormAuthorityResolver implements AuthorityResolver against the capability
// grant table
type GormAuthorityResolver struct {
	db *gorm.DB
}

// NewGormAuthorityResolver creates a new GormAuthorityResolver
func NewGormAuthorityResolver(db *gorm.DB) *GormAuthorityResolver {
	return &GormAuthorityResolver{db: db}
}

// CanApprove reports whether the approver holds a grant for the level
func (r *GormAuthorityResolver) CanApprove(ctx context.Context, approverID uuid.UUID, level procurement.ApprovalLevel) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ApprovalAuthority{}).
		Where("user_id = ? AND level = ?", approverID, level).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Grant records a capability grant, idempotently
func (r *GormAuthorityResolver) Grant(ctx context.Context, userID uuid.UUID, level procurement.ApprovalLevel, grantedBy uuid.UUID) error {
	existing, err := r.CanApprove(ctx, userID, level)
	if err != nil {
		return err
	}
	if existing {
		return nil
	}
	return r.db.WithContext(ctx).Create(&ApprovalAuthority{
		ID:        uuid.New(),
		UserID:    userID,
		Level:     level,
		GrantedBy: grantedBy,
		CreatedAt: time.Now(),
	}).Error
}

var _ procurement.AuthorityResolver = (*GormAuthorityResolver)(nil)
