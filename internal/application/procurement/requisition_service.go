// Package procurement implements application services for the requisition
// approval workflow and purchase order creation.
package procurement

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/procurement"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/procure/backend/internal/domain/shared/valueobject"
	"github.com/procure/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// RequisitionService orchestrates the requisition lifecycle: creation, line
// edits, submission, the multi-level approval state machine and the cut-over
// to a purchase order. All state transitions live in the domain layer; the
// service resolves approver authority, persists, publishes events and records
// metrics.
type RequisitionService struct {
	requisitionRepo procurement.RequisitionRepository
	orderRepo       procurement.PurchaseOrderRepository
	authority       procurement.AuthorityResolver
	policy          *procurement.ApprovalPolicy
	eventPublisher  shared.EventPublisher
	businessMetrics *telemetry.BusinessMetrics
	logger          *zap.Logger
}

// NewRequisitionService creates a new requisition service
func NewRequisitionService(
	requisitionRepo procurement.RequisitionRepository,
	orderRepo procurement.PurchaseOrderRepository,
	authority procurement.AuthorityResolver,
	logger *zap.Logger,
) *RequisitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequisitionService{
		requisitionRepo: requisitionRepo,
		orderRepo:       orderRepo,
		authority:       authority,
		policy:          procurement.NewApprovalPolicy(),
		logger:          logger,
	}
}

// SetEventPublisher sets the event publisher for domain events
func (s *RequisitionService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetBusinessMetrics sets the business metrics recorder
func (s *RequisitionService) SetBusinessMetrics(metrics *telemetry.BusinessMetrics) {
	s.businessMetrics = metrics
}

// Create creates a new draft requisition with its initial lines
func (s *RequisitionService) Create(ctx context.Context, req CreateRequisitionRequest) (*RequisitionResponse, error) {
	number, err := s.requisitionRepo.GenerateNumber(ctx)
	if err != nil {
		return nil, err
	}

	requisition, err := procurement.NewRequisition(
		number,
		req.RequesterID,
		req.SupplierID,
		req.SupplierName,
		valueobject.Currency(strings.ToUpper(req.Currency)),
	)
	if err != nil {
		return nil, err
	}

	for _, line := range req.Lines {
		if _, err := requisition.AddLine(req.RequesterID, line.Designation, line.Quantity, line.UnitPrice, line.SupplierRef); err != nil {
			return nil, err
		}
	}

	if err := s.requisitionRepo.Save(ctx, requisition); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, requisition)

	s.logger.Info("requisition created",
		zap.String("requisition_id", requisition.ID.String()),
		zap.String("requisition_number", requisition.RequisitionNumber),
		zap.String("total_amount", requisition.TotalAmount.String()))

	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// GetByID returns a requisition by its ID
func (s *RequisitionService) GetByID(ctx context.Context, id uuid.UUID) (*RequisitionResponse, error) {
	requisition, err := s.requisitionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// GetByNumber returns a requisition by its business number
func (s *RequisitionService) GetByNumber(ctx context.Context, number string) (*RequisitionResponse, error) {
	requisition, err := s.requisitionRepo.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// List returns requisitions matching the filter, with the total count
func (s *RequisitionService) List(ctx context.Context, filter RequisitionListFilter) ([]RequisitionResponse, int64, error) {
	domainFilter := shared.DefaultFilter()
	if filter.Page > 0 {
		domainFilter.Page = filter.Page
	}
	if filter.PageSize > 0 && filter.PageSize <= 100 {
		domainFilter.PageSize = filter.PageSize
	}
	if filter.OrderBy != "" {
		domainFilter.OrderBy = filter.OrderBy
	}
	if filter.OrderDir != "" {
		domainFilter.OrderDir = filter.OrderDir
	}
	if filter.Status != nil {
		domainFilter.Filters["status"] = string(*filter.Status)
	}
	if filter.RequesterID != nil {
		domainFilter.Filters["requester_id"] = *filter.RequesterID
	}
	if filter.SupplierID != nil {
		domainFilter.Filters["supplier_id"] = *filter.SupplierID
	}
	if filter.Search != "" {
		domainFilter.Filters["search"] = filter.Search
	}

	requisitions, total, err := s.requisitionRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]RequisitionResponse, 0, len(requisitions))
	for i := range requisitions {
		responses = append(responses, ToRequisitionResponse(&requisitions[i]))
	}
	return responses, total, nil
}

// AddLine adds a line to a draft requisition
func (s *RequisitionService) AddLine(ctx context.Context, id uuid.UUID, req AddLineRequest) (*RequisitionResponse, error) {
	requisition, err := s.requisitionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := requisition.AddLine(req.ActorID, req.Designation, req.Quantity, req.UnitPrice, req.SupplierRef); err != nil {
		return nil, err
	}

	if err := s.requisitionRepo.Save(ctx, requisition); err != nil {
		return nil, err
	}

	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// RemoveLine removes a line from a draft requisition
func (s *RequisitionService) RemoveLine(ctx context.Context, id, lineID, actorID uuid.UUID) (*RequisitionResponse, error) {
	requisition, err := s.requisitionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := requisition.RemoveLine(actorID, lineID); err != nil {
		return nil, err
	}

	if err := s.requisitionRepo.Save(ctx, requisition); err != nil {
		return nil, err
	}

	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// Submit submits a draft requisition for approval. The approval policy
// resolves the required levels from the total amount; a non-positive total
// approves the requisition immediately.
func (s *RequisitionService) Submit(ctx context.Context, id uuid.UUID) (*RequisitionResponse, error) {
	requisition, err := s.requisitionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := requisition.Submit(s.policy); err != nil {
		return nil, err
	}

	if err := s.requisitionRepo.Save(ctx, requisition); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, requisition)

	if s.businessMetrics != nil {
		s.businessMetrics.RecordRequisitionSubmitted(ctx, len(requisition.Workflow.RequiredLevels))
	}

	s.logger.Info("requisition submitted",
		zap.String("requisition_id", requisition.ID.String()),
		zap.String("status", requisition.Status.String()),
		zap.Int("required_levels", len(requisition.Workflow.RequiredLevels)))

	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// Approve records an approval at the given level. The approver must hold the
// authority for that level; the domain state machine enforces ordering.
func (s *RequisitionService) Approve(ctx context.Context, id uuid.UUID, req ApprovalActionRequest) (*RequisitionResponse, error) {
	if err := s.checkAuthority(ctx, req.ApproverID, req.Level); err != nil {
		return nil, err
	}

	requisition, err := s.requisitionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := requisition.Approve(req.Level, req.ApproverID, req.Comment); err != nil {
		return nil, err
	}

	if err := s.requisitionRepo.Save(ctx, requisition); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, requisition)

	if s.businessMetrics != nil {
		s.businessMetrics.RecordApprovalDecision(ctx, string(procurement.ApprovalDecisionApproved), int(req.Level))
	}

	s.logger.Info("requisition approval recorded",
		zap.String("requisition_id", requisition.ID.String()),
		zap.Int("level", int(req.Level)),
		zap.String("status", requisition.Status.String()))

	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// Reject rejects the requisition at the given level with a mandatory motif
func (s *RequisitionService) Reject(ctx context.Context, id uuid.UUID, req ApprovalActionRequest) (*RequisitionResponse, error) {
	if err := s.checkAuthority(ctx, req.ApproverID, req.Level); err != nil {
		return nil, err
	}

	requisition, err := s.requisitionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := requisition.Reject(req.Level, req.ApproverID, req.Comment); err != nil {
		return nil, err
	}

	if err := s.requisitionRepo.Save(ctx, requisition); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, requisition)

	if s.businessMetrics != nil {
		s.businessMetrics.RecordApprovalDecision(ctx, string(procurement.ApprovalDecisionRejected), int(req.Level))
	}

	s.logger.Info("requisition rejected",
		zap.String("requisition_id", requisition.ID.String()),
		zap.Int("level", int(req.Level)))

	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// RequestClarification records a clarification request without advancing the
// workflow
func (s *RequisitionService) RequestClarification(ctx context.Context, id uuid.UUID, req ApprovalActionRequest) (*RequisitionResponse, error) {
	if err := s.checkAuthority(ctx, req.ApproverID, req.Level); err != nil {
		return nil, err
	}

	requisition, err := s.requisitionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := requisition.RequestClarification(req.Level, req.ApproverID, req.Comment); err != nil {
		return nil, err
	}

	if err := s.requisitionRepo.Save(ctx, requisition); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, requisition)

	if s.businessMetrics != nil {
		s.businessMetrics.RecordApprovalDecision(ctx, string(procurement.ApprovalDecisionClarificationRequested), int(req.Level))
	}

	response := ToRequisitionResponse(requisition)
	return &response, nil
}

// CreatePurchaseOrder cuts a purchase order from a fully approved requisition.
// At most one order per requisition.
func (s *RequisitionService) CreatePurchaseOrder(ctx context.Context, requisitionID uuid.UUID) (*PurchaseOrderResponse, error) {
	requisition, err := s.requisitionRepo.FindByID(ctx, requisitionID)
	if err != nil {
		return nil, err
	}

	existing, err := s.orderRepo.FindByRequisitionID(ctx, requisitionID)
	if err != nil && err != shared.ErrNotFound {
		return nil, err
	}
	if existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "A purchase order already exists for this requisition")
	}

	number, err := s.orderRepo.GenerateNumber(ctx)
	if err != nil {
		return nil, err
	}

	order, err := procurement.NewPurchaseOrderFromRequisition(requisition, number)
	if err != nil {
		return nil, err
	}

	if err := s.orderRepo.Save(ctx, order); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, order)

	s.logger.Info("purchase order created",
		zap.String("purchase_order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("requisition_id", requisition.ID.String()))

	response := ToPurchaseOrderResponse(order)
	return &response, nil
}

// GetPurchaseOrder returns a purchase order by its ID
func (s *RequisitionService) GetPurchaseOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrderResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToPurchaseOrderResponse(order)
	return &response, nil
}

// checkAuthority verifies the approver holds the capability for the level.
// Runs before any state inspection so that an unauthorized actor learns
// nothing about the workflow position.
func (s *RequisitionService) checkAuthority(ctx context.Context, approverID uuid.UUID, level procurement.ApprovalLevel) error {
	if s.authority == nil {
		return nil
	}
	allowed, err := s.authority.CanApprove(ctx, approverID, level)
	if err != nil {
		return err
	}
	if !allowed {
		return shared.ErrPermissionDenied
	}
	return nil
}

func (s *RequisitionService) publishEvents(ctx context.Context, aggregate shared.AggregateRoot) {
	if s.eventPublisher == nil {
		return
	}
	events := aggregate.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Warn("failed to publish domain events", zap.Error(err))
	}
	aggregate.ClearDomainEvents()
}
