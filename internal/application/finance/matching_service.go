// Package finance implements application services for invoice capture and
// three-way reconciliation.
package finance

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/finance"
	"github.com/procure/backend/internal/domain/procurement"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/procure/backend/internal/domain/shared/valueobject"
	"github.com/procure/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// MatchingService orchestrates invoice capture and the three-way match. The
// reconciliation itself is a pure domain computation; the service loads the
// document chain, persists the audit record, applies the decision to the
// invoice and publishes the outcome.
type MatchingService struct {
	invoiceRepo     finance.InvoiceRepository
	resultRepo      finance.MatchResultRepository
	requisitionRepo procurement.RequisitionRepository
	orderRepo       procurement.PurchaseOrderRepository
	matchService    *finance.ThreeWayMatchService
	eventPublisher  shared.EventPublisher
	businessMetrics *telemetry.BusinessMetrics
	logger          *zap.Logger
}

// NewMatchingService creates a new matching service
func NewMatchingService(
	invoiceRepo finance.InvoiceRepository,
	resultRepo finance.MatchResultRepository,
	requisitionRepo procurement.RequisitionRepository,
	orderRepo procurement.PurchaseOrderRepository,
	logger *zap.Logger,
) *MatchingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchingService{
		invoiceRepo:     invoiceRepo,
		resultRepo:      resultRepo,
		requisitionRepo: requisitionRepo,
		orderRepo:       orderRepo,
		matchService:    finance.NewThreeWayMatchService(),
		logger:          logger,
	}
}

// SetEventPublisher sets the event publisher for domain events
func (s *MatchingService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetBusinessMetrics sets the business metrics recorder
func (s *MatchingService) SetBusinessMetrics(metrics *telemetry.BusinessMetrics) {
	s.businessMetrics = metrics
}

// SetMatchService overrides the domain match service, used by tests to plug a
// custom line matcher
func (s *MatchingService) SetMatchService(service *finance.ThreeWayMatchService) {
	s.matchService = service
}

// CaptureInvoice records a supplier invoice against a purchase order. The
// declared header total is stored as stated, not recomputed from the lines.
func (s *MatchingService) CaptureInvoice(ctx context.Context, req CaptureInvoiceRequest) (*InvoiceResponse, error) {
	order, err := s.orderRepo.FindByID(ctx, req.PurchaseOrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == procurement.PurchaseOrderStatusCancelled {
		return nil, shared.NewDomainError("INVALID_STATE", "Cannot capture an invoice against a cancelled purchase order")
	}

	if existing, err := s.invoiceRepo.FindByNumber(ctx, req.InvoiceNumber); err == nil && existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "An invoice with this number already exists")
	} else if err != nil && err != shared.ErrNotFound {
		return nil, err
	}

	invoice, err := finance.NewInvoice(
		req.InvoiceNumber,
		req.PurchaseOrderID,
		req.SupplierID,
		req.SupplierName,
		valueobject.Currency(strings.ToUpper(req.Currency)),
		req.TotalAmount,
		req.VATRate,
		req.InvoiceDate,
	)
	if err != nil {
		return nil, err
	}

	for _, line := range req.Lines {
		if err := invoice.AddLine(line.LineNumber, line.Designation, line.Quantity, line.UnitPrice); err != nil {
			return nil, err
		}
	}

	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, err
	}

	s.publishEvents(ctx, invoice)

	s.logger.Info("invoice captured",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("purchase_order_id", invoice.PurchaseOrderID.String()),
		zap.String("total_amount", invoice.TotalAmount.String()))

	response := ToInvoiceResponse(invoice)
	return &response, nil
}

// GetInvoice returns an invoice by its ID
func (s *MatchingService) GetInvoice(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToInvoiceResponse(invoice)
	return &response, nil
}

// ListInvoices returns invoices matching the filter, with the total count
func (s *MatchingService) ListInvoices(ctx context.Context, filter InvoiceListFilter) ([]InvoiceResponse, int64, error) {
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
	if filter.SupplierID != nil {
		domainFilter.Filters["supplier_id"] = *filter.SupplierID
	}
	if filter.PurchaseOrderID != nil {
		domainFilter.Filters["purchase_order_id"] = *filter.PurchaseOrderID
	}
	if filter.Search != "" {
		domainFilter.Filters["search"] = filter.Search
	}

	invoices, total, err := s.invoiceRepo.FindAll(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]InvoiceResponse, 0, len(invoices))
	for i := range invoices {
		responses = append(responses, ToInvoiceResponse(&invoices[i]))
	}
	return responses, total, nil
}

// RunMatch reconciles an invoice against its purchase order and the
// requisition behind it. Each run appends a new immutable audit record and
// moves the invoice along the payment path; an invoice on hold may be
// re-matched after correction of the underlying documents.
func (s *MatchingService) RunMatch(ctx context.Context, req RunMatchRequest) (*MatchResultResponse, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.FindByID(ctx, invoice.PurchaseOrderID)
	if err != nil {
		return nil, err
	}

	requisition, err := s.requisitionRepo.FindByID(ctx, order.RequisitionID)
	if err != nil {
		return nil, err
	}

	result, err := s.matchService.Match(requisition, order, invoice, req.PerformedBy)
	if err != nil {
		return nil, err
	}

	if err := invoice.ApplyMatchDecision(result); err != nil {
		return nil, err
	}

	if err := s.resultRepo.Save(ctx, result); err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		return nil, err
	}

	if result.Decision == finance.MatchDecisionApprove {
		if err := order.MarkInvoiced(); err == nil {
			if err := s.orderRepo.Save(ctx, order); err != nil {
				s.logger.Warn("failed to mark purchase order invoiced",
					zap.String("purchase_order_id", order.ID.String()),
					zap.Error(err))
			}
		}
	}

	s.publishEvents(ctx, invoice)
	if s.eventPublisher != nil {
		if err := s.eventPublisher.Publish(ctx, finance.NewReconciliationCompletedEvent(result)); err != nil {
			s.logger.Warn("failed to publish reconciliation event", zap.Error(err))
		}
	}

	if s.businessMetrics != nil {
		s.businessMetrics.RecordMatchRun(ctx, result.Decision.String(), result.Score)
	}

	s.logger.Info("three-way match completed",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("decision", result.Decision.String()),
		zap.Int("score", result.Score),
		zap.Int("discrepancies", len(result.Discrepancies)))

	response := ToMatchResultResponse(result)
	return &response, nil
}

// GetMatchResult returns one match audit record by its ID
func (s *MatchingService) GetMatchResult(ctx context.Context, id uuid.UUID) (*MatchResultResponse, error) {
	result, err := s.resultRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToMatchResultResponse(result)
	return &response, nil
}

// ListMatchResults returns the match history of an invoice, most recent first
func (s *MatchingService) ListMatchResults(ctx context.Context, invoiceID uuid.UUID) ([]MatchResultResponse, error) {
	results, err := s.resultRepo.FindByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	responses := make([]MatchResultResponse, 0, len(results))
	for i := range results {
		responses = append(responses, ToMatchResultResponse(&results[i]))
	}
	return responses, nil
}

func (s *MatchingService) publishEvents(ctx context.Context, aggregate shared.AggregateRoot) {
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
