package finance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/finance"
	"github.com/procure/backend/internal/domain/procurement"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memInvoiceRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*finance.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{byID: make(map[uuid.UUID]*finance.Invoice)}
}

func cloneInvoice(i *finance.Invoice) *finance.Invoice {
	clone := *i
	clone.Lines = append([]finance.InvoiceLine(nil), i.Lines...)
	clone.ClearDomainEvents()
	return &clone
}

func (m *memInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*finance.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneInvoice(stored), nil
}

func (m *memInvoiceRepo) FindByNumber(_ context.Context, number string) (*finance.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.byID {
		if stored.InvoiceNumber == number {
			return cloneInvoice(stored), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memInvoiceRepo) FindByPurchaseOrderID(_ context.Context, purchaseOrderID uuid.UUID) ([]finance.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []finance.Invoice
	for _, stored := range m.byID {
		if stored.PurchaseOrderID == purchaseOrderID {
			results = append(results, *cloneInvoice(stored))
		}
	}
	return results, nil
}

func (m *memInvoiceRepo) FindAll(_ context.Context, filter shared.Filter) ([]finance.Invoice, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]finance.Invoice, 0, len(m.byID))
	for _, stored := range m.byID {
		if status, ok := filter.Filters["status"].(string); ok && string(stored.Status) != status {
			continue
		}
		results = append(results, *cloneInvoice(stored))
	}
	return results, int64(len(results)), nil
}

func (m *memInvoiceRepo) Save(_ context.Context, invoice *finance.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.byID[invoice.ID]; ok && stored.Version >= invoice.Version {
		return shared.ErrConcurrencyConflict
	}
	m.byID[invoice.ID] = cloneInvoice(invoice)
	return nil
}

type memMatchResultRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*finance.ThreeWayMatchResult
}

func newMemMatchResultRepo() *memMatchResultRepo {
	return &memMatchResultRepo{byID: make(map[uuid.UUID]*finance.ThreeWayMatchResult)}
}

func (m *memMatchResultRepo) FindByID(_ context.Context, id uuid.UUID) (*finance.ThreeWayMatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *stored
	return &clone, nil
}

func (m *memMatchResultRepo) FindByInvoiceID(_ context.Context, invoiceID uuid.UUID) ([]finance.ThreeWayMatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []finance.ThreeWayMatchResult
	for _, stored := range m.byID {
		if stored.InvoiceID == invoiceID {
			results = append(results, *stored)
		}
	}
	return results, nil
}

func (m *memMatchResultRepo) Save(_ context.Context, result *finance.ThreeWayMatchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[result.ID]; ok {
		return shared.ErrAlreadyExists
	}
	clone := *result
	m.byID[result.ID] = &clone
	return nil
}

type memRequisitionRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*procurement.Requisition
}

func (m *memRequisitionRepo) FindByID(_ context.Context, id uuid.UUID) (*procurement.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return stored, nil
}

func (m *memRequisitionRepo) FindByNumber(context.Context, string) (*procurement.Requisition, error) {
	return nil, shared.ErrNotFound
}

func (m *memRequisitionRepo) FindAll(context.Context, shared.Filter) ([]procurement.Requisition, int64, error) {
	return nil, 0, nil
}

func (m *memRequisitionRepo) Save(_ context.Context, requisition *procurement.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[requisition.ID] = requisition
	return nil
}

func (m *memRequisitionRepo) GenerateNumber(context.Context) (string, error) {
	return "REQ-2026-00001", nil
}

type memPurchaseOrderRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*procurement.PurchaseOrder
}

func (m *memPurchaseOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*procurement.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return stored, nil
}

func (m *memPurchaseOrderRepo) FindByRequisitionID(_ context.Context, requisitionID uuid.UUID) (*procurement.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.byID {
		if stored.RequisitionID == requisitionID {
			return stored, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memPurchaseOrderRepo) Save(_ context.Context, order *procurement.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[order.ID] = order
	return nil
}

func (m *memPurchaseOrderRepo) GenerateNumber(context.Context) (string, error) {
	return "PO-2026-00001", nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *capturingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *capturingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

type matchFixture struct {
	service     *MatchingService
	invoices    *memInvoiceRepo
	results     *memMatchResultRepo
	orders      *memPurchaseOrderRepo
	publisher   *capturingPublisher
	requisition *procurement.Requisition
	order       *procurement.PurchaseOrder
}

// newMatchFixture builds an approved requisition with the given lines and the
// purchase order cut from it, wired into an in-memory service
func newMatchFixture(t *testing.T, lines ...[3]string) *matchFixture {
	t.Helper()

	req, err := procurement.NewRequisition("REQ-2026-00001", uuid.New(), uuid.New(), "Bureau Vallée Pro", "EUR")
	require.NoError(t, err)
	for _, line := range lines {
		qty, qerr := decimal.NewFromString(line[1])
		require.NoError(t, qerr)
		price, perr := decimal.NewFromString(line[2])
		require.NoError(t, perr)
		_, aerr := req.AddLine(req.RequesterID, line[0], qty, price, "")
		require.NoError(t, aerr)
	}
	require.NoError(t, req.Submit(procurement.NewApprovalPolicy()))
	for req.Status == procurement.RequisitionStatusInReview {
		require.NoError(t, req.Approve(req.PendingLevel(), uuid.New(), ""))
	}

	order, err := procurement.NewPurchaseOrderFromRequisition(req, "PO-2026-00001")
	require.NoError(t, err)

	requisitions := &memRequisitionRepo{byID: map[uuid.UUID]*procurement.Requisition{req.ID: req}}
	orders := &memPurchaseOrderRepo{byID: map[uuid.UUID]*procurement.PurchaseOrder{order.ID: order}}
	invoices := newMemInvoiceRepo()
	results := newMemMatchResultRepo()
	publisher := &capturingPublisher{}

	service := NewMatchingService(invoices, results, requisitions, orders, zap.NewNop())
	service.SetEventPublisher(publisher)

	return &matchFixture{
		service:     service,
		invoices:    invoices,
		results:     results,
		orders:      orders,
		publisher:   publisher,
		requisition: req,
		order:       order,
	}
}

// captureMirror captures an invoice copying the order's lines and declared
// total, optionally mutated before capture
func (f *matchFixture) captureMirror(t *testing.T, mutate func(*CaptureInvoiceRequest)) *InvoiceResponse {
	t.Helper()
	req := CaptureInvoiceRequest{
		InvoiceNumber:   "FAC-2026-0042",
		PurchaseOrderID: f.order.ID,
		SupplierID:      f.order.SupplierID,
		SupplierName:    f.order.SupplierName,
		Currency:        "EUR",
		TotalAmount:     f.order.TotalAmount,
		VATRate:         decimal.Zero,
		InvoiceDate:     time.Now(),
	}
	for _, line := range f.order.Lines {
		req.Lines = append(req.Lines, InvoiceLineRequest{
			LineNumber:  line.LineNumber,
			Designation: line.Designation,
			Quantity:    line.QuantityOrdered,
			UnitPrice:   line.UnitPrice,
		})
	}
	if mutate != nil {
		mutate(&req)
	}
	resp, err := f.service.CaptureInvoice(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func requireDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

func TestMatchingService_CaptureInvoice(t *testing.T) {
	f := newMatchFixture(t, [3]string{"Papier A4 80g", "10", "100"})
	ctx := context.Background()

	resp := f.captureMirror(t, func(req *CaptureInvoiceRequest) {
		req.VATRate = decimal.NewFromInt(20)
	})

	assert.Equal(t, finance.InvoiceStatusPendingMatch, resp.Status)
	assert.True(t, decimal.NewFromInt(1000).Equal(resp.TotalAmount))
	assert.True(t, decimal.NewFromInt(1200).Equal(resp.TotalInclVAT))
	assert.Len(t, resp.Lines, 1)
	assert.Contains(t, f.publisher.eventTypes(), "InvoiceReceived")

	// Duplicate invoice number
	dup := CaptureInvoiceRequest{
		InvoiceNumber:   "FAC-2026-0042",
		PurchaseOrderID: f.order.ID,
		SupplierID:      f.order.SupplierID,
		SupplierName:    f.order.SupplierName,
		Currency:        "EUR",
		TotalAmount:     decimal.NewFromInt(500),
		InvoiceDate:     time.Now(),
	}
	_, err := f.service.CaptureInvoice(ctx, dup)
	requireDomainCode(t, err, "ALREADY_EXISTS")
}

func TestMatchingService_CaptureAgainstCancelledOrder(t *testing.T) {
	f := newMatchFixture(t, [3]string{"Papier A4 80g", "10", "100"})
	require.NoError(t, f.order.Cancel("Fournisseur en liquidation"))

	_, err := f.service.CaptureInvoice(context.Background(), CaptureInvoiceRequest{
		InvoiceNumber:   "FAC-2026-0001",
		PurchaseOrderID: f.order.ID,
		SupplierID:      f.order.SupplierID,
		SupplierName:    f.order.SupplierName,
		Currency:        "EUR",
		TotalAmount:     decimal.NewFromInt(100),
		InvoiceDate:     time.Now(),
	})
	requireDomainCode(t, err, "INVALID_STATE")
}

func TestMatchingService_RunMatchCleanApproves(t *testing.T) {
	f := newMatchFixture(t, [3]string{"Papier A4 80g", "10", "100"})
	ctx := context.Background()
	invoice := f.captureMirror(t, nil)

	result, err := f.service.RunMatch(ctx, RunMatchRequest{InvoiceID: invoice.ID, PerformedBy: uuid.New()})
	require.NoError(t, err)

	assert.Equal(t, 100, result.Score)
	assert.Equal(t, finance.MatchDecisionApprove, result.Decision)
	assert.Empty(t, result.Discrepancies)

	updated, err := f.service.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.InvoiceStatusApprovedForPayment, updated.Status)
	assert.NotNil(t, updated.MatchedAt)

	// Order moved to invoiced on a clean approve
	order, err := f.orders.FindByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.PurchaseOrderStatusInvoiced, order.Status)

	types := f.publisher.eventTypes()
	assert.Contains(t, types, "InvoiceMatched")
	assert.Contains(t, types, "ReconciliationCompleted")

	// Audit record persisted
	history, err := f.service.ListMatchResults(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestMatchingService_RunMatchDriftHoldsAndRerunSupersedes(t *testing.T) {
	f := newMatchFixture(t, [3]string{"Papier A4 80g", "10", "100"})
	ctx := context.Background()
	// Declared total 15% above the order: one high severity finding landing
	// the score on the investigate floor
	invoice := f.captureMirror(t, func(req *CaptureInvoiceRequest) {
		req.TotalAmount = decimal.NewFromInt(1150)
	})

	first, err := f.service.RunMatch(ctx, RunMatchRequest{InvoiceID: invoice.ID, PerformedBy: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, finance.MatchDecisionInvestigate, first.Decision)
	assert.Equal(t, 85, first.Score)

	held, err := f.service.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.InvoiceStatusOnHold, held.Status)
	assert.Contains(t, held.HoldReason, "manual review required")

	// An invoice on hold may be re-matched; the second run appends a new
	// audit record
	second, err := f.service.RunMatch(ctx, RunMatchRequest{InvoiceID: invoice.ID, PerformedBy: uuid.New()})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Score, second.Score)

	history, err := f.service.ListMatchResults(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMatchingService_RunMatchRejectIsTerminal(t *testing.T) {
	f := newMatchFixture(t, [3]string{"Papier A4 80g", "10", "100"})
	ctx := context.Background()
	// An invoiced line that was never ordered forces a reject regardless of
	// score
	invoice := f.captureMirror(t, func(req *CaptureInvoiceRequest) {
		req.Lines = append(req.Lines, InvoiceLineRequest{
			LineNumber:  9,
			Designation: "Frais de dossier",
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   decimal.NewFromInt(50),
		})
	})

	result, err := f.service.RunMatch(ctx, RunMatchRequest{InvoiceID: invoice.ID, PerformedBy: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, finance.MatchDecisionReject, result.Decision)

	rejected, err := f.service.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.InvoiceStatusRejected, rejected.Status)

	// Rejection is terminal
	_, err = f.service.RunMatch(ctx, RunMatchRequest{InvoiceID: invoice.ID, PerformedBy: uuid.New()})
	requireDomainCode(t, err, "INVALID_STATE")

	// The order is untouched by a rejected invoice
	order, err := f.orders.FindByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.PurchaseOrderStatusOpen, order.Status)
}

func TestMatchingService_ListInvoicesByStatus(t *testing.T) {
	f := newMatchFixture(t, [3]string{"Papier A4 80g", "10", "100"})
	ctx := context.Background()
	invoice := f.captureMirror(t, nil)

	_, err := f.service.RunMatch(ctx, RunMatchRequest{InvoiceID: invoice.ID, PerformedBy: uuid.New()})
	require.NoError(t, err)

	status := finance.InvoiceStatusApprovedForPayment
	results, total, err := f.service.ListInvoices(ctx, InvoiceListFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, results, 1)
	assert.Equal(t, invoice.ID, results[0].ID)

	pending := finance.InvoiceStatusPendingMatch
	_, total, err = f.service.ListInvoices(ctx, InvoiceListFilter{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}
