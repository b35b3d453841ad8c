package procurement

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/procurement"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memRequisitionRepo is an in-memory repository applying the same guarded
// version check as the database implementation: a save commits only if the
// stored version is still below the aggregate's post-mutation version.
type memRequisitionRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*procurement.Requisition
	nextSeq int
}

func newMemRequisitionRepo() *memRequisitionRepo {
	return &memRequisitionRepo{byID: make(map[uuid.UUID]*procurement.Requisition)}
}

func cloneRequisition(r *procurement.Requisition) *procurement.Requisition {
	clone := *r
	clone.Lines = append([]procurement.RequisitionLine(nil), r.Lines...)
	clone.Workflow.History = append([]procurement.ApprovalRecord(nil), r.Workflow.History...)
	clone.Workflow.RequiredLevels = append(procurement.ApprovalLevelList(nil), r.Workflow.RequiredLevels...)
	clone.ClearDomainEvents()
	return &clone
}

func (m *memRequisitionRepo) FindByID(_ context.Context, id uuid.UUID) (*procurement.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return cloneRequisition(stored), nil
}

func (m *memRequisitionRepo) FindByNumber(_ context.Context, number string) (*procurement.Requisition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.byID {
		if stored.RequisitionNumber == number {
			return cloneRequisition(stored), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRequisitionRepo) FindAll(_ context.Context, filter shared.Filter) ([]procurement.Requisition, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]procurement.Requisition, 0, len(m.byID))
	for _, stored := range m.byID {
		if status, ok := filter.Filters["status"].(string); ok && string(stored.Status) != status {
			continue
		}
		if search, ok := filter.Filters["search"].(string); ok {
			if !strings.Contains(strings.ToLower(stored.SupplierName), strings.ToLower(search)) &&
				!strings.Contains(stored.RequisitionNumber, search) {
				continue
			}
		}
		results = append(results, *cloneRequisition(stored))
	}
	return results, int64(len(results)), nil
}

func (m *memRequisitionRepo) Save(_ context.Context, requisition *procurement.Requisition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stored, ok := m.byID[requisition.ID]; ok {
		if stored.Version >= requisition.Version {
			return shared.ErrConcurrencyConflict
		}
	}
	m.byID[requisition.ID] = cloneRequisition(requisition)
	return nil
}

func (m *memRequisitionRepo) GenerateNumber(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	return fmt.Sprintf("REQ-2026-%05d", m.nextSeq), nil
}

type memPurchaseOrderRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*procurement.PurchaseOrder
	nextSeq int
}

func newMemPurchaseOrderRepo() *memPurchaseOrderRepo {
	return &memPurchaseOrderRepo{byID: make(map[uuid.UUID]*procurement.PurchaseOrder)}
}

func (m *memPurchaseOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*procurement.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *stored
	return &clone, nil
}

func (m *memPurchaseOrderRepo) FindByRequisitionID(_ context.Context, requisitionID uuid.UUID) (*procurement.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stored := range m.byID {
		if stored.RequisitionID == requisitionID {
			clone := *stored
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memPurchaseOrderRepo) Save(_ context.Context, order *procurement.PurchaseOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *order
	clone.ClearDomainEvents()
	m.byID[order.ID] = &clone
	return nil
}

func (m *memPurchaseOrderRepo) GenerateNumber(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq++
	return fmt.Sprintf("PO-2026-%05d", m.nextSeq), nil
}

// memAuthorityResolver grants levels per user
type memAuthorityResolver struct {
	grants map[uuid.UUID][]procurement.ApprovalLevel
}

func (m *memAuthorityResolver) CanApprove(_ context.Context, approverID uuid.UUID, level procurement.ApprovalLevel) (bool, error) {
	for _, granted := range m.grants[approverID] {
		if granted == level {
			return true, nil
		}
	}
	return false, nil
}

// capturingPublisher records published events
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

type serviceFixture struct {
	service   *RequisitionService
	repo      *memRequisitionRepo
	orders    *memPurchaseOrderRepo
	publisher *capturingPublisher
	authority *memAuthorityResolver
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	repo := newMemRequisitionRepo()
	orders := newMemPurchaseOrderRepo()
	authority := &memAuthorityResolver{grants: make(map[uuid.UUID][]procurement.ApprovalLevel)}
	publisher := &capturingPublisher{}

	service := NewRequisitionService(repo, orders, authority, zap.NewNop())
	service.SetEventPublisher(publisher)
	return &serviceFixture{service: service, repo: repo, orders: orders, publisher: publisher, authority: authority}
}

func (f *serviceFixture) grant(approverID uuid.UUID, levels ...procurement.ApprovalLevel) {
	f.authority.grants[approverID] = append(f.authority.grants[approverID], levels...)
}

func createRequest(total float64) CreateRequisitionRequest {
	return CreateRequisitionRequest{
		RequesterID:  uuid.New(),
		SupplierID:   uuid.New(),
		SupplierName: "Fournitures Martin SARL",
		Currency:     "EUR",
		Lines: []RequisitionLineRequest{
			{
				Designation: "Papier A4 80g",
				Quantity:    decimal.NewFromInt(1),
				UnitPrice:   decimal.NewFromFloat(total),
			},
		},
	}
}

func requireDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

func TestRequisitionService_Create(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, err := f.service.Create(ctx, createRequest(1200))
	require.NoError(t, err)

	assert.Equal(t, "REQ-2026-00001", resp.RequisitionNumber)
	assert.Equal(t, procurement.RequisitionStatusDraft, resp.Status)
	assert.True(t, decimal.NewFromInt(1200).Equal(resp.TotalAmount))
	assert.Len(t, resp.Lines, 1)
	assert.Contains(t, f.publisher.eventTypes(), "RequisitionCreated")

	stored, err := f.service.GetByNumber(ctx, resp.RequisitionNumber)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, stored.ID)
}

func TestRequisitionService_SubmitAndSingleLevelApproval(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	approver := uuid.New()
	f.grant(approver, procurement.ApprovalLevelOne)

	created, err := f.service.Create(ctx, createRequest(1200))
	require.NoError(t, err)

	submitted, err := f.service.Submit(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.RequisitionStatusInReview, submitted.Status)
	assert.Equal(t, procurement.ApprovalLevelOne, submitted.PendingLevel)

	approved, err := f.service.Approve(ctx, created.ID, ApprovalActionRequest{
		Level:      procurement.ApprovalLevelOne,
		ApproverID: approver,
		Comment:    "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, procurement.RequisitionStatusApproved, approved.Status)
	assert.NotNil(t, approved.FinalApprovedAt)
	assert.Contains(t, f.publisher.eventTypes(), "RequisitionApproved")
}

func TestRequisitionService_ApproveWithoutAuthority(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	created, err := f.service.Create(ctx, createRequest(1200))
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, created.ID, ApprovalActionRequest{
		Level:      procurement.ApprovalLevelOne,
		ApproverID: uuid.New(),
		Comment:    "ok",
	})
	requireDomainCode(t, err, "PERMISSION_DENIED")

	// The workflow position is untouched
	current, err := f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.ApprovalLevelOne, current.PendingLevel)
	assert.Empty(t, current.History)
}

func TestRequisitionService_HoldingOneLevelDoesNotGrantAnother(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	levelOneOnly := uuid.New()
	f.grant(levelOneOnly, procurement.ApprovalLevelOne)

	created, err := f.service.Create(ctx, createRequest(8000))
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, created.ID, ApprovalActionRequest{
		Level: procurement.ApprovalLevelOne, ApproverID: levelOneOnly,
	})
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, created.ID, ApprovalActionRequest{
		Level: procurement.ApprovalLevelTwo, ApproverID: levelOneOnly,
	})
	requireDomainCode(t, err, "PERMISSION_DENIED")
}

func TestRequisitionService_ThreeLevelChain(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	approvers := map[procurement.ApprovalLevel]uuid.UUID{
		procurement.ApprovalLevelOne:   uuid.New(),
		procurement.ApprovalLevelTwo:   uuid.New(),
		procurement.ApprovalLevelThree: uuid.New(),
	}
	for level, id := range approvers {
		f.grant(id, level)
	}

	created, err := f.service.Create(ctx, createRequest(15000))
	require.NoError(t, err)
	submitted, err := f.service.Submit(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []procurement.ApprovalLevel{1, 2, 3}, submitted.RequiredLevels)

	for _, level := range submitted.RequiredLevels {
		resp, err := f.service.Approve(ctx, created.ID, ApprovalActionRequest{
			Level: level, ApproverID: approvers[level],
		})
		require.NoError(t, err)
		if level < procurement.ApprovalLevelThree {
			assert.Equal(t, procurement.RequisitionStatusInReview, resp.Status)
		} else {
			assert.Equal(t, procurement.RequisitionStatusApproved, resp.Status)
		}
	}

	final, err := f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, final.History, 3)
}

func TestRequisitionService_RejectRequiresMotif(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	approver := uuid.New()
	f.grant(approver, procurement.ApprovalLevelOne)

	created, err := f.service.Create(ctx, createRequest(1200))
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, created.ID)
	require.NoError(t, err)

	_, err = f.service.Reject(ctx, created.ID, ApprovalActionRequest{
		Level: procurement.ApprovalLevelOne, ApproverID: approver, Comment: "   ",
	})
	requireDomainCode(t, err, "INVALID_INPUT")

	rejected, err := f.service.Reject(ctx, created.ID, ApprovalActionRequest{
		Level: procurement.ApprovalLevelOne, ApproverID: approver, Comment: "Budget du trimestre épuisé",
	})
	require.NoError(t, err)
	assert.Equal(t, procurement.RequisitionStatusRejected, rejected.Status)
	assert.Contains(t, f.publisher.eventTypes(), "RequisitionRejected")
}

func TestRequisitionService_ClarificationKeepsLevelPending(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	approver := uuid.New()
	f.grant(approver, procurement.ApprovalLevelOne)

	created, err := f.service.Create(ctx, createRequest(1200))
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, created.ID)
	require.NoError(t, err)

	resp, err := f.service.RequestClarification(ctx, created.ID, ApprovalActionRequest{
		Level: procurement.ApprovalLevelOne, ApproverID: approver, Comment: "Pourquoi ce fournisseur ?",
	})
	require.NoError(t, err)
	assert.Equal(t, procurement.RequisitionStatusInReview, resp.Status)
	assert.Equal(t, procurement.ApprovalLevelOne, resp.PendingLevel)
	assert.Len(t, resp.History, 1)
}

func TestRequisitionService_ConcurrentApprovalsOneWins(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	first := uuid.New()
	second := uuid.New()
	f.grant(first, procurement.ApprovalLevelOne)
	f.grant(second, procurement.ApprovalLevelOne)

	created, err := f.service.Create(ctx, createRequest(1200))
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, created.ID)
	require.NoError(t, err)

	// Both approvers act on the same snapshot; the guarded save lets exactly
	// one commit. The loser surfaces either the version conflict or, on a
	// retry against the fresh state, the already-advanced workflow.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, approver := range []uuid.UUID{first, second} {
		wg.Add(1)
		go func(idx int, approverID uuid.UUID) {
			defer wg.Done()
			_, errs[idx] = f.service.Approve(ctx, created.ID, ApprovalActionRequest{
				Level: procurement.ApprovalLevelOne, ApproverID: approverID,
			})
		}(i, approver)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		switch domainErr.Code {
		case "CONCURRENCY_CONFLICT", "INVALID_STATE":
			conflicts++
		default:
			t.Fatalf("unexpected error code %s", domainErr.Code)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	final, err := f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.RequisitionStatusApproved, final.Status)
	assert.Len(t, final.History, 1)
}

func TestRequisitionService_AutoApproveOnZeroTotal(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	req := createRequest(0)
	req.Lines = nil
	created, err := f.service.Create(ctx, req)
	require.NoError(t, err)

	submitted, err := f.service.Submit(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.RequisitionStatusApproved, submitted.Status)
	assert.Empty(t, submitted.RequiredLevels)
	assert.Empty(t, submitted.History)
}

func TestRequisitionService_CreatePurchaseOrder(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	approver := uuid.New()
	f.grant(approver, procurement.ApprovalLevelOne)

	created, err := f.service.Create(ctx, createRequest(1200))
	require.NoError(t, err)

	// Not approved yet
	_, err = f.service.CreatePurchaseOrder(ctx, created.ID)
	requireDomainCode(t, err, "INVALID_STATE")

	_, err = f.service.Submit(ctx, created.ID)
	require.NoError(t, err)
	_, err = f.service.Approve(ctx, created.ID, ApprovalActionRequest{
		Level: procurement.ApprovalLevelOne, ApproverID: approver,
	})
	require.NoError(t, err)

	order, err := f.service.CreatePurchaseOrder(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "PO-2026-00001", order.OrderNumber)
	assert.Equal(t, created.ID, order.RequisitionID)
	assert.True(t, decimal.NewFromInt(1200).Equal(order.TotalAmount))
	assert.Len(t, order.Lines, 1)
	assert.Contains(t, f.publisher.eventTypes(), "PurchaseOrderCreated")

	// Only one order per requisition
	_, err = f.service.CreatePurchaseOrder(ctx, created.ID)
	requireDomainCode(t, err, "ALREADY_EXISTS")
}

func TestRequisitionService_ListFiltersByStatus(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.Create(ctx, createRequest(1200))
	require.NoError(t, err)
	_, err = f.service.Create(ctx, createRequest(700))
	require.NoError(t, err)
	_, err = f.service.Submit(ctx, first.ID)
	require.NoError(t, err)

	status := procurement.RequisitionStatusInReview
	results, total, err := f.service.List(ctx, RequisitionListFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, results, 1)
	assert.Equal(t, first.ID, results[0].ID)
}
