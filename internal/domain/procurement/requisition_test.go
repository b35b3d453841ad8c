package procurement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/procure/backend/internal/domain/shared"
	"github.com/procure/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *shared.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

func newDraftRequisition(t *testing.T, requesterID uuid.UUID, total decimal.Decimal) *Requisition {
	t.Helper()
	req, err := NewRequisition("REQ-2026-00042", requesterID, uuid.New(), "Fournitures Dupont SARL", valueobject.EUR)
	require.NoError(t, err)
	if total.GreaterThan(decimal.Zero) {
		_, err = req.AddLine(requesterID, "Office supplies", decimal.NewFromInt(1), total, "")
		require.NoError(t, err)
	}
	return req
}

func submitRequisition(t *testing.T, requesterID uuid.UUID, total decimal.Decimal) *Requisition {
	t.Helper()
	req := newDraftRequisition(t, requesterID, total)
	require.NoError(t, req.Submit(NewApprovalPolicy()))
	return req
}

func TestNewRequisition(t *testing.T) {
	requesterID := uuid.New()
	supplierID := uuid.New()

	t.Run("valid requisition starts in draft", func(t *testing.T) {
		req, err := NewRequisition("REQ-2026-00001", requesterID, supplierID, "Acme Corp", valueobject.EUR)
		require.NoError(t, err)
		assert.Equal(t, RequisitionStatusDraft, req.Status)
		assert.True(t, req.TotalAmount.IsZero())
		assert.Equal(t, 1, req.GetVersion())
		assert.Len(t, req.GetDomainEvents(), 1)
		assert.Equal(t, "RequisitionCreated", req.GetDomainEvents()[0].EventType())
	})

	t.Run("empty number fails", func(t *testing.T) {
		_, err := NewRequisition("", requesterID, supplierID, "Acme Corp", valueobject.EUR)
		assertDomainCode(t, err, "INVALID_INPUT")
	})

	t.Run("empty supplier name fails", func(t *testing.T) {
		_, err := NewRequisition("REQ-2026-00001", requesterID, supplierID, "", valueobject.EUR)
		assertDomainCode(t, err, "INVALID_INPUT")
	})

	t.Run("unsupported currency fails", func(t *testing.T) {
		_, err := NewRequisition("REQ-2026-00001", requesterID, supplierID, "Acme Corp", valueobject.Currency("BTC"))
		assertDomainCode(t, err, "INVALID_INPUT")
	})
}

func TestRequisition_Lines(t *testing.T) {
	requesterID := uuid.New()

	t.Run("add line recalculates total", func(t *testing.T) {
		req := newDraftRequisition(t, requesterID, decimal.Zero)

		_, err := req.AddLine(requesterID, "Laptop", decimal.NewFromInt(2), decimal.NewFromInt(1200), "SKU-99")
		require.NoError(t, err)
		_, err = req.AddLine(requesterID, "Docking station", decimal.NewFromInt(2), decimal.NewFromInt(150), "")
		require.NoError(t, err)

		assert.True(t, req.TotalAmount.Equal(decimal.NewFromInt(2700)), "got %s", req.TotalAmount)
		assert.Equal(t, 1, req.Lines[0].LineNumber)
		assert.Equal(t, 2, req.Lines[1].LineNumber)
	})

	t.Run("only the requester may modify a draft", func(t *testing.T) {
		req := newDraftRequisition(t, requesterID, decimal.Zero)
		_, err := req.AddLine(uuid.New(), "Laptop", decimal.NewFromInt(1), decimal.NewFromInt(100), "")
		assertDomainCode(t, err, "PERMISSION_DENIED")
	})

	t.Run("remove line renumbers the remainder", func(t *testing.T) {
		req := newDraftRequisition(t, requesterID, decimal.Zero)
		first, err := req.AddLine(requesterID, "Laptop", decimal.NewFromInt(1), decimal.NewFromInt(1000), "")
		require.NoError(t, err)
		firstID := first.ID
		_, err = req.AddLine(requesterID, "Mouse", decimal.NewFromInt(1), decimal.NewFromInt(25), "")
		require.NoError(t, err)

		require.NoError(t, req.RemoveLine(requesterID, firstID))
		require.Len(t, req.Lines, 1)
		assert.Equal(t, 1, req.Lines[0].LineNumber)
		assert.Equal(t, "Mouse", req.Lines[0].Designation)
		assert.True(t, req.TotalAmount.Equal(decimal.NewFromInt(25)))
	})

	t.Run("submitted requisition is immutable", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(100))
		_, err := req.AddLine(requesterID, "Laptop", decimal.NewFromInt(1), decimal.NewFromInt(100), "")
		assertDomainCode(t, err, "INVALID_STATE")
	})
}

func TestRequisition_Submit(t *testing.T) {
	requesterID := uuid.New()
	policy := NewApprovalPolicy()

	t.Run("zero total auto-approves without history", func(t *testing.T) {
		req := newDraftRequisition(t, requesterID, decimal.Zero)
		require.NoError(t, req.Submit(policy))

		assert.Equal(t, RequisitionStatusApproved, req.Status)
		assert.NotNil(t, req.FinalApprovedAt)
		assert.Empty(t, req.Workflow.History)
		assert.Empty(t, req.Workflow.RequiredLevels)

		events := req.GetDomainEvents()
		require.NotEmpty(t, events)
		last, ok := events[len(events)-1].(*RequisitionApprovedEvent)
		require.True(t, ok)
		assert.Equal(t, uuid.Nil, last.FinalApproverID)
	})

	t.Run("positive total enters review at level 1", func(t *testing.T) {
		req := newDraftRequisition(t, requesterID, decimal.NewFromInt(300))
		require.NoError(t, req.Submit(policy))

		assert.Equal(t, RequisitionStatusInReview, req.Status)
		assert.Equal(t, ApprovalLevelOne, req.PendingLevel())
		assert.NotNil(t, req.SubmittedAt)
	})

	t.Run("large total requires all three levels", func(t *testing.T) {
		req := newDraftRequisition(t, requesterID, decimal.NewFromInt(20000))
		require.NoError(t, req.Submit(policy))

		assert.Equal(t, ApprovalLevelList{ApprovalLevelOne, ApprovalLevelTwo, ApprovalLevelThree}, req.Workflow.RequiredLevels)
		assert.Equal(t, ApprovalLevelOne, req.PendingLevel())
	})

	t.Run("double submit fails", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		err := req.Submit(policy)
		assertDomainCode(t, err, "INVALID_STATE")
	})
}

func TestRequisition_Approve(t *testing.T) {
	requesterID := uuid.New()
	approver := uuid.New()

	t.Run("single level approval completes the requisition", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		require.NoError(t, req.Approve(ApprovalLevelOne, approver, "ok"))

		assert.Equal(t, RequisitionStatusApproved, req.Status)
		assert.NotNil(t, req.FinalApprovedAt)
		assert.Equal(t, ApprovalLevelOne, req.Workflow.CurrentLevel)
		require.Len(t, req.Workflow.History, 1)
		assert.Equal(t, ApprovalDecisionApproved, req.Workflow.History[0].Decision)
	})

	t.Run("three level chain advances sequentially", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(20000))

		require.NoError(t, req.Approve(ApprovalLevelOne, approver, ""))
		assert.Equal(t, RequisitionStatusInReview, req.Status)
		assert.Equal(t, ApprovalLevelTwo, req.PendingLevel())

		require.NoError(t, req.Approve(ApprovalLevelTwo, uuid.New(), ""))
		assert.Equal(t, ApprovalLevelThree, req.PendingLevel())

		require.NoError(t, req.Approve(ApprovalLevelThree, uuid.New(), "final"))
		assert.Equal(t, RequisitionStatusApproved, req.Status)
		assert.Len(t, req.Workflow.History, 3)
	})

	t.Run("skipping a level fails", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(20000))
		err := req.Approve(ApprovalLevelTwo, approver, "")
		assertDomainCode(t, err, "INVALID_STATE")
	})

	t.Run("duplicate approval of a consumed level fails", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(20000))
		require.NoError(t, req.Approve(ApprovalLevelOne, approver, ""))

		err := req.Approve(ApprovalLevelOne, approver, "")
		assertDomainCode(t, err, "INVALID_STATE")
		assert.Len(t, req.Workflow.History, 1, "failed retry must not append history")
	})

	t.Run("approval after terminal state fails", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		require.NoError(t, req.Approve(ApprovalLevelOne, approver, ""))

		err := req.Approve(ApprovalLevelOne, approver, "")
		assertDomainCode(t, err, "INVALID_STATE")
	})

	t.Run("invalid level fails before touching state", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		version := req.GetVersion()
		err := req.Approve(ApprovalLevel(7), approver, "")
		assertDomainCode(t, err, "INVALID_INPUT")
		assert.Equal(t, version, req.GetVersion())
	})
}

func TestRequisition_Reject(t *testing.T) {
	requesterID := uuid.New()
	approver := uuid.New()

	t.Run("rejection with motif is terminal", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(20000))
		require.NoError(t, req.Reject(ApprovalLevelOne, approver, "Budget exceeded for this quarter"))

		assert.Equal(t, RequisitionStatusRejected, req.Status)
		assert.NotNil(t, req.RejectedAt)
		require.Len(t, req.Workflow.History, 1)
		assert.Equal(t, ApprovalDecisionRejected, req.Workflow.History[0].Decision)
		assert.Equal(t, "Budget exceeded for this quarter", req.Workflow.History[0].Comment)
	})

	t.Run("empty motif fails", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		err := req.Reject(ApprovalLevelOne, approver, "   ")
		assertDomainCode(t, err, "INVALID_INPUT")
		assert.Equal(t, RequisitionStatusInReview, req.Status)
	})

	t.Run("no further action after rejection", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		require.NoError(t, req.Reject(ApprovalLevelOne, approver, "wrong supplier"))

		err := req.Approve(ApprovalLevelOne, approver, "")
		assertDomainCode(t, err, "INVALID_STATE")
		err = req.Reject(ApprovalLevelOne, approver, "again")
		assertDomainCode(t, err, "INVALID_STATE")
	})

	t.Run("rejection mid-chain discards earlier approvals' effect", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(20000))
		require.NoError(t, req.Approve(ApprovalLevelOne, approver, ""))
		require.NoError(t, req.Reject(ApprovalLevelTwo, uuid.New(), "Price too high"))

		assert.Equal(t, RequisitionStatusRejected, req.Status)
		assert.Len(t, req.Workflow.History, 2)
	})
}

func TestRequisition_RequestClarification(t *testing.T) {
	requesterID := uuid.New()
	approver := uuid.New()

	t.Run("clarification records without advancing", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(20000))
		require.NoError(t, req.RequestClarification(ApprovalLevelOne, approver, "Which cost center covers this?"))

		assert.Equal(t, RequisitionStatusInReview, req.Status)
		assert.Equal(t, ApprovalLevelOne, req.PendingLevel())
		require.Len(t, req.Workflow.History, 1)
		assert.Equal(t, ApprovalDecisionClarificationRequested, req.Workflow.History[0].Decision)
	})

	t.Run("same level can still approve after clarification", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		require.NoError(t, req.RequestClarification(ApprovalLevelOne, approver, "Is this urgent?"))
		require.NoError(t, req.Approve(ApprovalLevelOne, approver, "answered offline"))

		assert.Equal(t, RequisitionStatusApproved, req.Status)
		assert.Len(t, req.Workflow.History, 2)
	})

	t.Run("empty questions fail", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		err := req.RequestClarification(ApprovalLevelOne, approver, "")
		assertDomainCode(t, err, "INVALID_INPUT")
	})

	t.Run("wrong level fails", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		err := req.RequestClarification(ApprovalLevelTwo, approver, "why?")
		assertDomainCode(t, err, "INVALID_STATE")
	})
}

func TestRequisition_Versioning(t *testing.T) {
	requesterID := uuid.New()

	t.Run("every mutation increments the version", func(t *testing.T) {
		req := newDraftRequisition(t, requesterID, decimal.Zero)
		v := req.GetVersion()

		_, err := req.AddLine(requesterID, "Laptop", decimal.NewFromInt(1), decimal.NewFromInt(1000), "")
		require.NoError(t, err)
		assert.Equal(t, v+1, req.GetVersion())

		require.NoError(t, req.Submit(NewApprovalPolicy()))
		assert.Equal(t, v+2, req.GetVersion())

		require.NoError(t, req.Approve(ApprovalLevelOne, uuid.New(), ""))
		assert.Equal(t, v+3, req.GetVersion())
	})

	t.Run("failed operations leave the version untouched", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		v := req.GetVersion()

		_ = req.Approve(ApprovalLevelTwo, uuid.New(), "")
		_ = req.Reject(ApprovalLevelOne, uuid.New(), "")
		assert.Equal(t, v, req.GetVersion())
	})
}

func TestNewPurchaseOrderFromRequisition(t *testing.T) {
	requesterID := uuid.New()
	approver := uuid.New()

	t.Run("order copies lines from approved requisition", func(t *testing.T) {
		req := newDraftRequisition(t, requesterID, decimal.Zero)
		_, err := req.AddLine(requesterID, "Laptop", decimal.NewFromInt(2), decimal.NewFromInt(1200), "")
		require.NoError(t, err)
		_, err = req.AddLine(requesterID, "Docking station", decimal.NewFromInt(2), decimal.NewFromInt(150), "")
		require.NoError(t, err)
		require.NoError(t, req.Submit(NewApprovalPolicy()))
		require.NoError(t, req.Approve(ApprovalLevelOne, approver, ""))

		po, err := NewPurchaseOrderFromRequisition(req, "PO-2026-00007")
		require.NoError(t, err)
		assert.Equal(t, req.ID, po.RequisitionID)
		assert.Equal(t, req.SupplierID, po.SupplierID)
		assert.True(t, po.TotalAmount.Equal(req.TotalAmount))
		require.Len(t, po.Lines, 2)
		assert.Equal(t, 1, po.Lines[0].LineNumber)
		assert.Equal(t, "Laptop", po.Lines[0].Designation)
		assert.Equal(t, PurchaseOrderStatusOpen, po.Status)
	})

	t.Run("unapproved requisition cannot produce an order", func(t *testing.T) {
		req := submitRequisition(t, requesterID, decimal.NewFromInt(300))
		_, err := NewPurchaseOrderFromRequisition(req, "PO-2026-00008")
		assertDomainCode(t, err, "INVALID_STATE")
	})
}
