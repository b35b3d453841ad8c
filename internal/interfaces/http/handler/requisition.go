package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	procurementapp "github.com/procure/backend/internal/application/procurement"
	"github.com/procure/backend/internal/domain/procurement"
	"github.com/procure/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// RequisitionHandler handles requisition and purchase order endpoints
type RequisitionHandler struct {
	BaseHandler
	requisitionService *procurementapp.RequisitionService
}

// NewRequisitionHandler creates a new RequisitionHandler
func NewRequisitionHandler(requisitionService *procurementapp.RequisitionService) *RequisitionHandler {
	return &RequisitionHandler{requisitionService: requisitionService}
}

// CreateRequisitionRequest is the request body for creating a requisition
type CreateRequisitionRequest struct {
	SupplierID   string                 `json:"supplier_id" binding:"required,uuid"`
	SupplierName string                 `json:"supplier_name" binding:"required,min=1,max=200"`
	Currency     string                 `json:"currency" binding:"omitempty,currency"`
	Lines        []RequisitionLineInput `json:"lines"`
}

// RequisitionLineInput is one line of the create request
type RequisitionLineInput struct {
	Designation string  `json:"designation" binding:"required,min=1,max=200"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" binding:"min=0"`
	SupplierRef string  `json:"supplier_ref" binding:"max=100"`
}

// AddRequisitionLineRequest is the request body for adding a line
type AddRequisitionLineRequest struct {
	Designation string  `json:"designation" binding:"required,min=1,max=200"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" binding:"min=0"`
	SupplierRef string  `json:"supplier_ref" binding:"max=100"`
}

// ApprovalActionRequest is the request body for approve, reject and
// clarification actions
type ApprovalActionRequest struct {
	Level   int    `json:"level" binding:"required,min=1,max=3"`
	Comment string `json:"comment" binding:"max=1000"`
}

// Create handles POST /procurement/requisitions
func (h *RequisitionHandler) Create(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	var req CreateRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		h.BadRequest(c, "Invalid supplier ID format")
		return
	}

	appReq := procurementapp.CreateRequisitionRequest{
		RequesterID:  userID,
		SupplierID:   supplierID,
		SupplierName: req.SupplierName,
		Currency:     req.Currency,
	}
	for _, line := range req.Lines {
		appReq.Lines = append(appReq.Lines, procurementapp.RequisitionLineRequest{
			Designation: line.Designation,
			Quantity:    decimal.NewFromFloat(line.Quantity),
			UnitPrice:   decimal.NewFromFloat(line.UnitPrice),
			SupplierRef: line.SupplierRef,
		})
	}

	requisition, err := h.requisitionService.Create(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, requisition)
}

// GetByID handles GET /procurement/requisitions/:id
func (h *RequisitionHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid requisition ID format")
		return
	}

	requisition, err := h.requisitionService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, requisition)
}

// GetByNumber handles GET /procurement/requisitions/number/:number
func (h *RequisitionHandler) GetByNumber(c *gin.Context) {
	number := c.Param("number")
	if number == "" {
		h.BadRequest(c, "Requisition number is required")
		return
	}

	requisition, err := h.requisitionService.GetByNumber(c.Request.Context(), number)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, requisition)
}

// List handles GET /procurement/requisitions
func (h *RequisitionHandler) List(c *gin.Context) {
	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := procurementapp.RequisitionListFilter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
		OrderBy:  listReq.OrderBy,
		OrderDir: listReq.OrderDir,
		Search:   listReq.Search,
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := procurement.RequisitionStatus(statusStr)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid status filter")
			return
		}
		filter.Status = &status
	}
	if requesterStr := c.Query("requester_id"); requesterStr != "" {
		requesterID, err := uuid.Parse(requesterStr)
		if err != nil {
			h.BadRequest(c, "Invalid requester ID format")
			return
		}
		filter.RequesterID = &requesterID
	}
	if supplierStr := c.Query("supplier_id"); supplierStr != "" {
		supplierID, err := uuid.Parse(supplierStr)
		if err != nil {
			h.BadRequest(c, "Invalid supplier ID format")
			return
		}
		filter.SupplierID = &supplierID
	}

	requisitions, total, err := h.requisitionService.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	page := filter.Page
	if page <= 0 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	h.SuccessWithMeta(c, requisitions, total, page, pageSize)
}

// AddLine handles POST /procurement/requisitions/:id/lines
func (h *RequisitionHandler) AddLine(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid requisition ID format")
		return
	}

	var req AddRequisitionLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	requisition, err := h.requisitionService.AddLine(c.Request.Context(), id, procurementapp.AddLineRequest{
		ActorID:     userID,
		Designation: req.Designation,
		Quantity:    decimal.NewFromFloat(req.Quantity),
		UnitPrice:   decimal.NewFromFloat(req.UnitPrice),
		SupplierRef: req.SupplierRef,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, requisition)
}

// RemoveLine handles DELETE /procurement/requisitions/:id/lines/:line_id
func (h *RequisitionHandler) RemoveLine(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid requisition ID format")
		return
	}
	lineID, err := uuid.Parse(c.Param("line_id"))
	if err != nil {
		h.BadRequest(c, "Invalid line ID format")
		return
	}

	requisition, err := h.requisitionService.RemoveLine(c.Request.Context(), id, lineID, userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, requisition)
}

// Submit handles POST /procurement/requisitions/:id/submit
func (h *RequisitionHandler) Submit(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid requisition ID format")
		return
	}

	requisition, err := h.requisitionService.Submit(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, requisition)
}

// Approve handles POST /procurement/requisitions/:id/approve
func (h *RequisitionHandler) Approve(c *gin.Context) {
	h.approvalAction(c, h.requisitionService.Approve)
}

// Reject handles POST /procurement/requisitions/:id/reject
func (h *RequisitionHandler) Reject(c *gin.Context) {
	h.approvalAction(c, h.requisitionService.Reject)
}

// RequestClarification handles POST /procurement/requisitions/:id/clarification
func (h *RequisitionHandler) RequestClarification(c *gin.Context) {
	h.approvalAction(c, h.requisitionService.RequestClarification)
}

// CreatePurchaseOrder handles POST /procurement/requisitions/:id/purchase-order
func (h *RequisitionHandler) CreatePurchaseOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid requisition ID format")
		return
	}

	order, err := h.requisitionService.CreatePurchaseOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, order)
}

// GetPurchaseOrder handles GET /procurement/purchase-orders/:id
func (h *RequisitionHandler) GetPurchaseOrder(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid order ID format")
		return
	}

	order, err := h.requisitionService.GetPurchaseOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, order)
}

// approvalAction is the shared plumbing of approve, reject and clarification
func (h *RequisitionHandler) approvalAction(
	c *gin.Context,
	action func(ctx context.Context, id uuid.UUID, req procurementapp.ApprovalActionRequest) (*procurementapp.RequisitionResponse, error),
) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid requisition ID format")
		return
	}

	var req ApprovalActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	requisition, err := action(c.Request.Context(), id, procurementapp.ApprovalActionRequest{
		Level:      procurement.ApprovalLevel(req.Level),
		ApproverID: userID,
		Comment:    req.Comment,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, requisition)
}
