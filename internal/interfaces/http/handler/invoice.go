package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	financeapp "github.com/procure/backend/internal/application/finance"
	"github.com/procure/backend/internal/domain/finance"
	"github.com/procure/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// InvoiceHandler handles invoice capture and three-way match endpoints
type InvoiceHandler struct {
	BaseHandler
	matchingService *financeapp.MatchingService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(matchingService *financeapp.MatchingService) *InvoiceHandler {
	return &InvoiceHandler{matchingService: matchingService}
}

// CaptureInvoiceRequest is the request body for capturing a supplier invoice
type CaptureInvoiceRequest struct {
	InvoiceNumber   string             `json:"invoice_number" binding:"required,min=1,max=50"`
	PurchaseOrderID string             `json:"purchase_order_id" binding:"required,uuid"`
	SupplierID      string             `json:"supplier_id" binding:"required,uuid"`
	SupplierName    string             `json:"supplier_name" binding:"required,min=1,max=200"`
	Currency        string             `json:"currency" binding:"omitempty,currency"`
	TotalAmount     float64            `json:"total_amount" binding:"min=0"`
	VATRate         float64            `json:"vat_rate" binding:"min=0,max=100"`
	InvoiceDate     *time.Time         `json:"invoice_date"`
	Lines           []InvoiceLineInput `json:"lines"`
}

// InvoiceLineInput is one invoiced line of the capture request
type InvoiceLineInput struct {
	LineNumber  int     `json:"line_number" binding:"required,min=1"`
	Designation string  `json:"designation" binding:"required,min=1,max=200"`
	Quantity    float64 `json:"quantity" binding:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price" binding:"min=0"`
}

// Capture handles POST /finance/invoices
func (h *InvoiceHandler) Capture(c *gin.Context) {
	var req CaptureInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	purchaseOrderID, err := uuid.Parse(req.PurchaseOrderID)
	if err != nil {
		h.BadRequest(c, "Invalid purchase order ID format")
		return
	}
	supplierID, err := uuid.Parse(req.SupplierID)
	if err != nil {
		h.BadRequest(c, "Invalid supplier ID format")
		return
	}

	appReq := financeapp.CaptureInvoiceRequest{
		InvoiceNumber:   req.InvoiceNumber,
		PurchaseOrderID: purchaseOrderID,
		SupplierID:      supplierID,
		SupplierName:    req.SupplierName,
		Currency:        req.Currency,
		TotalAmount:     decimal.NewFromFloat(req.TotalAmount),
		VATRate:         decimal.NewFromFloat(req.VATRate),
	}
	if req.Currency == "" {
		appReq.Currency = "EUR"
	}
	if req.InvoiceDate != nil {
		appReq.InvoiceDate = *req.InvoiceDate
	}
	for _, line := range req.Lines {
		appReq.Lines = append(appReq.Lines, financeapp.InvoiceLineRequest{
			LineNumber:  line.LineNumber,
			Designation: line.Designation,
			Quantity:    decimal.NewFromFloat(line.Quantity),
			UnitPrice:   decimal.NewFromFloat(line.UnitPrice),
		})
	}

	invoice, err := h.matchingService.CaptureInvoice(c.Request.Context(), appReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, invoice)
}

// GetByID handles GET /finance/invoices/:id
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	invoice, err := h.matchingService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, invoice)
}

// List handles GET /finance/invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := financeapp.InvoiceListFilter{
		Page:     listReq.Page,
		PageSize: listReq.PageSize,
		OrderBy:  listReq.OrderBy,
		OrderDir: listReq.OrderDir,
		Search:   listReq.Search,
	}
	if statusStr := c.Query("status"); statusStr != "" {
		status := finance.InvoiceStatus(statusStr)
		if !status.IsValid() {
			h.BadRequest(c, "Invalid status filter")
			return
		}
		filter.Status = &status
	}
	if supplierStr := c.Query("supplier_id"); supplierStr != "" {
		supplierID, err := uuid.Parse(supplierStr)
		if err != nil {
			h.BadRequest(c, "Invalid supplier ID format")
			return
		}
		filter.SupplierID = &supplierID
	}
	if orderStr := c.Query("purchase_order_id"); orderStr != "" {
		orderID, err := uuid.Parse(orderStr)
		if err != nil {
			h.BadRequest(c, "Invalid purchase order ID format")
			return
		}
		filter.PurchaseOrderID = &orderID
	}

	invoices, total, err := h.matchingService.ListInvoices(c.Request.Context(), filter)
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
	h.SuccessWithMeta(c, invoices, total, page, pageSize)
}

// RunMatch handles POST /finance/invoices/:id/match
func (h *InvoiceHandler) RunMatch(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	result, err := h.matchingService.RunMatch(c.Request.Context(), financeapp.RunMatchRequest{
		InvoiceID:   id,
		PerformedBy: userID,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// ListMatchResults handles GET /finance/invoices/:id/match-results
func (h *InvoiceHandler) ListMatchResults(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	results, err := h.matchingService.ListMatchResults(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, results)
}

// GetMatchResult handles GET /finance/match-results/:id
func (h *InvoiceHandler) GetMatchResult(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid match result ID format")
		return
	}

	result, err := h.matchingService.GetMatchResult(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
