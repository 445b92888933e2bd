package handler

import (
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SettlementHandler settlement batch endpoints
type SettlementHandler struct {
	svc    *service.SettlementService
	export *service.ExportService
	logger *zap.Logger
}

var settlementFilters = []string{"status", "shop_id", "direction", "start_date", "end_date", "search", "sort"}

// List GET /settlements
func (h *SettlementHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, queryFilters(c, settlementFilters...))
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	List(c, items, total, page, pageSize)
}

// Get GET /settlements/:id
func (h *SettlementHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	b, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, b)
}

// Create POST /settlements
func (h *SettlementHandler) Create(c *gin.Context) {
	var req service.CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.Create(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Created(c, b)
}

// InitiatePayment POST /settlements/:id/payments
func (h *SettlementHandler) InitiatePayment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.ClientIP = c.ClientIP()
	intent, err := h.svc.InitiatePayment(c.Request.Context(), GetActor(c), id, &req)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Created(c, intent)
}

// ListPayments GET /settlements/:id/payments
func (h *SettlementHandler) ListPayments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	items, err := h.svc.ListPayments(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, items)
}

// History GET /settlements/:id/history
func (h *SettlementHandler) History(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.History(c.Request.Context(), id, page, pageSize)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	List(c, items, total, page, pageSize)
}

// Export GET /settlements/export
func (h *SettlementHandler) Export(c *gin.Context) {
	exp, err := h.export.Settlements(c.Request.Context(), queryFilters(c, settlementFilters...))
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	writeExport(c, exp)
}
