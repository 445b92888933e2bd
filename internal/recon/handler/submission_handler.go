package handler

import (
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SubmissionHandler payment submission endpoints
type SubmissionHandler struct {
	svc    *service.SubmissionService
	export *service.ExportService
	logger *zap.Logger
}

var submissionFilters = []string{"status", "shipper_id", "batch_id", "order_id", "mismatched", "start_date", "end_date", "search", "sort"}

// List GET /submissions
func (h *SubmissionHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, queryFilters(c, submissionFilters...))
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	List(c, items, total, page, pageSize)
}

// Get GET /submissions/:id
func (h *SubmissionHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sub, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, sub)
}

// Create POST /submissions
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req service.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sub, err := h.svc.Create(c.Request.Context(), GetActor(c), &req)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Created(c, sub)
}

// UpdateStatus PUT /submissions/:id/status
func (h *SubmissionHandler) UpdateStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	sub, err := h.svc.Advance(c.Request.Context(), GetActor(c), id, &req)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, sub)
}

// AllowedStatuses GET /submissions/:id/allowed-statuses
func (h *SubmissionHandler) AllowedStatuses(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	statuses, err := h.svc.AllowedStatuses(c.Request.Context(), id)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, gin.H{"statuses": statuses})
}

// History GET /submissions/:id/history
func (h *SubmissionHandler) History(c *gin.Context) {
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

// Export GET /submissions/export
func (h *SubmissionHandler) Export(c *gin.Context) {
	exp, err := h.export.Submissions(c.Request.Context(), queryFilters(c, submissionFilters...))
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	writeExport(c, exp)
}
