package handler

import (
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BatchHandler payment submission batch endpoints
type BatchHandler struct {
	svc    *service.BatchService
	export *service.ExportService
	logger *zap.Logger
}

var batchFilters = []string{"status", "shipper_id", "created_by", "start_date", "end_date", "search", "sort"}

// List GET /batches
func (h *BatchHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, queryFilters(c, batchFilters...))
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	List(c, items, total, page, pageSize)
}

// Get GET /batches/:id
func (h *BatchHandler) Get(c *gin.Context) {
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

// Create POST /batches
func (h *BatchHandler) Create(c *gin.Context) {
	var req service.CreateBatchRequest
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

// AddSubmissions POST /batches/:id/submissions
func (h *BatchHandler) AddSubmissions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.MembersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.AddSubmissions(c.Request.Context(), GetActor(c), id, &req)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, b)
}

// RemoveSubmission DELETE /batches/:id/submissions/:submissionId
func (h *BatchHandler) RemoveSubmission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	submissionID, ok := paramID(c, "submissionId")
	if !ok {
		return
	}
	b, err := h.svc.RemoveSubmission(c.Request.Context(), GetActor(c), id, submissionID)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, b)
}

// UpdateStatus PUT /batches/:id/status
func (h *BatchHandler) UpdateStatus(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req service.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	b, err := h.svc.Advance(c.Request.Context(), GetActor(c), id, &req)
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, b)
}

// AllowedStatuses GET /batches/:id/allowed-statuses
func (h *BatchHandler) AllowedStatuses(c *gin.Context) {
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

// History GET /batches/:id/history
func (h *BatchHandler) History(c *gin.Context) {
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

// Export GET /batches/export
func (h *BatchHandler) Export(c *gin.Context) {
	exp, err := h.export.Batches(c.Request.Context(), queryFilters(c, batchFilters...))
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	writeExport(c, exp)
}
