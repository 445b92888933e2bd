package handler

import (
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/middleware"
	"github.com/gin-gonic/gin"
)

// Permissions
const (
	PermView   = "recon:view"
	PermManage = "recon:manage"
	PermPay    = "settlement:pay"
)

// RegisterRoutes mounts the authenticated reconciliation API under api
// (normally /api/v1 behind JWTAuth).
func RegisterRoutes(api *gin.RouterGroup, h *Handlers) {
	view := middleware.RequirePermission(PermView)
	manage := middleware.RequirePermission(PermManage)
	pay := middleware.RequirePermission(PermPay)

	recon := api.Group("/recon")
	{
		submissions := recon.Group("/submissions")
		submissions.GET("", view, h.Submission.List)
		submissions.GET("/export", view, h.Submission.Export)
		submissions.POST("", manage, h.Submission.Create)
		submissions.GET("/:id", view, h.Submission.Get)
		submissions.PUT("/:id/status", manage, h.Submission.UpdateStatus)
		submissions.GET("/:id/allowed-statuses", view, h.Submission.AllowedStatuses)
		submissions.GET("/:id/history", view, h.Submission.History)

		batches := recon.Group("/batches")
		batches.GET("", view, h.Batch.List)
		batches.GET("/export", view, h.Batch.Export)
		batches.POST("", manage, h.Batch.Create)
		batches.GET("/:id", view, h.Batch.Get)
		batches.POST("/:id/submissions", manage, h.Batch.AddSubmissions)
		batches.DELETE("/:id/submissions/:submissionId", manage, h.Batch.RemoveSubmission)
		batches.PUT("/:id/status", manage, h.Batch.UpdateStatus)
		batches.GET("/:id/allowed-statuses", view, h.Batch.AllowedStatuses)
		batches.GET("/:id/history", view, h.Batch.History)

		settlements := recon.Group("/settlements")
		settlements.GET("", view, h.Settlement.List)
		settlements.GET("/export", view, h.Settlement.Export)
		settlements.POST("", manage, middleware.RequireRole(middleware.SchedulerRole), h.Settlement.Create)
		settlements.GET("/:id", view, h.Settlement.Get)
		settlements.POST("/:id/payments", pay, h.Settlement.InitiatePayment)
		settlements.GET("/:id/payments", view, h.Settlement.ListPayments)
		settlements.GET("/:id/history", view, h.Settlement.History)

		if h.SSE != nil {
			recon.GET("/events", view, h.SSE.Stream)
		}
	}
}

// RegisterGatewayRoutes mounts the unauthenticated gateway callbacks.
func RegisterGatewayRoutes(api *gin.RouterGroup, h *Handlers) {
	gw := api.Group("/payments/gateway")
	gw.GET("/ipn", h.Gateway.IPN)
	gw.GET("/return", h.Gateway.Return)
}
