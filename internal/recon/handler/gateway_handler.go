package handler

import (
	"net/http"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/service"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/workflow"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GatewayHandler server-to-server payment notifications; the signature is the
// authentication, so these routes sit outside JWT.
type GatewayHandler struct {
	svc    *service.SettlementService
	logger *zap.Logger
}

// IPNResponse acknowledgement format expected by the gateway
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// IPN GET /payments/gateway/ipn
// The gateway retries anything other than 00 and 02.
func (h *GatewayHandler) IPN(c *gin.Context) {
	res, err := h.svc.ConfirmPayment(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		c.JSON(http.StatusOK, ipnError(h.logger, err))
		return
	}
	if res.Duplicate() {
		c.JSON(http.StatusOK, IPNResponse{RspCode: "02", Message: "Order already confirmed"})
		return
	}
	c.JSON(http.StatusOK, IPNResponse{RspCode: "00", Message: "Confirm Success"})
}

func ipnError(logger *zap.Logger, err error) IPNResponse {
	switch workflow.KindOf(err) {
	case workflow.KindUnknownTransaction:
		return IPNResponse{RspCode: "01", Message: "Order not found"}
	case workflow.KindSignatureMismatch:
		return IPNResponse{RspCode: "97", Message: "Invalid signature"}
	case workflow.KindInvalidAmount:
		return IPNResponse{RspCode: "04", Message: "Invalid amount"}
	case workflow.KindDuplicateConfirmation:
		return IPNResponse{RspCode: "02", Message: "Order already confirmed"}
	}
	logger.Error("ipn processing failed", zap.Error(err))
	return IPNResponse{RspCode: "99", Message: "Unknown error"}
}

// Return GET /payments/gateway/return
// Browser redirect after payment; only reports, the IPN applies money.
func (h *GatewayHandler) Return(c *gin.Context) {
	info, err := h.svc.LookupReturn(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		HandleError(c, h.logger, err)
		return
	}
	Success(c, info)
}
