package handler

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/middleware"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/gateway"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/service"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/testutil"
	"github.com/gin-gonic/gin"
)

// setupRoutesOnly mounts every route over services without a database; only
// paths that are rejected before storage access may be exercised.
func setupRoutesOnly(t *testing.T) (*gin.Engine, *gateway.Client) {
	t.Helper()
	gw := gateway.NewClient(gateway.Config{
		TmnCode:    "LOGI0001",
		HashSecret: testHashSecret,
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
	})
	h := NewHandlers(service.NewServices(service.Deps{Gateway: gw}), nil, nil)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	RegisterRoutes(api, h)
	RegisterGatewayRoutes(router.Group("/api/v1"), h)
	return router, gw
}

func TestSettlementCreateRequiresSchedulerRole(t *testing.T) {
	router, _ := setupRoutesOnly(t)

	manager := testutil.GenerateTestToken("manager-002", "Manager", "m@test.com",
		[]string{"recon_manager"}, []string{"*"})
	w := testutil.DoRequest(router, "POST", "/api/v1/recon/settlements", map[string]interface{}{}, manager)
	if w.Code != http.StatusForbidden {
		t.Fatalf("manager without scheduler role: status %d, want 403", w.Code)
	}
	if code := testutil.ParseResponse(w)["code"]; code != float64(40312) {
		t.Fatalf("code %v, want 40312", code)
	}

	// past the guard the empty body fails binding, before any storage access
	scheduler := testutil.GenerateTestToken("scheduler", "Settlement Scheduler", "",
		[]string{middleware.SchedulerRole}, []string{PermManage})
	w = testutil.DoRequest(router, "POST", "/api/v1/recon/settlements", map[string]interface{}{}, scheduler)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("scheduler: status %d, want 400 (body %s)", w.Code, w.Body.String())
	}

	admin := testutil.DefaultTestToken()
	w = testutil.DoRequest(router, "POST", "/api/v1/recon/settlements", map[string]interface{}{}, admin)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("admin: status %d, want 400", w.Code)
	}
}

func TestGatewayCallbacks_RejectUnsigned(t *testing.T) {
	router, gw := setupRoutesOnly(t)

	params := url.Values{}
	params.Set("vnp_TxnRef", "abc123")
	params.Set("vnp_Amount", "20000000")
	params.Set("vnp_ResponseCode", "00")
	params.Set("vnp_TransactionStatus", "00")

	w := testutil.DoRequest(router, "GET", "/api/v1/payments/gateway/ipn?"+params.Encode(), nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("ipn must always answer 200, got %d", w.Code)
	}
	if rsp := testutil.ParseResponse(w)["RspCode"]; rsp != "97" {
		t.Fatalf("unsigned ipn: RspCode %v, want 97", rsp)
	}

	forged := gw.Sign(params)
	forged.Set("vnp_ResponseCode", "24")
	w = testutil.DoRequest(router, "GET", "/api/v1/payments/gateway/ipn?"+forged.Encode(), nil, "")
	if rsp := testutil.ParseResponse(w)["RspCode"]; rsp != "97" {
		t.Fatalf("tampered ipn: RspCode %v, want 97", rsp)
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/payments/gateway/return?"+params.Encode(), nil, "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unsigned return: status %d, want 400", w.Code)
	}
	if code := testutil.ParseResponse(w)["code"]; code != float64(40015) {
		t.Fatalf("unsigned return: code %v, want 40015", code)
	}
}

func TestReconRoutes_RejectBadIDs(t *testing.T) {
	router, _ := setupRoutesOnly(t)
	token := testutil.DefaultTestToken()

	for _, path := range []string{
		"/api/v1/recon/submissions/abc",
		"/api/v1/recon/batches/0",
		"/api/v1/recon/settlements/-1/payments",
	} {
		w := testutil.DoRequest(router, "GET", path, nil, token)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", path, w.Code)
		}
	}

	w := testutil.DoRequest(router, "PUT", "/api/v1/recon/submissions/5/status", map[string]interface{}{}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing status: %d, want 400", w.Code)
	}
}
