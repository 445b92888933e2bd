package handler

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/entity"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/gateway"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/repository"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/service"
	"github.com/KieuLinh0701/Logistics-System-sub003/internal/recon/testutil"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const testHashSecret = "test-hash-secret"

func setupReconTest(t *testing.T) (*gin.Engine, *gorm.DB, *gateway.Client) {
	t.Helper()
	db := testutil.SetupTestDB(t)

	gw := gateway.NewClient(gateway.Config{
		TmnCode:    "LOGI0001",
		HashSecret: testHashSecret,
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "https://admin.example.com/return",
	})
	svc := service.NewServices(service.Deps{
		Repos:   repository.NewRepositories(db),
		Gateway: gw,
	})
	h := NewHandlers(svc, nil, nil)

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	RegisterRoutes(api, h)
	RegisterGatewayRoutes(router.Group("/api/v1"), h)
	return router, db, gw
}

func dataOf(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("response has no data object: %v", resp)
	}
	return data
}

func TestSubmissionEndpoints(t *testing.T) {
	router, db, _ := setupReconTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(router, "POST", "/api/v1/recon/submissions", map[string]interface{}{
		"order_id":      5001,
		"shipper_id":    9,
		"system_amount": "150000",
		"actual_amount": "140000",
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", w.Code, w.Body.String())
	}
	sub := dataOf(t, testutil.ParseResponse(w))
	id := uint64(sub["id"].(float64))
	if sub["status"] != entity.SubmissionStatusPending || sub["mismatched"] != true {
		t.Fatalf("unexpected submission: %v", sub)
	}

	w = testutil.DoRequest(router, "POST", "/api/v1/recon/submissions", map[string]interface{}{
		"order_id": 5001, "shipper_id": 9, "system_amount": "1", "actual_amount": "1",
	}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate order: status %d body %s", w.Code, w.Body.String())
	}

	// MATCHED is not reachable from PENDING
	w = testutil.DoRequest(router, "PUT", fmt.Sprintf("/api/v1/recon/submissions/%d/status", id),
		map[string]interface{}{"status": "MATCHED"}, token)
	resp := testutil.ParseResponse(w)
	if w.Code != http.StatusBadRequest || resp["code"].(float64) != 40010 {
		t.Fatalf("invalid transition: status %d body %s", w.Code, w.Body.String())
	}

	batch := testutil.SeedBatch(t, db, "PSB-TEST-0001", 9, entity.BatchStatusPending)
	w = testutil.DoRequest(router, "PUT", fmt.Sprintf("/api/v1/recon/submissions/%d/status", id),
		map[string]interface{}{"status": "IN_BATCH", "batch_id": batch.ID}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("join batch: status %d body %s", w.Code, w.Body.String())
	}

	// amounts differ, so MATCHED conflicts
	w = testutil.DoRequest(router, "PUT", fmt.Sprintf("/api/v1/recon/submissions/%d/status", id),
		map[string]interface{}{"status": "MATCHED"}, token)
	resp = testutil.ParseResponse(w)
	if resp["code"].(float64) != 40012 {
		t.Fatalf("amount conflict: body %s", w.Body.String())
	}

	w = testutil.DoRequest(router, "PUT", fmt.Sprintf("/api/v1/recon/submissions/%d/status", id),
		map[string]interface{}{"status": "MISMATCHED", "version": 1}, token)
	resp = testutil.ParseResponse(w)
	if resp["code"].(float64) != 40900 {
		t.Fatalf("stale version: body %s", w.Body.String())
	}

	w = testutil.DoRequest(router, "GET", fmt.Sprintf("/api/v1/recon/submissions/%d/allowed-statuses", id), nil, token)
	statuses := dataOf(t, testutil.ParseResponse(w))["statuses"].([]interface{})
	if len(statuses) != 2 {
		t.Fatalf("allowed statuses from IN_BATCH: %v", statuses)
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/recon/submissions?status=IN_BATCH&mismatched=true", nil, token)
	list := dataOf(t, testutil.ParseResponse(w))
	if list["pagination"].(map[string]interface{})["total"].(float64) != 1 {
		t.Fatalf("filtered list: %v", list)
	}

	w = testutil.DoRequest(router, "GET", fmt.Sprintf("/api/v1/recon/submissions/%d/history", id), nil, token)
	history := dataOf(t, testutil.ParseResponse(w))["items"].([]interface{})
	if len(history) < 2 {
		t.Fatalf("expected create and join entries, got %d", len(history))
	}
}

func TestReconPermissions(t *testing.T) {
	router, _, _ := setupReconTest(t)
	viewer := testutil.GenerateTestToken("viewer-001", "Viewer", "viewer@test.com", nil, []string{PermView})

	w := testutil.DoRequest(router, "GET", "/api/v1/recon/batches", nil, viewer)
	if w.Code != http.StatusOK {
		t.Fatalf("viewer list: status %d", w.Code)
	}
	w = testutil.DoRequest(router, "POST", "/api/v1/recon/batches", map[string]interface{}{"shipper_id": 1}, viewer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer create: status %d, want 403", w.Code)
	}
	w = testutil.DoRequest(router, "GET", "/api/v1/recon/batches", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: status %d, want 401", w.Code)
	}
}

func TestExportHeaders(t *testing.T) {
	router, db, _ := setupReconTest(t)
	token := testutil.DefaultTestToken()
	testutil.SeedSubmission(t, db, 7001, 3, 100000, 100000, entity.SubmissionStatusPending, nil)

	w := testutil.DoRequest(router, "GET", "/api/v1/recon/submissions/export", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("export: status %d body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != spreadsheetType {
		t.Fatalf("content type %q", ct)
	}
	cd := w.Header().Get("Content-Disposition")
	if !strings.Contains(cd, `filename="payment_submissions_export.xlsx"`) ||
		!strings.Contains(cd, "filename*=UTF-8''payment_submissions_export.xlsx") {
		t.Fatalf("content disposition %q", cd)
	}
	// xlsx is a zip container
	if !strings.HasPrefix(w.Body.String(), "PK") {
		t.Fatalf("body is not an xlsx archive")
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/recon/settlements/export?filename="+url.QueryEscape("Quyết toán"), nil, token)
	cd = w.Header().Get("Content-Disposition")
	if !strings.Contains(cd, `filename="Quyet toan.xlsx"`) {
		t.Fatalf("custom filename %q", cd)
	}
}

func TestGatewayIPN(t *testing.T) {
	router, db, gw := setupReconTest(t)
	token := testutil.DefaultTestToken()
	stl := testutil.SeedSettlement(t, db, "STL-TEST-0001", 12, -500000, 500000, entity.SettlementStatusPending)

	w := testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/recon/settlements/%d/payments", stl.ID),
		map[string]interface{}{"amount": "200000"}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("initiate: status %d body %s", w.Code, w.Body.String())
	}
	intent := dataOf(t, testutil.ParseResponse(w))
	txnRef := intent["txn_ref"].(string)
	if !strings.HasPrefix(intent["payment_url"].(string), "https://sandbox.vnpayment.vn/") {
		t.Fatalf("payment url %v", intent["payment_url"])
	}

	w = testutil.DoRequest(router, "POST", fmt.Sprintf("/api/v1/recon/settlements/%d/payments", stl.ID),
		map[string]interface{}{"amount": "600000"}, token)
	if testutil.ParseResponse(w)["code"].(float64) != 40014 {
		t.Fatalf("overpay: body %s", w.Body.String())
	}

	params := url.Values{}
	params.Set("vnp_TmnCode", "LOGI0001")
	params.Set("vnp_TxnRef", txnRef)
	params.Set("vnp_Amount", gateway.ToMinorUnits(decimal.NewFromInt(200000)))
	params.Set("vnp_ResponseCode", "00")
	params.Set("vnp_TransactionStatus", "00")
	params.Set("vnp_TransactionNo", "14012345")
	params.Set("vnp_BankCode", "NCB")
	signed := gw.Sign(params)
	ipn := "/api/v1/payments/gateway/ipn?" + signed.Encode()

	expect := func(path, code string) {
		t.Helper()
		w := testutil.DoRequest(router, "GET", path, nil, "")
		if w.Code != http.StatusOK {
			t.Fatalf("ipn status %d", w.Code)
		}
		if got := testutil.ParseResponse(w)["RspCode"]; got != code {
			t.Fatalf("RspCode %v, want %s (body %s)", got, code, w.Body.String())
		}
	}
	expect(ipn, "00")
	expect(ipn, "02")

	tampered := gw.Sign(params)
	tampered.Set("vnp_Amount", gateway.ToMinorUnits(decimal.NewFromInt(500000)))
	expect("/api/v1/payments/gateway/ipn?"+tampered.Encode(), "97")

	unknown := url.Values{}
	for k, v := range params {
		unknown[k] = v
	}
	unknown.Set("vnp_TxnRef", "doesnotexist")
	expect("/api/v1/payments/gateway/ipn?"+gw.Sign(unknown).Encode(), "01")

	w = testutil.DoRequest(router, "GET", fmt.Sprintf("/api/v1/recon/settlements/%d", stl.ID), nil, token)
	got := dataOf(t, testutil.ParseResponse(w))
	if got["status"] != entity.SettlementStatusPartial || got["remain_amount"] != "300000" {
		t.Fatalf("settlement after payment: %v", got)
	}

	w = testutil.DoRequest(router, "GET", "/api/v1/payments/gateway/return?"+signed.Encode(), nil, "")
	ret := dataOf(t, testutil.ParseResponse(w))
	if ret["payment_status"] != entity.PaymentStatusApplied || ret["succeeded"] != true {
		t.Fatalf("return lookup: %v", ret)
	}
}
