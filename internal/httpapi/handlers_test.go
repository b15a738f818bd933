package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hozanderik1987-afk/myamara/internal/cache"
	"github.com/hozanderik1987-afk/myamara/internal/report"
	"github.com/hozanderik1987-afk/myamara/internal/service"
	"github.com/hozanderik1987-afk/myamara/internal/store/memory"
)

// newTestAPI builds a full API over an in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, report.NewEngine(nil), cache.NoopReportCache{}, time.Second)
	return New(svc, "*")
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	for _, path := range []string{"/health", "/api/health"} {
		rec := doJSON(t, handler, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}

		var body map[string]any
		decodeBody(t, rec, &body)
		if body["ok"] != true {
			t.Fatalf("%s: expected ok:true, got %v", path, body["ok"])
		}
	}
}

func TestUnknownAPIPathReturnsNotFoundJSON(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "not_found" {
		t.Fatalf("expected not_found, got %q", body["error"])
	}
}

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/health", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected allow origin *, got %q", got)
	}
}

func TestCreateEmployeeRequiresName(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/employees", map[string]any{"name": "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "name required" {
		t.Fatalf("expected name required, got %q", body["error"])
	}
}

func TestSaleFlowAndReports(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/customers", map[string]any{"name": "Layla", "phone": "0100"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create customer: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/items", map[string]any{"name": "Ring", "buyPrice": "100", "sellPrice": 150})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d", rec.Code)
	}
	var item struct {
		ID       int64   `json:"id"`
		BuyPrice float64 `json:"buyPrice"`
	}
	decodeBody(t, rec, &item)
	if item.BuyPrice != 100 {
		t.Fatalf("expected numeric buyPrice 100, got %v", item.BuyPrice)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/withdrawals", map[string]any{
		"itemId":       item.ID,
		"customerId":   1,
		"buyPrice":     100,
		"withdrawDate": "2024-03-01",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create withdrawal: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{
		"withdrawalId": 1,
		"sellPrice":    150,
		"saleDate":     "2024-03-02",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/sales", map[string]any{"withdrawalId": 1, "customerId": 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second sale: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/payments", map[string]any{"saleId": 1, "amount": 60, "paymentDate": "2024-03-10"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create payment: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/customers/1/debt", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("customer debt: expected 200, got %d", rec.Code)
	}
	var debt struct {
		TotalRemaining float64 `json:"totalRemaining"`
		Details        []struct {
			Paid float64 `json:"paid"`
		} `json:"details"`
	}
	decodeBody(t, rec, &debt)
	if debt.TotalRemaining != 90 || len(debt.Details) != 1 || debt.Details[0].Paid != 60 {
		t.Fatalf("unexpected debt %+v", debt)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/reports/inventory", nil)
	var inv struct {
		Sold           int     `json:"sold"`
		Unsold         int     `json:"unsold"`
		ExpectedProfit float64 `json:"expectedProfit"`
	}
	decodeBody(t, rec, &inv)
	if inv.Sold != 1 || inv.Unsold != 0 || inv.ExpectedProfit != 50 {
		t.Fatalf("unexpected inventory %+v", inv)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/reports/summary?from=2024-03-01&to=2024-03-31", nil)
	var sum struct {
		TotalSalesRevenue float64 `json:"totalSalesRevenue"`
		TotalPayments     float64 `json:"totalPayments"`
		Outstanding       float64 `json:"outstanding"`
	}
	decodeBody(t, rec, &sum)
	if sum.TotalSalesRevenue != 150 || sum.TotalPayments != 60 || sum.Outstanding != 90 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/payments?sale_id=1", nil)
	var payments []map[string]any
	decodeBody(t, rec, &payments)
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment for sale 1, got %d", len(payments))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/withdrawals?status=unsold", nil)
	var unsold []map[string]any
	decodeBody(t, rec, &unsold)
	if len(unsold) != 0 {
		t.Fatalf("expected no unsold withdrawals, got %d", len(unsold))
	}
}

func TestSummaryRejectsBadDate(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/reports/summary?from=yesterday", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateMissingCustomerReturns404(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPut, "/api/customers/42", map[string]any{"name": "X"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMonthlyReportCSV(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/reports/monthly?year=2024&format=csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 13 {
		t.Fatalf("expected header + 12 rows, got %d lines", len(lines))
	}
	if lines[1] != "2024,1,0,0,0,0" {
		t.Fatalf("unexpected january row %q", lines[1])
	}
}

func TestMonthlyReportXLSX(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/reports/monthly?year=2024&format=xlsx", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	t.Cleanup(func() {
		_ = book.Close()
	})
	rows, err := book.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 13 {
		t.Fatalf("expected header + 12 rows, got %d", len(rows))
	}
	if rows[0][0] != "year" || rows[12][1] != "12" {
		t.Fatalf("unexpected sheet content %v / %v", rows[0], rows[12])
	}
}

func TestMonthlyReportDefaultsToJSON(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/reports/monthly?year=oops", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var rows []map[string]any
	decodeBody(t, rec, &rows)
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}
}

func TestAuditLogsRecordClient(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/items", map[string]any{"name": "Ring"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create item: expected 201, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/audit-logs?limit=5", nil)
	var body struct {
		Logs []struct {
			Actor  string `json:"actor"`
			Action string `json:"action"`
		} `json:"logs"`
	}
	decodeBody(t, rec, &body)
	if len(body.Logs) != 1 || body.Logs[0].Action != "item_create" {
		t.Fatalf("unexpected audit logs %+v", body.Logs)
	}
	if body.Logs[0].Actor != "192.0.2.1" {
		t.Fatalf("expected httptest client address, got %q", body.Logs[0].Actor)
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 100, 500); got != 500 {
		t.Fatalf("expected cap 500, got %d", got)
	}
	if got := parsePositiveLimit("-3", 100, 500); got != 100 {
		t.Fatalf("expected fallback 100, got %d", got)
	}
}
