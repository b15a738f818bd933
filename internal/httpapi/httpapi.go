package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
	"github.com/hozanderik1987-afk/myamara/internal/service"
	"github.com/hozanderik1987-afk/myamara/internal/store"
)

type API struct {
	service       *service.Service
	allowedOrigin string
	now           func() time.Time
}

func New(svc *service.Service, allowedOrigin string) *API {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
		now:           time.Now,
	}
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(a.withMiddleware)

	r.Get("/health", a.handleHealth)
	r.Get("/employees", a.handleListEmployees)
	r.Post("/employees", a.handleCreateEmployee)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Get("/employees", a.handleListEmployees)
		r.Post("/employees", a.handleCreateEmployee)

		r.Get("/customers", a.handleListCustomers)
		r.Post("/customers", a.handleCreateCustomer)
		r.Put("/customers/{id}", a.handleUpdateCustomer)
		r.Get("/customers/{id}/debt", a.handleCustomerDebt)

		r.Get("/items", a.handleListItems)
		r.Post("/items", a.handleCreateItem)
		r.Put("/items/{id}", a.handleUpdateItem)

		r.Get("/withdrawals", a.handleListWithdrawals)
		r.Post("/withdrawals", a.handleCreateWithdrawal)

		r.Get("/sales", a.handleListSales)
		r.Post("/sales", a.handleCreateSale)

		r.Get("/payments", a.handleListPayments)
		r.Post("/payments", a.handleCreatePayment)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/debts", a.handleDebtsReport)
			r.Get("/employees/{id}/activity", a.handleEmployeeActivity)
			r.Get("/inventory", a.handleInventoryReport)
			r.Get("/summary", a.handleSummaryReport)
			r.Get("/customers", a.handleCustomersReport)
			r.Get("/items", a.handleItemsReport)
			r.Get("/sales_by_employee", a.handleSalesByEmployee)
			r.Get("/monthly", a.handleMonthlyReport)
		})

		r.Get("/audit-logs", a.handleAuditLogs)

		r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "not_found"})
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
			writeMethodNotAllowed(w)
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": a.now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := a.service.ListEmployees(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req domain.EmployeeCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	employee, err := a.service.CreateEmployee(a.actorContext(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, employee)
}

func (a *API) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := a.service.ListCustomers(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (a *API) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.CreateCustomer(a.actorContext(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, customer)
}

func (a *API) handleUpdateCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.CustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	customer, err := a.service.UpdateCustomer(a.actorContext(r), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, customer)
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListItems(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req domain.ItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.CreateItem(a.actorContext(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req domain.ItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.UpdateItem(a.actorContext(r), id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := a.service.ListWithdrawals(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawals)
}

func (a *API) handleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req domain.WithdrawalCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	withdrawal, err := a.service.CreateWithdrawal(a.actorContext(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, withdrawal)
}

func (a *API) handleListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := a.service.ListSales(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (a *API) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sale, err := a.service.CreateSale(a.actorContext(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (a *API) handleListPayments(w http.ResponseWriter, r *http.Request) {
	saleID := parseInt64(r.URL.Query().Get("sale_id"), 0)
	payments, err := a.service.ListPayments(r.Context(), saleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (a *API) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payment, err := a.service.CreatePayment(a.actorContext(r), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

func (a *API) handleCustomerDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	debt, err := a.service.CustomerDebt(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

func (a *API) handleDebtsReport(w http.ResponseWriter, r *http.Request) {
	overdueDays := int(parseInt64(r.URL.Query().Get("overdue_days"), 0))
	rows, err := a.service.Debts(r.Context(), overdueDays)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleEmployeeActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	activity, err := a.service.EmployeeActivity(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activity)
}

func (a *API) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	inv, err := a.service.Inventory(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (a *API) handleSummaryReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := a.service.Summary(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleCustomersReport(w http.ResponseWriter, r *http.Request) {
	minDebt := decimal.Zero
	if raw := strings.TrimSpace(r.URL.Query().Get("min_debt")); raw != "" {
		if parsed, err := decimal.NewFromString(raw); err == nil {
			minDebt = parsed
		}
	}
	rows, err := a.service.Customers(r.Context(), minDebt)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleItemsReport(w http.ResponseWriter, r *http.Request) {
	rows, err := a.service.Items(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleSalesByEmployee(w http.ResponseWriter, r *http.Request) {
	from, to, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rows, err := a.service.SalesByEmployee(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	year := int(parseInt64(r.URL.Query().Get("year"), int64(a.now().UTC().Year())))
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))

	rows, err := a.service.Monthly(r.Context(), year)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	switch format {
	case "csv":
		payload, err := monthlyReportToCSV(year, rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"monthly-report-%d.csv\"", year))
		_, _ = w.Write(payload)
	case "xlsx":
		payload, err := monthlyReportToXLSX(year, rows)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"monthly-report-%d.xlsx\"", year))
		_, _ = w.Write(payload)
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(monthlyReportToPrintableHTML(year, rows)))
	default:
		writeJSON(w, http.StatusOK, rows)
	}
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	logs, err := a.service.ListAuditLogs(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (a *API) actorContext(r *http.Request) context.Context {
	return service.WithActor(r.Context(), clientKey(r))
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// decodeJSON accepts an empty body as an empty request. Unknown fields are
// ignored.
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, errors.New("invalid id"))
		return 0, false
	}
	return id, true
}

func parseRange(r *http.Request) (*domain.Date, *domain.Date, error) {
	from, err := parseOptionalDate(r.URL.Query().Get("from"))
	if err != nil {
		return nil, nil, err
	}
	to, err := parseOptionalDate(r.URL.Query().Get("to"))
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func parseOptionalDate(raw string) (*domain.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	day, err := domain.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// parseInt64 falls back when raw is empty or not an integer.
func parseInt64(raw string, fallback int64) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusConflict {
		err = errors.New("withdrawal already sold")
	}
	if status == http.StatusNotFound {
		err = errors.New("not found")
	}
	writeError(w, status, err)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies carry a generic message, the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
