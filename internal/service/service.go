package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hozanderik1987-afk/myamara/internal/cache"
	"github.com/hozanderik1987-afk/myamara/internal/domain"
	"github.com/hozanderik1987-afk/myamara/internal/report"
	"github.com/hozanderik1987-afk/myamara/internal/store"
	"github.com/hozanderik1987-afk/myamara/internal/xid"
)

type actorContextKey struct{}

// WithActor tags ctx with the caller recorded in the audit trail.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(string)
	return actor, ok && actor != ""
}

// ValidationError reports a rejected request field. It matches
// store.ErrInvalidRecord under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return store.ErrInvalidRecord
}

func invalid(field string, message string) error {
	return &ValidationError{Field: field, Message: message}
}

type Service struct {
	repo     store.Repository
	engine   *report.Engine
	cache    cache.ReportCache
	cacheTTL time.Duration
	now      func() time.Time
}

func New(repo store.Repository, engine *report.Engine, reportCache cache.ReportCache, cacheTTL time.Duration) *Service {
	if engine == nil {
		engine = report.NewEngine(nil)
	}
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 20 * time.Second
	}

	return &Service{
		repo:     repo,
		engine:   engine,
		cache:    reportCache,
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

func (s *Service) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return s.repo.ListEmployees(ctx)
}

func (s *Service) CreateEmployee(ctx context.Context, req domain.EmployeeCreateRequest) (domain.Employee, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Employee{}, invalid("name", "name required")
	}

	created, err := s.repo.CreateEmployee(ctx, domain.Employee{Name: name})
	if err != nil {
		return domain.Employee{}, err
	}

	s.afterWrite(ctx, "employee_create", "employee", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	created, err := s.repo.CreateCustomer(ctx, customerFromRequest(req))
	if err != nil {
		return domain.Customer{}, err
	}

	s.afterWrite(ctx, "customer_create", "customer", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerRequest) (domain.Customer, error) {
	if id < 1 {
		return domain.Customer{}, store.ErrNotFound
	}
	customer := customerFromRequest(req)
	customer.ID = id

	saved, err := s.repo.UpdateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}

	s.afterWrite(ctx, "customer_update", "customer", saved.ID, "name="+saved.Name)
	return *saved, nil
}

func customerFromRequest(req domain.CustomerRequest) domain.Customer {
	return domain.Customer{
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemRequest) (domain.Item, error) {
	created, err := s.repo.CreateItem(ctx, itemFromRequest(req))
	if err != nil {
		return domain.Item{}, err
	}

	s.afterWrite(ctx, "item_create", "item", created.ID, fmt.Sprintf("name=%s,buy=%s,sell=%s", created.Name, created.BuyPrice, created.SellPrice))
	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, id int64, req domain.ItemRequest) (domain.Item, error) {
	if id < 1 {
		return domain.Item{}, store.ErrNotFound
	}
	item := itemFromRequest(req)
	item.ID = id

	saved, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}

	s.afterWrite(ctx, "item_update", "item", saved.ID, fmt.Sprintf("name=%s,buy=%s,sell=%s", saved.Name, saved.BuyPrice, saved.SellPrice))
	return *saved, nil
}

func itemFromRequest(req domain.ItemRequest) domain.Item {
	return domain.Item{
		Name:      strings.TrimSpace(req.Name),
		BuyPrice:  req.BuyPrice.Decimal,
		SellPrice: req.SellPrice.Decimal,
	}
}

func (s *Service) ListWithdrawals(ctx context.Context, status string) ([]domain.Withdrawal, error) {
	return s.repo.ListWithdrawals(ctx, domain.WithdrawalStatus(strings.TrimSpace(status)))
}

func (s *Service) CreateWithdrawal(ctx context.Context, req domain.WithdrawalCreateRequest) (domain.Withdrawal, error) {
	employeeID, err := s.resolveEmployee(ctx, int64(req.EmployeeID))
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if employeeID == 0 {
		return domain.Withdrawal{}, invalid("employeeId", "invalid employeeId")
	}

	item, err := s.lookupItem(ctx, int64(req.ItemID))
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if item == nil {
		return domain.Withdrawal{}, invalid("itemId", "invalid itemId")
	}

	var customerID *int64
	if req.CustomerID > 0 {
		customer, err := s.lookupCustomer(ctx, int64(req.CustomerID))
		if err != nil {
			return domain.Withdrawal{}, err
		}
		if customer != nil {
			customerID = &customer.ID
		}
	}

	withdrawDate, err := s.dateOrToday("withdrawDate", req.WithdrawDate)
	if err != nil {
		return domain.Withdrawal{}, err
	}

	status := domain.WithdrawalUnsold
	if strings.TrimSpace(req.Status) == string(domain.WithdrawalSold) {
		status = domain.WithdrawalSold
	}

	created, err := s.repo.CreateWithdrawal(ctx, domain.Withdrawal{
		EmployeeID:        employeeID,
		ItemID:            item.ID,
		CustomerID:        customerID,
		WithdrawDate:      withdrawDate,
		BuyPrice:          req.BuyPrice.Decimal,
		SupplierInvoiceNo: optionalString(req.SupplierInvoiceNo),
		Status:            status,
		Notes:             optionalString(req.Notes),
	})
	if errors.Is(err, store.ErrInvalidRecord) {
		return domain.Withdrawal{}, invalid("itemId", "invalid itemId")
	}
	if err != nil {
		return domain.Withdrawal{}, err
	}

	s.afterWrite(ctx, "withdrawal_create", "withdrawal", created.ID, fmt.Sprintf("item=%d,employee=%d,status=%s", created.ItemID, created.EmployeeID, created.Status))
	return *created, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

// CreateSale closes an unsold withdrawal. The customer defaults to the one
// recorded on the withdrawal.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	withdrawal, err := s.repo.GetWithdrawal(ctx, int64(req.WithdrawalID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Sale{}, invalid("withdrawalId", "invalid withdrawalId")
	}
	if err != nil {
		return domain.Sale{}, err
	}
	if withdrawal.Status == domain.WithdrawalSold {
		return domain.Sale{}, fmt.Errorf("withdrawal %d already sold: %w", withdrawal.ID, store.ErrConflict)
	}

	customerID := int64(req.CustomerID)
	if customerID == 0 && withdrawal.CustomerID != nil {
		customerID = *withdrawal.CustomerID
	}
	if customerID == 0 {
		return domain.Sale{}, invalid("customerId", "customerId required")
	}
	customer, err := s.lookupCustomer(ctx, customerID)
	if err != nil {
		return domain.Sale{}, err
	}
	if customer == nil {
		return domain.Sale{}, invalid("customerId", "invalid customerId")
	}

	saleDate, err := s.dateOrToday("saleDate", req.SaleDate)
	if err != nil {
		return domain.Sale{}, err
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		WithdrawalID: withdrawal.ID,
		CustomerID:   customer.ID,
		SellPrice:    req.SellPrice.Decimal,
		SaleDate:     saleDate,
	})
	if errors.Is(err, store.ErrConflict) {
		return domain.Sale{}, fmt.Errorf("withdrawal %d already sold: %w", withdrawal.ID, err)
	}
	if errors.Is(err, store.ErrInvalidRecord) {
		return domain.Sale{}, invalid("withdrawalId", "invalid withdrawalId")
	}
	if err != nil {
		return domain.Sale{}, err
	}

	s.afterWrite(ctx, "sale_create", "sale", created.ID, fmt.Sprintf("withdrawal=%d,customer=%d,price=%s", created.WithdrawalID, created.CustomerID, created.SellPrice))
	return *created, nil
}

func (s *Service) ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error) {
	if saleID < 0 {
		saleID = 0
	}
	return s.repo.ListPayments(ctx, saleID)
}

func (s *Service) CreatePayment(ctx context.Context, req domain.PaymentCreateRequest) (domain.Payment, error) {
	if req.SaleID < 1 {
		return domain.Payment{}, invalid("saleId", "invalid saleId")
	}

	employeeID, err := s.resolveEmployee(ctx, int64(req.ReceivedByEmployeeID))
	if err != nil {
		return domain.Payment{}, err
	}
	if employeeID == 0 {
		return domain.Payment{}, invalid("receivedByEmployeeId", "invalid receivedByEmployeeId")
	}

	paymentDate, err := s.dateOrToday("paymentDate", req.PaymentDate)
	if err != nil {
		return domain.Payment{}, err
	}

	created, err := s.repo.CreatePayment(ctx, domain.Payment{
		SaleID:               int64(req.SaleID),
		Amount:               req.Amount.Decimal,
		PaymentDate:          paymentDate,
		ReceivedByEmployeeID: employeeID,
		Method:               optionalString(req.Method),
	})
	if errors.Is(err, store.ErrInvalidRecord) {
		return domain.Payment{}, invalid("saleId", "invalid saleId")
	}
	if err != nil {
		return domain.Payment{}, err
	}

	s.afterWrite(ctx, "payment_create", "payment", created.ID, fmt.Sprintf("sale=%d,amount=%s", created.SaleID, created.Amount))
	return *created, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) CustomerDebt(ctx context.Context, customerID int64) (domain.CustomerDebt, error) {
	return cachedReport(ctx, s, "customer_debt:"+strconv.FormatInt(customerID, 10), func(snap domain.Snapshot) domain.CustomerDebt {
		return s.engine.CustomerDebt(snap, customerID)
	})
}

// Debts depends on the current day, so the day is part of the cache key.
func (s *Service) Debts(ctx context.Context, overdueDays int) ([]domain.DebtRow, error) {
	key := fmt.Sprintf("debts:%d:%s", overdueDays, domain.DateOf(s.now().UTC()))
	return cachedReport(ctx, s, key, func(snap domain.Snapshot) []domain.DebtRow {
		return s.engine.Debts(snap, overdueDays)
	})
}

func (s *Service) EmployeeActivity(ctx context.Context, employeeID int64) (domain.EmployeeActivity, error) {
	return cachedReport(ctx, s, "employee_activity:"+strconv.FormatInt(employeeID, 10), func(snap domain.Snapshot) domain.EmployeeActivity {
		return s.engine.EmployeeActivity(snap, employeeID)
	})
}

func (s *Service) Inventory(ctx context.Context) (domain.InventoryReport, error) {
	return cachedReport(ctx, s, "inventory", s.engine.Inventory)
}

func (s *Service) Summary(ctx context.Context, from *domain.Date, to *domain.Date) (domain.SummaryReport, error) {
	return cachedReport(ctx, s, "summary:"+rangeKey(from, to), func(snap domain.Snapshot) domain.SummaryReport {
		return s.engine.Summary(snap, from, to)
	})
}

func (s *Service) Customers(ctx context.Context, minDebt decimal.Decimal) ([]domain.CustomerReportRow, error) {
	return cachedReport(ctx, s, "customers:"+minDebt.String(), func(snap domain.Snapshot) []domain.CustomerReportRow {
		return s.engine.Customers(snap, minDebt)
	})
}

func (s *Service) Items(ctx context.Context) ([]domain.ItemReportRow, error) {
	return cachedReport(ctx, s, "items", s.engine.Items)
}

func (s *Service) SalesByEmployee(ctx context.Context, from *domain.Date, to *domain.Date) ([]domain.EmployeeSalesRow, error) {
	return cachedReport(ctx, s, "sales_by_employee:"+rangeKey(from, to), func(snap domain.Snapshot) []domain.EmployeeSalesRow {
		return s.engine.SalesByEmployee(snap, from, to)
	})
}

func (s *Service) Monthly(ctx context.Context, year int) ([]domain.MonthlyRow, error) {
	return cachedReport(ctx, s, "monthly:"+strconv.Itoa(year), func(snap domain.Snapshot) []domain.MonthlyRow {
		return s.engine.Monthly(snap, year)
	})
}

// cachedReport serves key from the report cache, computing it from a fresh
// snapshot on a miss. The scoped key is resolved before the snapshot is
// taken so a write in between sends the result to an orphaned generation.
// Cache errors are logged and skipped.
func cachedReport[T any](ctx context.Context, s *Service, key string, build func(domain.Snapshot) T) (T, error) {
	scoped, err := s.cache.Scope(ctx, key)
	if err != nil {
		log.Printf("[cache] WARN: scope %s failed: %v", key, err)
		scoped = ""
	}

	if scoped != "" {
		var cached T
		hit, err := s.cache.Get(ctx, scoped, &cached)
		if err != nil {
			log.Printf("[cache] WARN: get %s failed: %v", key, err)
		}
		if hit && err == nil {
			return cached, nil
		}
	}

	snap, err := s.repo.Snapshot(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	result := build(snap)

	if scoped != "" {
		if err := s.cache.Set(ctx, scoped, result, s.cacheTTL); err != nil {
			log.Printf("[cache] WARN: set %s failed: %v", key, err)
		}
	}
	return result, nil
}

func rangeKey(from *domain.Date, to *domain.Date) string {
	var b strings.Builder
	if from != nil {
		b.WriteString(from.String())
	}
	b.WriteString("..")
	if to != nil {
		b.WriteString(to.String())
	}
	return b.String()
}

// resolveEmployee returns id when it names an employee, otherwise the first
// employee. It returns 0 when there are no employees at all.
func (s *Service) resolveEmployee(ctx context.Context, id int64) (int64, error) {
	if id > 0 {
		emp, err := s.repo.GetEmployee(ctx, id)
		if err == nil {
			return emp.ID, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return 0, err
		}
	}

	employees, err := s.repo.ListEmployees(ctx)
	if err != nil {
		return 0, err
	}
	if len(employees) == 0 {
		return 0, nil
	}
	return employees[0].ID, nil
}

func (s *Service) lookupItem(ctx context.Context, id int64) (*domain.Item, error) {
	if id < 1 {
		return nil, nil
	}
	item, err := s.repo.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return item, err
}

func (s *Service) lookupCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	if id < 1 {
		return nil, nil
	}
	customer, err := s.repo.GetCustomer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return customer, err
}

func (s *Service) dateOrToday(field string, raw string) (domain.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.DateOf(s.now().UTC()), nil
	}
	day, err := domain.ParseDate(raw)
	if err != nil {
		return domain.Date{}, invalid(field, err.Error())
	}
	return day, nil
}

// afterWrite records the audit entry and drops cached reports. Neither step
// can fail the write that already happened.
func (s *Service) afterWrite(ctx context.Context, action string, entityType string, entityID int64, detail string) {
	s.logAudit(ctx, action, entityType, strconv.FormatInt(entityID, 10), detail)
	if err := s.cache.Invalidate(ctx); err != nil {
		log.Printf("[cache] WARN: invalidate after %s failed: %v", action, err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = "system"
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func optionalString(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}
