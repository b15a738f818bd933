package store

import (
	"context"
	"errors"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrConflict      = errors.New("conflict")
)

// Repository is the record store. Every create assigns id = max(existing)+1
// and is applied atomically or not at all.
type Repository interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)

	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	GetEmployee(ctx context.Context, id int64) (*domain.Employee, error)
	CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)

	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItem(ctx context.Context, id int64) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)

	// ListWithdrawals filters by status unless status is empty.
	ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus) ([]domain.Withdrawal, error)
	GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error)
	CreateWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error)

	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	// CreateSale inserts the sale and marks its withdrawal sold in one step.
	// It returns ErrInvalidRecord when the withdrawal does not exist and
	// ErrConflict when it is already sold.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)

	// ListPayments filters by sale unless saleID is 0.
	ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error)
	CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

// DefaultEmployeeName names the employee every empty store starts with.
const DefaultEmployeeName = "موظف افتراضي"
