package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
	"github.com/hozanderik1987-afk/myamara/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestOpenSeedsDefaultEmployeeOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	employees, err := s.ListEmployees(ctx)
	if err != nil {
		t.Fatalf("list employees: %v", err)
	}
	if len(employees) != 1 || employees[0].Name != store.DefaultEmployeeName {
		t.Fatalf("expected single default employee, got %+v", employees)
	}
}

func TestSaleLifecycleRoundTrips(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Nour", Phone: "0111"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	item, err := s.CreateItem(ctx, domain.Item{
		Name:      "Ring",
		BuyPrice:  decimal.RequireFromString("100.25"),
		SellPrice: decimal.NewFromInt(150),
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}

	if _, err := s.CreateWithdrawal(ctx, domain.Withdrawal{ItemID: 99, EmployeeID: 1, Status: domain.WithdrawalUnsold, WithdrawDate: domain.NewDate(2024, time.March, 1)}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record for unknown item, got %v", err)
	}

	invoice := "INV-7"
	withdrawal, err := s.CreateWithdrawal(ctx, domain.Withdrawal{
		EmployeeID:        1,
		ItemID:            item.ID,
		CustomerID:        &customer.ID,
		WithdrawDate:      domain.NewDate(2024, time.March, 1),
		BuyPrice:          item.BuyPrice,
		SupplierInvoiceNo: &invoice,
		Status:            domain.WithdrawalUnsold,
	})
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		WithdrawalID: withdrawal.ID,
		CustomerID:   customer.ID,
		SellPrice:    decimal.NewFromInt(150),
		SaleDate:     domain.NewDate(2024, time.March, 2),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := s.CreateSale(ctx, domain.Sale{WithdrawalID: withdrawal.ID, CustomerID: customer.ID}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second sale, got %v", err)
	}
	if _, err := s.CreateSale(ctx, domain.Sale{WithdrawalID: 404, CustomerID: customer.ID}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record for unknown withdrawal, got %v", err)
	}

	payment, err := s.CreatePayment(ctx, domain.Payment{
		SaleID:               sale.ID,
		Amount:               decimal.NewFromInt(60),
		PaymentDate:          domain.NewDate(2024, time.March, 10),
		ReceivedByEmployeeID: 1,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.CustomerID != customer.ID {
		t.Fatalf("expected payment customer %d, got %d", customer.ID, payment.CustomerID)
	}

	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Withdrawals) != 1 || snap.Withdrawals[0].Status != domain.WithdrawalSold {
		t.Fatalf("expected sold withdrawal, got %+v", snap.Withdrawals)
	}
	got := snap.Withdrawals[0]
	if got.CustomerID == nil || *got.CustomerID != customer.ID || got.SupplierInvoiceNo == nil || *got.SupplierInvoiceNo != invoice || got.Notes != nil {
		t.Fatalf("nullable columns did not round trip: %+v", got)
	}
	if !snap.Items[0].BuyPrice.Equal(decimal.RequireFromString("100.25")) {
		t.Fatalf("expected exact buy price, got %s", snap.Items[0].BuyPrice)
	}
	if snap.Sales[0].SaleDate != domain.NewDate(2024, time.March, 2) {
		t.Fatalf("expected sale date 2024-03-02, got %s", snap.Sales[0].SaleDate)
	}

	unsold, err := s.ListWithdrawals(ctx, domain.WithdrawalUnsold)
	if err != nil {
		t.Fatalf("list unsold: %v", err)
	}
	if len(unsold) != 0 {
		t.Fatalf("expected no unsold withdrawals, got %d", len(unsold))
	}
}

func TestUpdateMissingCustomerIsNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.UpdateCustomer(context.Background(), domain.Customer{ID: 12, Name: "Nobody"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuditLogsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	for i, action := range []string{"item_create", "sale_create"} {
		if err := s.CreateAuditLog(ctx, domain.AuditLog{
			Actor:      "system",
			Action:     action,
			EntityType: "test",
			EntityID:   "1",
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("create audit log: %v", err)
		}
	}

	logs, err := s.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 2 || logs[0].Action != "sale_create" {
		t.Fatalf("expected newest first, got %+v", logs)
	}
}
