package memory

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
	"github.com/hozanderik1987-afk/myamara/internal/store"
)

func TestIDsContinueFromMax(t *testing.T) {
	s := NewFromSnapshot(domain.Snapshot{
		Employees: []domain.Employee{{ID: 1, Name: "A"}, {ID: 7, Name: "B"}},
	})

	emp, err := s.CreateEmployee(context.Background(), domain.Employee{Name: "C"})
	if err != nil {
		t.Fatalf("create employee: %v", err)
	}
	if emp.ID != 8 {
		t.Fatalf("expected id 8, got %d", emp.ID)
	}

	customer, err := s.CreateCustomer(context.Background(), domain.Customer{Name: "First"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if customer.ID != 1 {
		t.Fatalf("expected first customer id 1, got %d", customer.ID)
	}
}

func TestCreateSaleFlipsWithdrawalOnce(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	item, err := s.CreateItem(ctx, domain.Item{Name: "Ring"})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	w, err := s.CreateWithdrawal(ctx, domain.Withdrawal{EmployeeID: 1, ItemID: item.ID, Status: domain.WithdrawalUnsold})
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	if _, err := s.CreateSale(ctx, domain.Sale{WithdrawalID: w.ID, CustomerID: 1}); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := s.CreateSale(ctx, domain.Sale{WithdrawalID: w.ID, CustomerID: 1}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	got, err := s.GetWithdrawal(ctx, w.ID)
	if err != nil {
		t.Fatalf("get withdrawal: %v", err)
	}
	if got.Status != domain.WithdrawalSold {
		t.Fatalf("expected sold, got %s", got.Status)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s := NewSeeded()

	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	snap.Employees[0].Name = "mutated"

	employees, err := s.ListEmployees(context.Background())
	if err != nil {
		t.Fatalf("list employees: %v", err)
	}
	if employees[0].Name != store.DefaultEmployeeName {
		t.Fatalf("store was mutated through snapshot: %q", employees[0].Name)
	}
}

func TestOpenPersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.json")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	item, err := s.CreateItem(ctx, domain.Item{Name: "Chain", SellPrice: decimal.RequireFromString("99.5")})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if _, err := s.CreateWithdrawal(ctx, domain.Withdrawal{
		EmployeeID:   1,
		ItemID:       item.ID,
		WithdrawDate: domain.NewDate(2024, time.February, 29),
		Status:       domain.WithdrawalUnsold,
	}); err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	snap, err := reopened.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Items) != 1 || !snap.Items[0].SellPrice.Equal(decimal.RequireFromString("99.5")) {
		t.Fatalf("item did not survive reload: %+v", snap.Items)
	}
	if len(snap.Withdrawals) != 1 || snap.Withdrawals[0].WithdrawDate != domain.NewDate(2024, time.February, 29) {
		t.Fatalf("withdrawal did not survive reload: %+v", snap.Withdrawals)
	}
}

func TestFailedWriteLeavesStoreUnchanged(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	if _, err := s.CreatePayment(ctx, domain.Payment{SaleID: 3}); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected invalid record, got %v", err)
	}
	payments, err := s.ListPayments(ctx, 0)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 0 {
		t.Fatalf("expected no payments, got %d", len(payments))
	}
}
