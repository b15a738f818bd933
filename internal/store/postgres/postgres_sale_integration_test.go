package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
	"github.com/hozanderik1987-afk/myamara/internal/store"
)

func TestSaleMarksWithdrawalSoldOnce(t *testing.T) {
	databaseURL := os.Getenv("MYAMARA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MYAMARA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: fmt.Sprintf("Customer IT %d", stamp)})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	item, err := s.CreateItem(ctx, domain.Item{
		Name:      fmt.Sprintf("Item IT %d", stamp),
		BuyPrice:  decimal.NewFromInt(100),
		SellPrice: decimal.NewFromInt(150),
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	withdrawal, err := s.CreateWithdrawal(ctx, domain.Withdrawal{
		EmployeeID:   1,
		ItemID:       item.ID,
		CustomerID:   &customer.ID,
		WithdrawDate: domain.Today(),
		BuyPrice:     decimal.NewFromInt(100),
		Status:       domain.WithdrawalUnsold,
	})
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}

	var saleID int64
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM payments WHERE sale_id = $1`, saleID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE withdrawal_id = $1`, withdrawal.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM withdrawals WHERE id = $1`, withdrawal.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, item.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customer.ID)
	})

	sale, err := s.CreateSale(ctx, domain.Sale{
		WithdrawalID: withdrawal.ID,
		CustomerID:   customer.ID,
		SellPrice:    decimal.NewFromInt(150),
		SaleDate:     domain.Today(),
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	saleID = sale.ID

	got, err := s.GetWithdrawal(ctx, withdrawal.ID)
	if err != nil {
		t.Fatalf("get withdrawal: %v", err)
	}
	if got.Status != domain.WithdrawalSold {
		t.Fatalf("expected withdrawal sold, got %s", got.Status)
	}

	_, err = s.CreateSale(ctx, domain.Sale{
		WithdrawalID: withdrawal.ID,
		CustomerID:   customer.ID,
		SellPrice:    decimal.NewFromInt(150),
		SaleDate:     domain.Today(),
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on second sale, got %v", err)
	}

	payment, err := s.CreatePayment(ctx, domain.Payment{
		SaleID:               sale.ID,
		Amount:               decimal.NewFromInt(60),
		PaymentDate:          domain.Today(),
		ReceivedByEmployeeID: 1,
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.CustomerID != customer.ID {
		t.Fatalf("expected payment customer %d, got %d", customer.ID, payment.CustomerID)
	}

	payments, err := s.ListPayments(ctx, sale.ID)
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 || !payments[0].Amount.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected payments: %+v", payments)
	}
}

func TestConcurrentSalesOnOneWithdrawalConflict(t *testing.T) {
	databaseURL := os.Getenv("MYAMARA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MYAMARA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	item, err := s.CreateItem(ctx, domain.Item{
		Name:      fmt.Sprintf("Item race %d", time.Now().UnixNano()),
		BuyPrice:  decimal.NewFromInt(10),
		SellPrice: decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	withdrawal, err := s.CreateWithdrawal(ctx, domain.Withdrawal{
		EmployeeID:   1,
		ItemID:       item.ID,
		WithdrawDate: domain.Today(),
		BuyPrice:     decimal.NewFromInt(10),
		Status:       domain.WithdrawalUnsold,
	})
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}
	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Customer race"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE withdrawal_id = $1`, withdrawal.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM withdrawals WHERE id = $1`, withdrawal.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, item.ID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customer.ID)
	})

	const racers = 4
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateSale(ctx, domain.Sale{
				WithdrawalID: withdrawal.ID,
				CustomerID:   customer.ID,
				SellPrice:    decimal.NewFromInt(20),
				SaleDate:     domain.Today(),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("expected conflict for losing sale, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one sale, got %d", succeeded)
	}
}
