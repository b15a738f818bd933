package report

import (
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
)

// Engine computes read-only reports over a record snapshot. It never
// mutates the snapshot and never fails: unresolved references join as
// absent records.
type Engine struct {
	now func() time.Time
}

func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

func (e *Engine) CustomerDebt(snap domain.Snapshot, customerID int64) domain.CustomerDebt {
	paid := paidBySale(snap.Payments)
	result := domain.CustomerDebt{
		CustomerID:     customerID,
		TotalRemaining: decimal.Zero,
		Details:        make([]domain.DebtDetail, 0),
	}
	for _, s := range snap.Sales {
		if s.CustomerID != customerID {
			continue
		}
		left := remaining(s, paid)
		result.Details = append(result.Details, domain.DebtDetail{
			SaleID:    s.ID,
			SellPrice: s.SellPrice,
			Paid:      paid[s.ID],
			Remaining: left,
		})
		result.TotalRemaining = result.TotalRemaining.Add(left)
	}
	return result
}

// Debts lists every sale with an open balance. A sale is overdue once it is
// older than overdueDays whole days.
func (e *Engine) Debts(snap domain.Snapshot, overdueDays int) []domain.DebtRow {
	paid := paidBySale(snap.Payments)
	names := customerNames(snap.Customers)
	now := e.now()

	rows := make([]domain.DebtRow, 0)
	for _, s := range snap.Sales {
		left := remaining(s, paid)
		if !left.IsPositive() {
			continue
		}
		days := daysSince(now, s.SaleDate)
		rows = append(rows, domain.DebtRow{
			SaleID:        s.ID,
			CustomerID:    s.CustomerID,
			CustomerName:  names[s.CustomerID],
			Remaining:     left,
			DaysSinceSale: days,
			Overdue:       days > overdueDays,
		})
	}
	return rows
}

func (e *Engine) EmployeeActivity(snap domain.Snapshot, employeeID int64) domain.EmployeeActivity {
	owner := withdrawalOwners(snap.Withdrawals)
	activity := domain.EmployeeActivity{EmployeeID: employeeID, PaymentsSum: decimal.Zero}
	for _, w := range snap.Withdrawals {
		if w.EmployeeID == employeeID {
			activity.WithdrawalsCount++
		}
	}
	for _, s := range snap.Sales {
		if emp, ok := owner[s.WithdrawalID]; ok && emp == employeeID {
			activity.SalesCount++
		}
	}
	for _, p := range snap.Payments {
		if p.ReceivedByEmployeeID == employeeID {
			activity.PaymentsSum = activity.PaymentsSum.Add(p.Amount)
		}
	}
	return activity
}

// Inventory projects profit from each item's current sell price, not the
// price the sale actually closed at.
func (e *Engine) Inventory(snap domain.Snapshot) domain.InventoryReport {
	items := make(map[int64]domain.Item, len(snap.Items))
	for _, it := range snap.Items {
		items[it.ID] = it
	}

	inv := domain.InventoryReport{ExpectedProfit: decimal.Zero}
	for _, w := range snap.Withdrawals {
		switch w.Status {
		case domain.WithdrawalSold:
			inv.Sold++
			sell := decimal.Zero
			if it, ok := items[w.ItemID]; ok {
				sell = it.SellPrice
			}
			inv.ExpectedProfit = inv.ExpectedProfit.Add(sell.Sub(w.BuyPrice))
		case domain.WithdrawalUnsold:
			inv.Unsold++
		}
	}
	return inv
}

// Summary filters sales by sale date and payments by payment date, each on
// its own, so outstanding is revenue in range minus payments in range.
func (e *Engine) Summary(snap domain.Snapshot, from *domain.Date, to *domain.Date) domain.SummaryReport {
	sales := salesInRange(snap.Sales, from, to)
	payments := paymentsInRange(snap.Payments, from, to)
	revenue := sumSellPrice(sales)
	received := sumAmount(payments)

	sold, unsold := statusCounts(snap.Withdrawals)
	avg := decimal.Zero
	if len(sales) > 0 {
		avg = revenue.Div(decimal.NewFromInt(int64(len(sales))))
	}

	return domain.SummaryReport{
		TotalSalesCount:   len(sales),
		TotalSalesRevenue: revenue,
		TotalPayments:     received,
		Outstanding:       revenue.Sub(received),
		SoldCount:         sold,
		UnsoldCount:       unsold,
		AvgSellPrice:      avg,
	}
}

// Customers keeps customers whose remaining balance is at least minDebt,
// largest balance first.
func (e *Engine) Customers(snap domain.Snapshot, minDebt decimal.Decimal) []domain.CustomerReportRow {
	paid := paidBySale(snap.Payments)
	byCustomer := make(map[int64][]domain.Sale)
	for _, s := range snap.Sales {
		byCustomer[s.CustomerID] = append(byCustomer[s.CustomerID], s)
	}

	rows := make([]domain.CustomerReportRow, 0, len(snap.Customers))
	for _, c := range snap.Customers {
		sales := byCustomer[c.ID]
		row := domain.CustomerReportRow{
			CustomerID:   c.ID,
			CustomerName: c.Name,
			SalesCount:   len(sales),
			Revenue:      decimal.Zero,
			Paid:         decimal.Zero,
		}
		for _, s := range sales {
			row.Revenue = row.Revenue.Add(s.SellPrice)
			row.Paid = row.Paid.Add(paid[s.ID])
			if row.LastSaleDate == nil || s.SaleDate.After(*row.LastSaleDate) {
				last := s.SaleDate
				row.LastSaleDate = &last
			}
		}
		row.Remaining = row.Revenue.Sub(row.Paid)
		if row.Remaining.LessThan(minDebt) {
			continue
		}
		rows = append(rows, row)
	}

	slices.SortStableFunc(rows, func(a, b domain.CustomerReportRow) int {
		return b.Remaining.Cmp(a.Remaining)
	})
	return rows
}

// Items ranks items by realised revenue. buyTotal counts every withdrawal
// of the item, sold or not.
func (e *Engine) Items(snap domain.Snapshot) []domain.ItemReportRow {
	withdrawals := make(map[int64][]domain.Withdrawal)
	for _, w := range snap.Withdrawals {
		withdrawals[w.ItemID] = append(withdrawals[w.ItemID], w)
	}
	salesByWithdrawal := make(map[int64][]domain.Sale)
	for _, s := range snap.Sales {
		salesByWithdrawal[s.WithdrawalID] = append(salesByWithdrawal[s.WithdrawalID], s)
	}

	rows := make([]domain.ItemReportRow, 0, len(snap.Items))
	for _, it := range snap.Items {
		wds := withdrawals[it.ID]
		row := domain.ItemReportRow{
			ItemID:           it.ID,
			ItemName:         it.Name,
			WithdrawalsCount: len(wds),
			Revenue:          decimal.Zero,
			BuyTotal:         decimal.Zero,
		}
		for _, w := range wds {
			row.BuyTotal = row.BuyTotal.Add(w.BuyPrice)
			if w.Status == domain.WithdrawalUnsold {
				row.UnsoldCount++
			}
			for _, s := range salesByWithdrawal[w.ID] {
				row.SoldCount++
				row.Revenue = row.Revenue.Add(s.SellPrice)
			}
		}
		row.Profit = row.Revenue.Sub(row.BuyTotal)
		rows = append(rows, row)
	}

	slices.SortStableFunc(rows, func(a, b domain.ItemReportRow) int {
		return b.Revenue.Cmp(a.Revenue)
	})
	return rows
}

// SalesByEmployee credits each sale to the employee who withdrew the item.
// Payments count toward the employee who received them, filtered by their
// own date.
func (e *Engine) SalesByEmployee(snap domain.Snapshot, from *domain.Date, to *domain.Date) []domain.EmployeeSalesRow {
	owner := withdrawalOwners(snap.Withdrawals)
	withdrawalCount := make(map[int64]int)
	for _, w := range snap.Withdrawals {
		withdrawalCount[w.EmployeeID]++
	}

	rows := make([]domain.EmployeeSalesRow, 0, len(snap.Employees))
	index := make(map[int64]int, len(snap.Employees))
	for _, emp := range snap.Employees {
		index[emp.ID] = len(rows)
		rows = append(rows, domain.EmployeeSalesRow{
			EmployeeID:       emp.ID,
			EmployeeName:     emp.Name,
			WithdrawalsCount: withdrawalCount[emp.ID],
			SalesTotal:       decimal.Zero,
			PaymentsSum:      decimal.Zero,
		})
	}

	for _, s := range salesInRange(snap.Sales, from, to) {
		emp, ok := owner[s.WithdrawalID]
		if !ok {
			continue
		}
		i, ok := index[emp]
		if !ok {
			continue
		}
		rows[i].SalesCount++
		rows[i].SalesTotal = rows[i].SalesTotal.Add(s.SellPrice)
	}
	for _, p := range paymentsInRange(snap.Payments, from, to) {
		if i, ok := index[p.ReceivedByEmployeeID]; ok {
			rows[i].PaymentsSum = rows[i].PaymentsSum.Add(p.Amount)
		}
	}

	slices.SortStableFunc(rows, func(a, b domain.EmployeeSalesRow) int {
		return b.SalesTotal.Cmp(a.SalesTotal)
	})
	return rows
}

// Monthly returns one row per calendar month of year, January first.
func (e *Engine) Monthly(snap domain.Snapshot, year int) []domain.MonthlyRow {
	rows := make([]domain.MonthlyRow, 0, 12)
	for m := 1; m <= 12; m++ {
		from, to := monthWindow(year, m)
		sales := salesInRange(snap.Sales, &from, &to)
		revenue := sumSellPrice(sales)
		received := sumAmount(paymentsInRange(snap.Payments, &from, &to))
		rows = append(rows, domain.MonthlyRow{
			Month:       m,
			SalesCount:  len(sales),
			Revenue:     revenue,
			Payments:    received,
			Outstanding: revenue.Sub(received),
		})
	}
	return rows
}

func customerNames(customers []domain.Customer) map[int64]string {
	names := make(map[int64]string, len(customers))
	for i := len(customers) - 1; i >= 0; i-- {
		names[customers[i].ID] = customers[i].Name
	}
	return names
}

// withdrawalOwners maps withdrawal id to the employee who made it. The first
// withdrawal wins when ids repeat, matching a front-to-back scan.
func withdrawalOwners(withdrawals []domain.Withdrawal) map[int64]int64 {
	owner := make(map[int64]int64, len(withdrawals))
	for _, w := range withdrawals {
		if _, seen := owner[w.ID]; !seen {
			owner[w.ID] = w.EmployeeID
		}
	}
	return owner
}

func statusCounts(withdrawals []domain.Withdrawal) (sold int, unsold int) {
	for _, w := range withdrawals {
		switch w.Status {
		case domain.WithdrawalSold:
			sold++
		case domain.WithdrawalUnsold:
			unsold++
		}
	}
	return sold, unsold
}

func daysSince(now time.Time, day domain.Date) int {
	return int(math.Floor(now.Sub(day.Time()).Hours() / 24))
}
