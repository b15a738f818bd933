package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
)

// RemainingForSale is the sale price minus every payment made against it.
// It goes negative when a sale is overpaid.
func RemainingForSale(sale domain.Sale, payments []domain.Payment) decimal.Decimal {
	return remaining(sale, paidBySale(payments))
}

// PaidForSale sums the payments made against the sale.
func PaidForSale(sale domain.Sale, payments []domain.Payment) decimal.Decimal {
	return paidBySale(payments)[sale.ID]
}

func remaining(sale domain.Sale, paid map[int64]decimal.Decimal) decimal.Decimal {
	return sale.SellPrice.Sub(paid[sale.ID])
}

// paidBySale indexes payment totals by sale id. Missing keys read as zero.
func paidBySale(payments []domain.Payment) map[int64]decimal.Decimal {
	paid := make(map[int64]decimal.Decimal, len(payments))
	for _, p := range payments {
		paid[p.SaleID] = paid[p.SaleID].Add(p.Amount)
	}
	return paid
}

// InRange reports whether day lies within [from, to]. A nil bound is open.
func InRange(day domain.Date, from *domain.Date, to *domain.Date) bool {
	if from != nil && day.Before(*from) {
		return false
	}
	if to != nil && day.After(*to) {
		return false
	}
	return true
}

// monthWindow always ends on day 31; the date ordering keeps that inside the month.
func monthWindow(year int, month int) (domain.Date, domain.Date) {
	return domain.NewDate(year, time.Month(month), 1), domain.NewDate(year, time.Month(month), 31)
}

func sumSellPrice(sales []domain.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, s := range sales {
		total = total.Add(s.SellPrice)
	}
	return total
}

func sumAmount(payments []domain.Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return total
}

func salesInRange(sales []domain.Sale, from *domain.Date, to *domain.Date) []domain.Sale {
	kept := make([]domain.Sale, 0, len(sales))
	for _, s := range sales {
		if InRange(s.SaleDate, from, to) {
			kept = append(kept, s)
		}
	}
	return kept
}

func paymentsInRange(payments []domain.Payment, from *domain.Date, to *domain.Date) []domain.Payment {
	kept := make([]domain.Payment, 0, len(payments))
	for _, p := range payments {
		if InRange(p.PaymentDate, from, to) {
			kept = append(kept, p)
		}
	}
	return kept
}
