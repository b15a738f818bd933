package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Money crosses the wire as plain JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type WithdrawalStatus string

const (
	WithdrawalUnsold WithdrawalStatus = "unsold"
	WithdrawalSold   WithdrawalStatus = "sold"
)

type Employee struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type EmployeeCreateRequest struct {
	Name string `json:"name"`
}

type Customer struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Phone   string `db:"phone" json:"phone"`
	Address string `db:"address" json:"address"`
}

type CustomerRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type Item struct {
	ID        int64           `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	BuyPrice  decimal.Decimal `db:"buy_price" json:"buyPrice"`
	SellPrice decimal.Decimal `db:"sell_price" json:"sellPrice"`
}

type ItemRequest struct {
	Name      string `json:"name"`
	BuyPrice  Amount `json:"buyPrice"`
	SellPrice Amount `json:"sellPrice"`
}

type Withdrawal struct {
	ID                int64            `db:"id" json:"id"`
	EmployeeID        int64            `db:"employee_id" json:"employeeId"`
	ItemID            int64            `db:"item_id" json:"itemId"`
	CustomerID        *int64           `db:"customer_id" json:"customerId"`
	WithdrawDate      Date             `db:"withdraw_date" json:"withdrawDate"`
	BuyPrice          decimal.Decimal  `db:"buy_price" json:"buyPrice"`
	SupplierInvoiceNo *string          `db:"supplier_invoice_no" json:"supplierInvoiceNo"`
	Status            WithdrawalStatus `db:"status" json:"status"`
	Notes             *string          `db:"notes" json:"notes"`
}

type WithdrawalCreateRequest struct {
	EmployeeID        RefID  `json:"employeeId"`
	ItemID            RefID  `json:"itemId"`
	CustomerID        RefID  `json:"customerId"`
	WithdrawDate      string `json:"withdrawDate"`
	BuyPrice          Amount `json:"buyPrice"`
	SupplierInvoiceNo string `json:"supplierInvoiceNo"`
	Status            string `json:"status"`
	Notes             string `json:"notes"`
}

type Sale struct {
	ID           int64           `db:"id" json:"id"`
	WithdrawalID int64           `db:"withdrawal_id" json:"withdrawalId"`
	CustomerID   int64           `db:"customer_id" json:"customerId"`
	SellPrice    decimal.Decimal `db:"sell_price" json:"sellPrice"`
	SaleDate     Date            `db:"sale_date" json:"saleDate"`
}

type SaleCreateRequest struct {
	WithdrawalID RefID  `json:"withdrawalId"`
	CustomerID   RefID  `json:"customerId"`
	SellPrice    Amount `json:"sellPrice"`
	SaleDate     string `json:"saleDate"`
}

type Payment struct {
	ID                   int64           `db:"id" json:"id"`
	SaleID               int64           `db:"sale_id" json:"saleId"`
	CustomerID           int64           `db:"customer_id" json:"customerId"`
	Amount               decimal.Decimal `db:"amount" json:"amount"`
	PaymentDate          Date            `db:"payment_date" json:"paymentDate"`
	ReceivedByEmployeeID int64           `db:"received_by_employee_id" json:"receivedByEmployeeId"`
	Method               *string         `db:"method" json:"method"`
}

type PaymentCreateRequest struct {
	SaleID               RefID  `json:"saleId"`
	Amount               Amount `json:"amount"`
	PaymentDate          string `json:"paymentDate"`
	ReceivedByEmployeeID RefID  `json:"receivedByEmployeeId"`
	Method               string `json:"method"`
}

// Snapshot is the full content of the record store at one point in time.
type Snapshot struct {
	Employees   []Employee   `json:"employees"`
	Customers   []Customer   `json:"customers"`
	Items       []Item       `json:"items"`
	Withdrawals []Withdrawal `json:"withdrawals"`
	Sales       []Sale       `json:"sales"`
	Payments    []Payment    `json:"payments"`
}

// Clone returns a snapshot whose slices do not alias s.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Employees:   append([]Employee(nil), s.Employees...),
		Customers:   append([]Customer(nil), s.Customers...),
		Items:       append([]Item(nil), s.Items...),
		Withdrawals: append([]Withdrawal(nil), s.Withdrawals...),
		Sales:       append([]Sale(nil), s.Sales...),
		Payments:    append([]Payment(nil), s.Payments...),
	}
}

type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	EntityType string    `db:"entity_type" json:"entityType"`
	EntityID   string    `db:"entity_id" json:"entityId"`
	Detail     string    `db:"detail" json:"detail"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type DebtDetail struct {
	SaleID    int64           `json:"saleId"`
	SellPrice decimal.Decimal `json:"sellPrice"`
	Paid      decimal.Decimal `json:"paid"`
	Remaining decimal.Decimal `json:"remaining"`
}

type CustomerDebt struct {
	CustomerID     int64           `json:"customerId"`
	TotalRemaining decimal.Decimal `json:"totalRemaining"`
	Details        []DebtDetail    `json:"details"`
}

type DebtRow struct {
	SaleID        int64           `json:"saleId"`
	CustomerID    int64           `json:"customerId"`
	CustomerName  string          `json:"customerName"`
	Remaining     decimal.Decimal `json:"remaining"`
	DaysSinceSale int             `json:"daysSinceSale"`
	Overdue       bool            `json:"overdue"`
}

type EmployeeActivity struct {
	EmployeeID       int64           `json:"employeeId"`
	WithdrawalsCount int             `json:"withdrawalsCount"`
	SalesCount       int             `json:"salesCount"`
	PaymentsSum      decimal.Decimal `json:"paymentsSum"`
}

type InventoryReport struct {
	Sold           int             `json:"sold"`
	Unsold         int             `json:"unsold"`
	ExpectedProfit decimal.Decimal `json:"expectedProfit"`
}

type SummaryReport struct {
	TotalSalesCount   int             `json:"totalSalesCount"`
	TotalSalesRevenue decimal.Decimal `json:"totalSalesRevenue"`
	TotalPayments     decimal.Decimal `json:"totalPayments"`
	Outstanding       decimal.Decimal `json:"outstanding"`
	SoldCount         int             `json:"soldCount"`
	UnsoldCount       int             `json:"unsoldCount"`
	AvgSellPrice      decimal.Decimal `json:"avgSellPrice"`
}

type CustomerReportRow struct {
	CustomerID   int64           `json:"customerId"`
	CustomerName string          `json:"customerName"`
	SalesCount   int             `json:"salesCount"`
	Revenue      decimal.Decimal `json:"revenue"`
	Paid         decimal.Decimal `json:"paid"`
	Remaining    decimal.Decimal `json:"remaining"`
	LastSaleDate *Date           `json:"lastSaleDate"`
}

type ItemReportRow struct {
	ItemID           int64           `json:"itemId"`
	ItemName         string          `json:"itemName"`
	WithdrawalsCount int             `json:"withdrawalsCount"`
	SoldCount        int             `json:"soldCount"`
	UnsoldCount      int             `json:"unsoldCount"`
	Revenue          decimal.Decimal `json:"revenue"`
	BuyTotal         decimal.Decimal `json:"buyTotal"`
	Profit           decimal.Decimal `json:"profit"`
}

type EmployeeSalesRow struct {
	EmployeeID       int64           `json:"employeeId"`
	EmployeeName     string          `json:"employeeName"`
	WithdrawalsCount int             `json:"withdrawalsCount"`
	SalesCount       int             `json:"salesCount"`
	SalesTotal       decimal.Decimal `json:"salesTotal"`
	PaymentsSum      decimal.Decimal `json:"paymentsSum"`
}

type MonthlyRow struct {
	Month       int             `json:"month"`
	SalesCount  int             `json:"salesCount"`
	Revenue     decimal.Decimal `json:"revenue"`
	Payments    decimal.Decimal `json:"payments"`
	Outstanding decimal.Decimal `json:"outstanding"`
}
