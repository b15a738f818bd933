package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
	"github.com/hozanderik1987-afk/myamara/internal/store"
	"github.com/hozanderik1987-afk/myamara/internal/xid"
)

// Store is a single-file record store. Money is kept as decimal text so it
// round-trips exactly.
type Store struct {
	db *sqlx.DB
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS employees (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		buy_price TEXT NOT NULL DEFAULT '0',
		sell_price TEXT NOT NULL DEFAULT '0'
	)`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
		id INTEGER PRIMARY KEY,
		employee_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL REFERENCES items(id),
		customer_id INTEGER,
		withdraw_date TEXT NOT NULL,
		buy_price TEXT NOT NULL DEFAULT '0',
		supplier_invoice_no TEXT,
		status TEXT NOT NULL CHECK (status IN ('unsold', 'sold')),
		notes TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY,
		withdrawal_id INTEGER NOT NULL UNIQUE REFERENCES withdrawals(id),
		customer_id INTEGER NOT NULL,
		sell_price TEXT NOT NULL DEFAULT '0',
		sale_date TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY,
		sale_id INTEGER NOT NULL REFERENCES sales(id),
		customer_id INTEGER NOT NULL,
		amount TEXT NOT NULL DEFAULT '0',
		payment_date TEXT NOT NULL,
		received_by_employee_id INTEGER NOT NULL,
		method TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_sale ON payments (sale_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
}

// Open connects to the database at dsn, creates missing tables and seeds the
// default employee into an empty employees table.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One connection serialises writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite schema: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name)
		SELECT 1, ? WHERE NOT EXISTS (SELECT 1 FROM employees)
	`, store.DefaultEmployeeName)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	snap := domain.Snapshot{
		Employees:   []domain.Employee{},
		Customers:   []domain.Customer{},
		Items:       []domain.Item{},
		Withdrawals: []domain.Withdrawal{},
		Sales:       []domain.Sale{},
		Payments:    []domain.Payment{},
	}
	if err := tx.SelectContext(ctx, &snap.Employees, `SELECT id, name FROM employees ORDER BY id`); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.SelectContext(ctx, &snap.Customers, `SELECT id, name, phone, address FROM customers ORDER BY id`); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.SelectContext(ctx, &snap.Items, `SELECT id, name, buy_price, sell_price FROM items ORDER BY id`); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.SelectContext(ctx, &snap.Withdrawals, withdrawalColumns+` ORDER BY id`); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.SelectContext(ctx, &snap.Sales, saleColumns+` ORDER BY id`); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.SelectContext(ctx, &snap.Payments, paymentColumns+` ORDER BY id`); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

const (
	withdrawalColumns = `SELECT id, employee_id, item_id, customer_id, withdraw_date, buy_price, supplier_invoice_no, status, notes FROM withdrawals`
	saleColumns       = `SELECT id, withdrawal_id, customer_id, sell_price, sale_date FROM sales`
	paymentColumns    = `SELECT id, sale_id, customer_id, amount, payment_date, received_by_employee_id, method FROM payments`
)

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	employees := []domain.Employee{}
	err := s.db.SelectContext(ctx, &employees, `SELECT id, name FROM employees ORDER BY id`)
	return employees, err
}

func (s *Store) GetEmployee(ctx context.Context, id int64) (*domain.Employee, error) {
	var employee domain.Employee
	if err := s.db.GetContext(ctx, &employee, `SELECT id, name FROM employees WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &employee, nil
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.Name == "" {
		return nil, store.ErrInvalidRecord
	}
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := nextID(ctx, tx, "employees")
		if err != nil {
			return err
		}
		employee.ID = id
		_, err = tx.NamedExecContext(ctx, `INSERT INTO employees (id, name) VALUES (:id, :name)`, employee)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers := []domain.Customer{}
	err := s.db.SelectContext(ctx, &customers, `SELECT id, name, phone, address FROM customers ORDER BY id`)
	return customers, err
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var customer domain.Customer
	if err := s.db.GetContext(ctx, &customer, `SELECT id, name, phone, address FROM customers WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &customer, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := nextID(ctx, tx, "customers")
		if err != nil {
			return err
		}
		customer.ID = id
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO customers (id, name, phone, address) VALUES (:id, :name, :phone, :address)
		`, customer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE customers SET name = :name, phone = :phone, address = :address WHERE id = :id
	`, customer)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	items := []domain.Item{}
	err := s.db.SelectContext(ctx, &items, `SELECT id, name, buy_price, sell_price FROM items ORDER BY id`)
	return items, err
}

func (s *Store) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	if err := s.db.GetContext(ctx, &item, `SELECT id, name, buy_price, sell_price FROM items WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		id, err := nextID(ctx, tx, "items")
		if err != nil {
			return err
		}
		item.ID = id
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO items (id, name, buy_price, sell_price) VALUES (:id, :name, :buy_price, :sell_price)
		`, item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE items SET name = :name, buy_price = :buy_price, sell_price = :sell_price WHERE id = :id
	`, item)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	withdrawals := []domain.Withdrawal{}
	if status == "" {
		err := s.db.SelectContext(ctx, &withdrawals, withdrawalColumns+` ORDER BY id`)
		return withdrawals, err
	}
	err := s.db.SelectContext(ctx, &withdrawals, withdrawalColumns+` WHERE status = ? ORDER BY id`, status)
	return withdrawals, err
}

func (s *Store) GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	var withdrawal domain.Withdrawal
	if err := s.db.GetContext(ctx, &withdrawal, withdrawalColumns+` WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &withdrawal, nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM items WHERE id = ?)`, withdrawal.ItemID); err != nil {
			return err
		}
		if !exists {
			return store.ErrInvalidRecord
		}
		id, err := nextID(ctx, tx, "withdrawals")
		if err != nil {
			return err
		}
		withdrawal.ID = id
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO withdrawals (id, employee_id, item_id, customer_id, withdraw_date, buy_price, supplier_invoice_no, status, notes)
			VALUES (:id, :employee_id, :item_id, :customer_id, :withdraw_date, :buy_price, :supplier_invoice_no, :status, :notes)
		`, withdrawal)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	sales := []domain.Sale{}
	err := s.db.SelectContext(ctx, &sales, saleColumns+` ORDER BY id`)
	return sales, err
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	if err := s.db.GetContext(ctx, &sale, saleColumns+` WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var status domain.WithdrawalStatus
		err := tx.GetContext(ctx, &status, `SELECT status FROM withdrawals WHERE id = ?`, sale.WithdrawalID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrInvalidRecord
		}
		if err != nil {
			return err
		}
		if status == domain.WithdrawalSold {
			return store.ErrConflict
		}

		id, err := nextID(ctx, tx, "sales")
		if err != nil {
			return err
		}
		sale.ID = id
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO sales (id, withdrawal_id, customer_id, sell_price, sale_date)
			VALUES (:id, :withdrawal_id, :customer_id, :sell_price, :sale_date)
		`, sale); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE withdrawals SET status = ? WHERE id = ?`, domain.WithdrawalSold, sale.WithdrawalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error) {
	payments := []domain.Payment{}
	if saleID == 0 {
		err := s.db.SelectContext(ctx, &payments, paymentColumns+` ORDER BY id`)
		return payments, err
	}
	err := s.db.SelectContext(ctx, &payments, paymentColumns+` WHERE sale_id = ? ORDER BY id`, saleID)
	return payments, err
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &payment.CustomerID, `SELECT customer_id FROM sales WHERE id = ?`, payment.SaleID)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrInvalidRecord
		}
		if err != nil {
			return err
		}
		id, err := nextID(ctx, tx, "payments")
		if err != nil {
			return err
		}
		payment.ID = id
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO payments (id, sale_id, customer_id, amount, payment_date, received_by_employee_id, method)
			VALUES (:id, :sale_id, :customer_id, :amount, :payment_date, :received_by_employee_id, :method)
		`, payment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail, created_at)
		VALUES (:id, :actor, :action, :entity_type, :entity_id, :detail, :created_at)
	`, entry)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	logs := []domain.AuditLog{}
	err := s.db.SelectContext(ctx, &logs, `
		SELECT id, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	return logs, err
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// nextID is max(id)+1 read inside the writing transaction. The table name
// is always one of the package's own constants.
func nextID(ctx context.Context, tx *sqlx.Tx, table string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) + 1 FROM `+table)
	return id, err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
