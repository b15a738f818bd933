package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
	"github.com/hozanderik1987-afk/myamara/internal/store"
	"github.com/hozanderik1987-afk/myamara/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ensureSchema creates missing tables. Existing tables are left untouched.
func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS employees (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS customers (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS items (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			buy_price NUMERIC NOT NULL DEFAULT 0,
			sell_price NUMERIC NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS withdrawals (
			id BIGINT PRIMARY KEY,
			employee_id BIGINT NOT NULL,
			item_id BIGINT NOT NULL REFERENCES items(id),
			customer_id BIGINT,
			withdraw_date DATE NOT NULL,
			buy_price NUMERIC NOT NULL DEFAULT 0,
			supplier_invoice_no TEXT,
			status TEXT NOT NULL CHECK (status IN ('unsold', 'sold')),
			notes TEXT
		);
		CREATE TABLE IF NOT EXISTS sales (
			id BIGINT PRIMARY KEY,
			withdrawal_id BIGINT NOT NULL UNIQUE REFERENCES withdrawals(id),
			customer_id BIGINT NOT NULL,
			sell_price NUMERIC NOT NULL DEFAULT 0,
			sale_date DATE NOT NULL
		);
		CREATE TABLE IF NOT EXISTS payments (
			id BIGINT PRIMARY KEY,
			sale_id BIGINT NOT NULL REFERENCES sales(id),
			customer_id BIGINT NOT NULL,
			amount NUMERIC NOT NULL DEFAULT 0,
			payment_date DATE NOT NULL,
			received_by_employee_id BIGINT NOT NULL,
			method TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_payments_sale ON payments (sale_id);
		CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);
		INSERT INTO employees (id, name)
		SELECT 1, '`+store.DefaultEmployeeName+`'
		WHERE NOT EXISTS (SELECT 1 FROM employees);
	`)
	if err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var snap domain.Snapshot
	if snap.Employees, err = listEmployees(ctx, tx); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Customers, err = listCustomers(ctx, tx); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Items, err = listItems(ctx, tx); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Withdrawals, err = listWithdrawals(ctx, tx, ""); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Sales, err = listSales(ctx, tx); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Payments, err = listPayments(ctx, tx, 0); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, tx.Commit()
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	return listEmployees(ctx, s.db)
}

func listEmployees(ctx context.Context, q queryer) ([]domain.Employee, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name FROM employees ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := make([]domain.Employee, 0, 16)
	for rows.Next() {
		var e domain.Employee
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func (s *Store) GetEmployee(ctx context.Context, id int64) (*domain.Employee, error) {
	var e domain.Employee
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM employees WHERE id = $1`, id).Scan(&e.ID, &e.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (s *Store) CreateEmployee(ctx context.Context, employee domain.Employee) (*domain.Employee, error) {
	if employee.Name == "" {
		return nil, store.ErrInvalidRecord
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, "employees")
		if err != nil {
			return err
		}
		employee.ID = id
		_, err = tx.ExecContext(ctx, `INSERT INTO employees (id, name) VALUES ($1, $2)`, employee.ID, employee.Name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return listCustomers(ctx, s.db)
}

func listCustomers(ctx context.Context, q queryer) ([]domain.Customer, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, phone, address FROM customers ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, address FROM customers WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Address)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, "customers")
		if err != nil {
			return err
		}
		customer.ID = id
		_, err = tx.ExecContext(ctx, `
			INSERT INTO customers (id, name, phone, address) VALUES ($1, $2, $3, $4)
		`, customer.ID, customer.Name, customer.Phone, customer.Address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers SET name = $2, phone = $3, address = $4 WHERE id = $1
	`, customer.ID, customer.Name, customer.Phone, customer.Address)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	return listItems(ctx, s.db)
}

func listItems(ctx context.Context, q queryer) ([]domain.Item, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, buy_price, sell_price FROM items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 64)
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.BuyPrice, &it.SellPrice); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *Store) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var it domain.Item
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, buy_price, sell_price FROM items WHERE id = $1
	`, id).Scan(&it.ID, &it.Name, &it.BuyPrice, &it.SellPrice)
	if err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := nextID(ctx, tx, "items")
		if err != nil {
			return err
		}
		item.ID = id
		_, err = tx.ExecContext(ctx, `
			INSERT INTO items (id, name, buy_price, sell_price) VALUES ($1, $2, $3, $4)
		`, item.ID, item.Name, item.BuyPrice, item.SellPrice)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET name = $2, buy_price = $3, sell_price = $4 WHERE id = $1
	`, item.ID, item.Name, item.BuyPrice, item.SellPrice)
	if err := affectedOne(res, err); err != nil {
		return nil, err
	}
	return &item, nil
}

const withdrawalSelect = `
	SELECT id, employee_id, item_id, customer_id, withdraw_date, buy_price, supplier_invoice_no, status, notes
	FROM withdrawals
`

func (s *Store) ListWithdrawals(ctx context.Context, status domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	return listWithdrawals(ctx, s.db, status)
}

func listWithdrawals(ctx context.Context, q queryer, status domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	rows, err := q.QueryContext(ctx, withdrawalSelect+`
		WHERE ($1 = '' OR status = $1)
		ORDER BY id
	`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	withdrawals := make([]domain.Withdrawal, 0, 128)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWithdrawal(row rowScanner) (domain.Withdrawal, error) {
	var (
		w          domain.Withdrawal
		customerID sql.NullInt64
		invoiceNo  sql.NullString
		notes      sql.NullString
		status     string
	)
	if err := row.Scan(&w.ID, &w.EmployeeID, &w.ItemID, &customerID, &w.WithdrawDate, &w.BuyPrice, &invoiceNo, &status, &notes); err != nil {
		return domain.Withdrawal{}, err
	}
	if customerID.Valid {
		w.CustomerID = &customerID.Int64
	}
	if invoiceNo.Valid {
		w.SupplierInvoiceNo = &invoiceNo.String
	}
	if notes.Valid {
		w.Notes = &notes.String
	}
	w.Status = domain.WithdrawalStatus(status)
	return w, nil
}

func (s *Store) GetWithdrawal(ctx context.Context, id int64) (*domain.Withdrawal, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx, withdrawalSelect+` WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &w, nil
}

func (s *Store) CreateWithdrawal(ctx context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, withdrawal.ItemID).Scan(&exists); err != nil {
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO withdrawals (id, employee_id, item_id, customer_id, withdraw_date, buy_price, supplier_invoice_no, status, notes)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, withdrawal.ID, withdrawal.EmployeeID, withdrawal.ItemID, nullInt64(withdrawal.CustomerID),
			withdrawal.WithdrawDate, withdrawal.BuyPrice, nullString(withdrawal.SupplierInvoiceNo),
			string(withdrawal.Status), nullString(withdrawal.Notes))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

const saleSelect = `SELECT id, withdrawal_id, customer_id, sell_price, sale_date FROM sales`

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return listSales(ctx, s.db)
}

func listSales(ctx context.Context, q queryer) ([]domain.Sale, error) {
	rows, err := q.QueryContext(ctx, saleSelect+` ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.WithdrawalID, &sale.CustomerID, &sale.SellPrice, &sale.SaleDate); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, saleSelect+` WHERE id = $1`, id).
		Scan(&sale.ID, &sale.WithdrawalID, &sale.CustomerID, &sale.SellPrice, &sale.SaleDate)
	if err != nil {
		return nil, notFound(err)
	}
	return &sale, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `
			SELECT status FROM withdrawals WHERE id = $1 FOR UPDATE
		`, sale.WithdrawalID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrInvalidRecord
		}
		if err != nil {
			return err
		}
		if domain.WithdrawalStatus(status) == domain.WithdrawalSold {
			return store.ErrConflict
		}

		id, err := nextID(ctx, tx, "sales")
		if err != nil {
			return err
		}
		sale.ID = id
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sales (id, withdrawal_id, customer_id, sell_price, sale_date)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, sale.WithdrawalID, sale.CustomerID, sale.SellPrice, sale.SaleDate); err != nil {
			if isUniqueViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE withdrawals SET status = $2 WHERE id = $1`, sale.WithdrawalID, string(domain.WithdrawalSold))
		return err
	})
	// The loser of two concurrent sales waits on the row lock and then fails
	// to serialize once the winner commits.
	if isSerializationFailure(err) {
		return nil, store.ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

const paymentSelect = `
	SELECT id, sale_id, customer_id, amount, payment_date, received_by_employee_id, method
	FROM payments
`

func (s *Store) ListPayments(ctx context.Context, saleID int64) ([]domain.Payment, error) {
	return listPayments(ctx, s.db, saleID)
}

func listPayments(ctx context.Context, q queryer, saleID int64) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, paymentSelect+`
		WHERE ($1 = 0 OR sale_id = $1)
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 128)
	for rows.Next() {
		var (
			p      domain.Payment
			method sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.SaleID, &p.CustomerID, &p.Amount, &p.PaymentDate, &p.ReceivedByEmployeeID, &method); err != nil {
			return nil, err
		}
		if method.Valid {
			p.Method = &method.String
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Store) CreatePayment(ctx context.Context, payment domain.Payment) (*domain.Payment, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `SELECT customer_id FROM sales WHERE id = $1`, payment.SaleID).Scan(&payment.CustomerID)
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payments (id, sale_id, customer_id, amount, payment_date, received_by_employee_id, method)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, payment.ID, payment.SaleID, payment.CustomerID, payment.Amount, payment.PaymentDate,
			payment.ReceivedByEmployeeID, nullString(payment.Method))
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// nextID locks the table so concurrent creates cannot hand out the same id.
func nextID(ctx context.Context, tx *sql.Tx, table string) (int64, error) {
	if _, err := tx.ExecContext(ctx, `LOCK TABLE `+table+` IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return 0, err
	}
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) + 1 FROM `+table).Scan(&id)
	return id, err
}

func isUniqueViolation(err error) bool {
	return hasSQLState(err, "23505")
}

func isSerializationFailure(err error) bool {
	return hasSQLState(err, "40001")
}

func hasSQLState(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
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

func nullString(val *string) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullInt64(val *int64) any {
	if val == nil {
		return nil
	}
	return *val
}
