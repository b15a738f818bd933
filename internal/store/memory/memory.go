package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/hozanderik1987-afk/myamara/internal/domain"
	"github.com/hozanderik1987-afk/myamara/internal/store"
	"github.com/hozanderik1987-afk/myamara/internal/xid"
)

// Store keeps every collection in process. When a data file is set, each
// write rewrites the whole snapshot to it before the write becomes visible.
type Store struct {
	mu        sync.RWMutex
	data      domain.Snapshot
	auditLogs []domain.AuditLog
	path      string
}

func seedSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Employees:   []domain.Employee{{ID: 1, Name: store.DefaultEmployeeName}},
		Customers:   []domain.Customer{},
		Items:       []domain.Item{},
		Withdrawals: []domain.Withdrawal{},
		Sales:       []domain.Sale{},
		Payments:    []domain.Payment{},
	}
}

// NewSeeded returns a volatile store holding only the default employee.
func NewSeeded() *Store {
	return &Store{
		data:      seedSnapshot(),
		auditLogs: make([]domain.AuditLog, 0, 128),
	}
}

// Open loads the snapshot file at path, creating it with the seed data when
// it does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{auditLogs: make([]domain.AuditLog, 0, 128), path: path}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.data = seedSnapshot()
		if err := s.persist(s.data); err != nil {
			return nil, err
		}
		log.Printf("[memory-store] created %s", path)
		return s, nil
	case err != nil:
		return nil, err
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

// NewFromSnapshot returns a volatile store holding a copy of snap.
func NewFromSnapshot(snap domain.Snapshot) *Store {
	return &Store{data: snap.Clone(), auditLogs: make([]domain.AuditLog, 0, 128)}
}

func (s *Store) persist(snap domain.Snapshot) error {
	if s.path == "" {
		return nil
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// mutate applies fn to a copy of the data and swaps it in only after the
// copy has been persisted. Callers must hold the write lock.
func (s *Store) mutate(fn func(next *domain.Snapshot) error) error {
	next := s.data.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.data = next
	return nil
}

func (s *Store) Snapshot(_ context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone(), nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data.Employees), nil
}

func (s *Store) GetEmployee(_ context.Context, id int64) (*domain.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := slices.IndexFunc(s.data.Employees, func(e domain.Employee) bool { return e.ID == id })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	employee := s.data.Employees[idx]
	return &employee, nil
}

func (s *Store) CreateEmployee(_ context.Context, employee domain.Employee) (*domain.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if employee.Name == "" {
		return nil, store.ErrInvalidRecord
	}
	err := s.mutate(func(next *domain.Snapshot) error {
		employee.ID = nextID(next.Employees, func(e domain.Employee) int64 { return e.ID })
		next.Employees = append(next.Employees, employee)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &employee, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data.Customers), nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := slices.IndexFunc(s.data.Customers, func(c domain.Customer) bool { return c.ID == id })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	customer := s.data.Customers[idx]
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(func(next *domain.Snapshot) error {
		customer.ID = nextID(next.Customers, func(c domain.Customer) int64 { return c.ID })
		next.Customers = append(next.Customers, customer)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(func(next *domain.Snapshot) error {
		idx := slices.IndexFunc(next.Customers, func(c domain.Customer) bool { return c.ID == customer.ID })
		if idx < 0 {
			return store.ErrNotFound
		}
		next.Customers[idx] = customer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data.Items), nil
}

func (s *Store) GetItem(_ context.Context, id int64) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := slices.IndexFunc(s.data.Items, func(it domain.Item) bool { return it.ID == id })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	item := s.data.Items[idx]
	return &item, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(func(next *domain.Snapshot) error {
		item.ID = nextID(next.Items, func(it domain.Item) int64 { return it.ID })
		next.Items = append(next.Items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(func(next *domain.Snapshot) error {
		idx := slices.IndexFunc(next.Items, func(it domain.Item) bool { return it.ID == item.ID })
		if idx < 0 {
			return store.ErrNotFound
		}
		next.Items[idx] = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListWithdrawals(_ context.Context, status domain.WithdrawalStatus) ([]domain.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status == "" {
		return slices.Clone(s.data.Withdrawals), nil
	}
	result := make([]domain.Withdrawal, 0, len(s.data.Withdrawals))
	for _, w := range s.data.Withdrawals {
		if w.Status == status {
			result = append(result, w)
		}
	}
	return result, nil
}

func (s *Store) GetWithdrawal(_ context.Context, id int64) (*domain.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := slices.IndexFunc(s.data.Withdrawals, func(w domain.Withdrawal) bool { return w.ID == id })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	withdrawal := s.data.Withdrawals[idx]
	return &withdrawal, nil
}

func (s *Store) CreateWithdrawal(_ context.Context, withdrawal domain.Withdrawal) (*domain.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(func(next *domain.Snapshot) error {
		if !slices.ContainsFunc(next.Items, func(it domain.Item) bool { return it.ID == withdrawal.ItemID }) {
			return store.ErrInvalidRecord
		}
		withdrawal.ID = nextID(next.Withdrawals, func(w domain.Withdrawal) int64 { return w.ID })
		next.Withdrawals = append(next.Withdrawals, withdrawal)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &withdrawal, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data.Sales), nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := slices.IndexFunc(s.data.Sales, func(sale domain.Sale) bool { return sale.ID == id })
	if idx < 0 {
		return nil, store.ErrNotFound
	}
	sale := s.data.Sales[idx]
	return &sale, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(func(next *domain.Snapshot) error {
		idx := slices.IndexFunc(next.Withdrawals, func(w domain.Withdrawal) bool { return w.ID == sale.WithdrawalID })
		if idx < 0 {
			return store.ErrInvalidRecord
		}
		if next.Withdrawals[idx].Status == domain.WithdrawalSold {
			return store.ErrConflict
		}
		sale.ID = nextID(next.Sales, func(x domain.Sale) int64 { return x.ID })
		next.Sales = append(next.Sales, sale)
		next.Withdrawals[idx].Status = domain.WithdrawalSold
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListPayments(_ context.Context, saleID int64) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if saleID == 0 {
		return slices.Clone(s.data.Payments), nil
	}
	result := make([]domain.Payment, 0)
	for _, p := range s.data.Payments {
		if p.SaleID == saleID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *Store) CreatePayment(_ context.Context, payment domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.mutate(func(next *domain.Snapshot) error {
		idx := slices.IndexFunc(next.Sales, func(sale domain.Sale) bool { return sale.ID == payment.SaleID })
		if idx < 0 {
			return store.ErrInvalidRecord
		}
		payment.CustomerID = next.Sales[idx].CustomerID
		payment.ID = nextID(next.Payments, func(p domain.Payment) int64 { return p.ID })
		next.Payments = append(next.Payments, payment)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

// ListAuditLogs returns the newest entries first.
func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, len(s.auditLogs))
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, s.auditLogs[i])
	}
	return result, nil
}

func nextID[T any](records []T, id func(T) int64) int64 {
	var maxID int64
	for _, r := range records {
		if v := id(r); v > maxID {
			maxID = v
		}
	}
	return maxID + 1
}
