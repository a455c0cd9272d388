// Package memory provides an in-process implementation of the storage
// contracts. It is safe for concurrent use and is intended for tests and
// single-binary local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/schedulex/internal/domain"
	"github.com/cuongbtq/schedulex/internal/storage"
)

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// Store keeps jobs, orders and transactions in maps guarded by one mutex.
// Values are copied on the way in and out so callers never share memory
// with the store.
type Store struct {
	mu sync.RWMutex

	jobs         map[string]*domain.Job
	orders       map[string]*domain.Order
	transactions map[string][]*domain.PaymentTransaction

	nextOrderID int64
	nextTxID    int64
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		jobs:         make(map[string]*domain.Job),
		orders:       make(map[string]*domain.Order),
		transactions: make(map[string][]*domain.PaymentTransaction),
	}
}

// Close is a no-op.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

func (m *Store) CreateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[job.JobID]; exists {
		return fmt.Errorf("failed to create job: duplicate job_id %s", job.JobID)
	}
	cp := *job
	m.jobs[job.JobID] = &cp
	return nil
}

func (m *Store) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *Store) ListJobs(_ context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Type != "" && j.Type != filter.Type {
			continue
		}
		if filter.Cursor != nil && !pastCursor(j.CreatedAt, j.JobID, filter.Cursor) {
			continue
		}
		result = append(result, *j)
	}

	sort.Slice(result, func(i, k int) bool {
		return after(result[i].CreatedAt, result[i].JobID, result[k].CreatedAt, result[k].JobID)
	})

	return limit(result, filter.PageSize), nil
}

// ListDueJobs returns due PENDING jobs sorted by priority DESC, scheduled_time ASC.
func (m *Store) ListDueJobs(_ context.Context, now time.Time, n int) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if j.IsDue(now) {
			result = append(result, *j)
		}
	}

	sort.Slice(result, func(i, k int) bool {
		if result[i].Priority != result[k].Priority {
			return result[i].Priority > result[k].Priority
		}
		return result[i].ScheduledTime.Before(result[k].ScheduledTime)
	})

	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result, nil
}

func (m *Store) ClaimJob(_ context.Context, jobID string, now time.Time) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID]
	if !ok || j.Status != domain.JobStatusPending {
		return nil, domain.ErrJobAlreadyClaimed
	}
	j.MarkRunning(now)
	cp := *j
	return &cp, nil
}

func (m *Store) UpdateJob(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.JobID]; !ok {
		return domain.ErrJobNotFound
	}
	cp := *job
	m.jobs[job.JobID] = &cp
	return nil
}

func (m *Store) CountJobsByStatus(_ context.Context) (map[domain.JobStatus]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.JobStatus]int64, len(domain.JobStatuses))
	for _, j := range m.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (m *Store) ResetStaleJobs(_ context.Context, cutoff, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, j := range m.jobs {
		if j.Status != domain.JobStatusRunning || j.LastExecutionTime == nil {
			continue
		}
		if j.LastExecutionTime.Before(cutoff) {
			j.Status = domain.JobStatusPending
			j.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Orders
// ──────────────────────────────────────────────────

func (m *Store) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.orders[order.OrderID]; exists {
		return domain.ErrOrderAlreadyExists
	}
	m.nextOrderID++
	order.ID = m.nextOrderID
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *Store) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Store) ListOrders(_ context.Context, filter storage.OrderFilter) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, o := range m.orders {
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		if filter.CustomerID != "" && o.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Cursor != nil && !pastCursor(o.CreatedAt, o.OrderID, filter.Cursor) {
			continue
		}
		result = append(result, *o)
	}

	sort.Slice(result, func(i, k int) bool {
		return after(result[i].CreatedAt, result[i].OrderID, result[k].CreatedAt, result[k].OrderID)
	})

	return limit(result, filter.PageSize), nil
}

func (m *Store) ListOrdersDueForRetry(_ context.Context, now time.Time, n int) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.Order, 0)
	for _, o := range m.orders {
		if o.PaymentStatus != domain.PaymentStatusFailed || o.NextRetryTime == nil {
			continue
		}
		if o.NextRetryTime.After(now) {
			continue
		}
		result = append(result, *o)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].NextRetryTime.Before(*result[k].NextRetryTime)
	})

	if n > 0 && len(result) > n {
		result = result[:n]
	}
	return result, nil
}

func (m *Store) ClaimOrderPayment(_ context.Context, orderID string, expected domain.PaymentStatus, now time.Time) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if o.PaymentStatus != expected {
		return nil, domain.ErrStatusMismatch
	}
	o.PaymentStatus = domain.PaymentStatusProcessing
	o.LastRetryTime = &now
	o.UpdatedAt = now
	cp := *o
	return &cp, nil
}

func (m *Store) UpdateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	cp := *order
	m.orders[order.OrderID] = &cp
	return nil
}

func (m *Store) CountOrdersByPaymentStatus(_ context.Context) (map[domain.PaymentStatus]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.PaymentStatus]int64, len(domain.PaymentStatuses))
	for _, o := range m.orders {
		counts[o.PaymentStatus]++
	}
	return counts, nil
}

// ──────────────────────────────────────────────────
// Transactions
// ──────────────────────────────────────────────────

func (m *Store) CreateTransaction(_ context.Context, tx *domain.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextTxID++
	tx.ID = m.nextTxID
	cp := *tx
	m.transactions[tx.OrderID] = append(m.transactions[tx.OrderID], &cp)
	return nil
}

func (m *Store) UpdateTransaction(_ context.Context, tx *domain.PaymentTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.transactions[tx.OrderID] {
		if existing.ID == tx.ID {
			cp := *tx
			m.transactions[tx.OrderID][i] = &cp
			return nil
		}
	}
	return fmt.Errorf("failed to update transaction: id %d not found", tx.ID)
}

func (m *Store) ListTransactions(_ context.Context, orderID string) ([]domain.PaymentTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]domain.PaymentTransaction, 0, len(m.transactions[orderID]))
	for _, tx := range m.transactions[orderID] {
		result = append(result, *tx)
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].AttemptNumber < result[k].AttemptNumber
	})
	return result, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// after orders rows by (created_at DESC, id DESC).
func after(aTime time.Time, aID string, bTime time.Time, bID string) bool {
	if !aTime.Equal(bTime) {
		return aTime.After(bTime)
	}
	return aID > bID
}

// pastCursor reports whether a row sorts strictly after the cursor position.
func pastCursor(createdAt time.Time, id string, c *storage.Cursor) bool {
	return after(c.CreatedAt, c.ID, createdAt, id)
}

// limit keeps one extra row so the caller can detect a next page.
func limit[T any](rows []T, pageSize int) []T {
	if pageSize > 0 && len(rows) > pageSize+1 {
		return rows[:pageSize+1]
	}
	return rows
}
