package subscription

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store. It is safe for concurrent use and keeps
// rows for as long as the process lives.
type MemStore struct {
	mu      sync.RWMutex
	rows    map[int64]*SubscriptionStatus
	byToken map[string]int64
	nextID  int64
	current int64
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		rows:    make(map[int64]*SubscriptionStatus),
		byToken: make(map[string]int64),
		nextID:  1,
	}
}

func (s *MemStore) Current(_ context.Context) (*SubscriptionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[s.current]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneStatus(row), nil
}

func (s *MemStore) ByPurchaseToken(_ context.Context, token string) (*SubscriptionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byToken[token]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneStatus(s.rows[id]), nil
}

func (s *MemStore) Insert(_ context.Context, row *SubscriptionStatus) (*SubscriptionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneStatus(row)
	stored.ID = s.nextID
	s.nextID++
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	s.rows[stored.ID] = stored
	if stored.PurchaseToken != "" {
		s.byToken[stored.PurchaseToken] = stored.ID
	}
	s.current = stored.ID
	return cloneStatus(stored), nil
}

func (s *MemStore) Update(_ context.Context, row *SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.rows[row.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if stored.PurchaseToken != row.PurchaseToken {
		delete(s.byToken, stored.PurchaseToken)
		if row.PurchaseToken != "" {
			s.byToken[row.PurchaseToken] = row.ID
		}
	}
	s.rows[row.ID] = cloneStatus(row)
	s.current = row.ID
	return nil
}

func (s *MemStore) UpdateStatus(_ context.Context, id int64, status int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	row.Status = status
	row.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) UpdateExpiry(_ context.Context, id int64, billing, account time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	row.BillingExpiry = billing
	row.AccountExpiry = account
	row.UpdatedAt = time.Now()
	return nil
}

func (s *MemStore) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, row := range s.rows {
		if row.Status != StatusActive && row.Status != StatusCancelled {
			continue
		}
		if !row.BillingExpired(now) || row.AccountValid(now) {
			continue
		}
		row.Status = StatusExpired
		row.UpdatedAt = now
		count++
	}
	return count, nil
}

// RowCount returns how many rows the store holds.
func (s *MemStore) RowCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func cloneStatus(row *SubscriptionStatus) *SubscriptionStatus {
	if row == nil {
		return nil
	}
	c := *row
	return &c
}

// MemHistoryStore is an in-memory HistoryStore.
type MemHistoryStore struct {
	mu     sync.RWMutex
	rows   []StateHistory
	nextID int64
}

// NewMemHistoryStore creates an empty in-memory history store.
func NewMemHistoryStore() *MemHistoryStore {
	return &MemHistoryStore{nextID: 1}
}

func (s *MemHistoryStore) Insert(_ context.Context, row *StateHistory) (*StateHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *row
	stored.ID = s.nextID
	s.nextID++
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.rows = append(s.rows, stored)
	return &stored, nil
}

func (s *MemHistoryStore) BySubscription(_ context.Context, subscriptionID int64) ([]StateHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []StateHistory
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].SubscriptionID == subscriptionID {
			out = append(out, s.rows[i])
		}
	}
	return out, nil
}

// All returns every audit row, oldest first.
func (s *MemHistoryStore) All() []StateHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]StateHistory(nil), s.rows...)
}
