package subscription

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rethinkdns/substate/pkg/pg"
)

// PGStore is a Store backed by PostgreSQL. Expiry columns are nullable;
// NULL maps to the zero time.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL store over the given pool. It panics if
// pool is nil, as this is a programming error.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	if pool == nil {
		panic("subscription: pg pool is required")
	}
	return &PGStore{pool: pool}
}

const statusColumns = `id, account_id, product_id, plan_id, purchase_token, status,
	billing_expiry, account_expiry, session_token, payload, updated_at`

func (s *PGStore) Current(ctx context.Context) (*SubscriptionStatus, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+statusColumns+`
		FROM subscription_status
		ORDER BY updated_at DESC
		LIMIT 1`)
	return scanStatus(row)
}

func (s *PGStore) ByPurchaseToken(ctx context.Context, token string) (*SubscriptionStatus, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+statusColumns+`
		FROM subscription_status
		WHERE purchase_token = $1`, token)
	return scanStatus(row)
}

func (s *PGStore) Insert(ctx context.Context, sub *SubscriptionStatus) (*SubscriptionStatus, error) {
	stored := cloneStatus(sub)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscription_status (
			account_id, product_id, plan_id, purchase_token, status,
			billing_expiry, account_expiry, session_token, payload, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		stored.AccountID, stored.ProductID, stored.PlanID, stored.PurchaseToken, stored.Status,
		nullableTime(stored.BillingExpiry), nullableTime(stored.AccountExpiry),
		stored.SessionToken, stored.Payload, stored.UpdatedAt,
	).Scan(&stored.ID)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *PGStore) Update(ctx context.Context, sub *SubscriptionStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscription_status
		SET account_id = $2, product_id = $3, plan_id = $4, purchase_token = $5,
			status = $6, billing_expiry = $7, account_expiry = $8,
			session_token = $9, payload = $10, updated_at = $11
		WHERE id = $1`,
		sub.ID, sub.AccountID, sub.ProductID, sub.PlanID, sub.PurchaseToken,
		sub.Status, nullableTime(sub.BillingExpiry), nullableTime(sub.AccountExpiry),
		sub.SessionToken, sub.Payload, time.Now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id int64, status int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscription_status
		SET status = $2, updated_at = now()
		WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PGStore) UpdateExpiry(ctx context.Context, id int64, billing, account time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscription_status
		SET billing_expiry = $2, account_expiry = $3, updated_at = now()
		WHERE id = $1`, id, nullableTime(billing), nullableTime(account))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PGStore) MarkExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscription_status
		SET status = $2, updated_at = $1
		WHERE status IN ($3, $4)
		  AND billing_expiry IS NOT NULL AND billing_expiry < $1
		  AND (account_expiry IS NULL OR account_expiry < $1)`,
		now, StatusExpired, StatusActive, StatusCancelled)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type pgRow interface {
	Scan(dest ...any) error
}

func scanStatus(row pgRow) (*SubscriptionStatus, error) {
	var (
		sub              SubscriptionStatus
		billing, account *time.Time
	)
	err := row.Scan(
		&sub.ID, &sub.AccountID, &sub.ProductID, &sub.PlanID, &sub.PurchaseToken,
		&sub.Status, &billing, &account, &sub.SessionToken, &sub.Payload, &sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	if billing != nil {
		sub.BillingExpiry = *billing
	}
	if account != nil {
		sub.AccountExpiry = *account
	}
	return &sub, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// PGHistoryStore is a HistoryStore backed by PostgreSQL.
type PGHistoryStore struct {
	pool *pgxpool.Pool
}

// NewPGHistoryStore creates a PostgreSQL history store over the given pool.
// It panics if pool is nil, as this is a programming error.
func NewPGHistoryStore(pool *pgxpool.Pool) *PGHistoryStore {
	if pool == nil {
		panic("subscription: pg pool is required")
	}
	return &PGHistoryStore{pool: pool}
}

func (s *PGHistoryStore) Insert(ctx context.Context, row *StateHistory) (*StateHistory, error) {
	stored := *row
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO subscription_state_history (
			subscription_id, from_status, to_status, reason, created_at
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		stored.SubscriptionID, stored.FromStatus, stored.ToStatus, stored.Reason, stored.CreatedAt,
	).Scan(&stored.ID)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PGHistoryStore) BySubscription(ctx context.Context, subscriptionID int64) ([]StateHistory, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, subscription_id, from_status, to_status, reason, created_at
		FROM subscription_state_history
		WHERE subscription_id = $1
		ORDER BY created_at DESC, id DESC`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateHistory
	for rows.Next() {
		var h StateHistory
		if err := rows.Scan(&h.ID, &h.SubscriptionID, &h.FromStatus, &h.ToStatus, &h.Reason, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
