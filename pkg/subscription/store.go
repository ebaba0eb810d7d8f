package subscription

import (
	"context"
	"time"
)

// Store persists subscription rows. Implementations must return
// ErrSubscriptionNotFound when a lookup matches nothing.
type Store interface {
	// Current returns the row currently treated as the account's
	// subscription, the most recently updated one.
	Current(ctx context.Context) (*SubscriptionStatus, error)

	// ByPurchaseToken returns the row holding the given provider token.
	ByPurchaseToken(ctx context.Context, token string) (*SubscriptionStatus, error)

	// Insert stores a new row and returns it with its assigned ID.
	Insert(ctx context.Context, row *SubscriptionStatus) (*SubscriptionStatus, error)

	// Update overwrites an existing row by ID.
	Update(ctx context.Context, row *SubscriptionStatus) error

	// UpdateStatus sets the numeric status code of a row.
	UpdateStatus(ctx context.Context, id int64, status int) error

	// UpdateExpiry sets the billing and account expiry of a row.
	UpdateExpiry(ctx context.Context, id int64, billing, account time.Time) error

	// MarkExpired sweeps rows whose paid time has lapsed relative to now,
	// sets them to StatusExpired and returns how many were touched.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
}

// HistoryStore persists transition audit rows.
type HistoryStore interface {
	// Insert appends an audit row and returns it with its assigned ID.
	Insert(ctx context.Context, row *StateHistory) (*StateHistory, error)

	// BySubscription returns audit rows for a subscription, newest first.
	BySubscription(ctx context.Context, subscriptionID int64) ([]StateHistory, error)
}
