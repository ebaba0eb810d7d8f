package subscription

import "time"

// PurchaseDetail is the normalized purchase payload delivered by a billing
// provider. A zero BillingExpiry means the provider did not supply one.
type PurchaseDetail struct {
	ProductID     string
	PlanID        string
	PurchaseToken string
	AccountID     string
	ProviderState int
	Payload       string
	BillingExpiry time.Time
}

// BillingResult is a provider response code attached to failure events.
type BillingResult struct {
	Code    int
	Message string
}

// SubscriptionStatus is the persisted subscription row. At most one row per
// account is treated as current.
type SubscriptionStatus struct {
	ID            int64
	AccountID     string
	ProductID     string
	PlanID        string
	PurchaseToken string
	Status        int
	BillingExpiry time.Time
	AccountExpiry time.Time
	SessionToken  string
	Payload       string
	UpdatedAt     time.Time
}

// BillingExpired reports whether the billing period has lapsed. A zero
// expiry never expires.
func (s *SubscriptionStatus) BillingExpired(now time.Time) bool {
	return !s.BillingExpiry.IsZero() && now.After(s.BillingExpiry)
}

// AccountValid reports whether the account-level entitlement window is
// still open.
func (s *SubscriptionStatus) AccountValid(now time.Time) bool {
	return !s.AccountExpiry.IsZero() && s.AccountExpiry.After(now)
}

// StateHistory is a single persisted transition audit row.
type StateHistory struct {
	ID             int64
	SubscriptionID int64
	FromStatus     int
	ToStatus       int
	Reason         string
	CreatedAt      time.Time
}

// SubscriptionData is the machine's context payload. It is replaced
// wholesale when an event carries fresh data and mutated in place by
// transition actions otherwise.
type SubscriptionData struct {
	Status    *SubscriptionStatus
	Purchase  *PurchaseDetail
	UpdatedAt time.Time
}

// InGracePeriod reports whether a cancelled subscription still has paid
// time left on its billing period. A row without a known expiry has no
// grace period.
func (d *SubscriptionData) InGracePeriod(now time.Time) bool {
	if d == nil || d.Status == nil {
		return false
	}
	return d.Status.Status == StatusCancelled &&
		!d.Status.BillingExpiry.IsZero() &&
		!d.Status.BillingExpired(now)
}

// RemainingGrace returns how much paid time is left before a cancelled
// subscription lapses, or zero when none remains.
func (d *SubscriptionData) RemainingGrace(now time.Time) time.Duration {
	if !d.InGracePeriod(now) {
		return 0
	}
	return d.Status.BillingExpiry.Sub(now)
}
