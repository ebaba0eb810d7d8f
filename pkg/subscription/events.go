package subscription

// EventKind discriminates lifecycle events. Transition lookup keys on the
// kind alone, so two events with the same kind but different payloads always
// select the same transition row.
type EventKind string

const (
	EventInitialize           EventKind = "initialize"
	EventPurchaseInitiated    EventKind = "purchase_initiated"
	EventPurchaseCompleted    EventKind = "purchase_completed"
	EventPaymentSuccessful    EventKind = "payment_successful"
	EventPurchaseFailed       EventKind = "purchase_failed"
	EventUserCancelled        EventKind = "user_cancelled"
	EventSubscriptionExpired  EventKind = "subscription_expired"
	EventSubscriptionRevoked  EventKind = "subscription_revoked"
	EventSubscriptionRestored EventKind = "subscription_restored"
	EventBillingError         EventKind = "billing_error"
	EventDatabaseError        EventKind = "database_error"
	EventErrorRecovered       EventKind = "error_recovered"
	EventSystemCheck          EventKind = "system_check"
)

// Event is a lifecycle trigger. Kind selects the transition; the remaining
// fields carry the payload the selected action needs, if any. Guards verify
// payload presence before the action runs.
type Event struct {
	Kind     EventKind
	Purchase *PurchaseDetail
	Err      error
	Result   *BillingResult
	Reason   string
}

// Name implements statemachine.Event.
func (e Event) Name() string {
	return string(e.Kind)
}

// NewEvent returns a payload-free event of the given kind.
func NewEvent(kind EventKind) Event {
	return Event{Kind: kind}
}

// NewPurchaseEvent returns an event carrying purchase details.
func NewPurchaseEvent(kind EventKind, detail *PurchaseDetail) Event {
	return Event{Kind: kind, Purchase: detail}
}

// NewErrorEvent returns an event carrying a failure cause and, when the
// billing provider supplied one, its result code.
func NewErrorEvent(kind EventKind, err error, result *BillingResult) Event {
	return Event{Kind: kind, Err: err, Result: result}
}
