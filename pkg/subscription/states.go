package subscription

// State is a discrete node in the subscription lifecycle. Identity is the
// variant itself; all predicates are pure functions of the variant.
type State string

const (
	StateUninitialized     State = "uninitialized"
	StateInitial           State = "initial"
	StatePurchaseInitiated State = "purchase_initiated"
	StatePurchasePending   State = "purchase_pending"
	StateActive            State = "active"
	StateCancelled         State = "cancelled"
	StateExpired           State = "expired"
	StateRevoked           State = "revoked"
	StateError             State = "error"
)

// Name implements statemachine.State.
func (s State) Name() string {
	return string(s)
}

// IsActive reports whether the subscription is currently paid and usable.
func (s State) IsActive() bool {
	return s == StateActive
}

// CanMakePurchase reports whether a new purchase flow may start from this state.
func (s State) CanMakePurchase() bool {
	switch s {
	case StateInitial, StateCancelled, StateExpired, StateRevoked, StateError:
		return true
	}
	return false
}

// HasValidSubscription reports whether the account still has entitlements:
// either an active subscription or a cancelled one inside its grace period.
func (s State) HasValidSubscription() bool {
	return s == StateActive || s == StateCancelled
}

// IsRecoverable reports whether a system check routes this state back to
// Initial. Every terminal-ish state is recoverable so the machine can never
// permanently deadlock.
func (s State) IsRecoverable() bool {
	switch s {
	case StateCancelled, StateExpired, StateRevoked, StateError:
		return true
	}
	return false
}

// Persisted numeric status codes for SubscriptionStatus.Status. The codes
// are part of the storage contract and must not be renumbered.
const (
	StatusUnknown    = 0
	StatusInitiated  = 1
	StatusPurchased  = 2 // paid by the provider, acknowledgement outstanding
	StatusAckPending = 3
	StatusActive     = 4
	StatusCancelled  = 5
	StatusExpired    = 6
	StatusRevoked    = 7
	StatusError      = 8
)

// StatusCode maps a lifecycle state to its persisted numeric code.
func (s State) StatusCode() int {
	switch s {
	case StatePurchaseInitiated:
		return StatusInitiated
	case StatePurchasePending:
		return StatusAckPending
	case StateActive:
		return StatusActive
	case StateCancelled:
		return StatusCancelled
	case StateExpired:
		return StatusExpired
	case StateRevoked:
		return StatusRevoked
	case StateError:
		return StatusError
	default:
		return StatusUnknown
	}
}

// StateFromStatusCode maps a persisted numeric code back to a lifecycle
// state. Unknown codes map to Initial: a row we cannot interpret must not
// grant entitlements.
func StateFromStatusCode(code int) State {
	switch code {
	case StatusInitiated:
		return StatePurchaseInitiated
	case StatusPurchased, StatusAckPending:
		return StatePurchasePending
	case StatusActive:
		return StateActive
	case StatusCancelled:
		return StateCancelled
	case StatusExpired:
		return StateExpired
	case StatusRevoked:
		return StateRevoked
	case StatusError:
		return StateError
	default:
		return StateInitial
	}
}
