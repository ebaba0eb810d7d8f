package subscription

import "errors"

var (
	// ErrSubscriptionNotFound is returned by stores when no row matches.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrPurchaseDetailRequired is returned when an operation that needs a
	// purchase payload is called without one.
	ErrPurchaseDetailRequired = errors.New("purchase detail is required")

	// ErrPersistenceFailed wraps storage errors surfaced by the sync service.
	ErrPersistenceFailed = errors.New("failed to persist subscription state")

	// ErrMachineClosed is returned when an operation is attempted on a
	// closed machine.
	ErrMachineClosed = errors.New("subscription machine is closed")

	// ErrWebhookVerificationFailed is returned when a billing webhook fails
	// signature verification.
	ErrWebhookVerificationFailed = errors.New("webhook signature verification failed")
)

// IsNotFoundError reports whether err indicates a missing subscription row.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSubscriptionNotFound)
}
