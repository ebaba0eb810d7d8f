package subscription

import (
	"context"
	"time"
)

// RPNManager controls the proxy tunnel tied to a paid subscription. All
// calls made by the machine are fire-and-forget background tasks; a failed
// call never blocks or reverts a state transition.
type RPNManager interface {
	// Activate enables the proxy for the given purchase.
	Activate(ctx context.Context, detail *PurchaseDetail) error

	// Deactivate disables the proxy.
	Deactivate(ctx context.Context, reason string) error

	// IsActive reports whether the proxy is currently enabled.
	IsActive(ctx context.Context) bool

	// ProcessPurchase registers a purchase with the proxy backend.
	ProcessPurchase(ctx context.Context, detail *PurchaseDetail, statusCode int) error

	// ExpiryFromPayload extracts the billing expiry embedded in a provider
	// payload, or a zero time when none is present.
	ExpiryFromPayload(payload string) (time.Time, error)

	// SessionTokenFromPayload extracts the proxy session token embedded in
	// a provider payload, or an empty string when none is present.
	SessionTokenFromPayload(payload string) (string, error)
}

// NoopRPN is an RPNManager that does nothing. It is the default when no
// proxy integration is wired.
type NoopRPN struct{}

func (NoopRPN) Activate(context.Context, *PurchaseDetail) error { return nil }

func (NoopRPN) Deactivate(context.Context, string) error { return nil }

func (NoopRPN) IsActive(context.Context) bool { return false }

func (NoopRPN) ProcessPurchase(context.Context, *PurchaseDetail, int) error { return nil }

func (NoopRPN) ExpiryFromPayload(string) (time.Time, error) { return time.Time{}, nil }

func (NoopRPN) SessionTokenFromPayload(string) (string, error) { return "", nil }
