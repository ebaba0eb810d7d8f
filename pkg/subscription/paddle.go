package subscription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds the Paddle billing provider configuration.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
}

// PaddleWebhook verifies and translates Paddle webhook deliveries into
// lifecycle triggers on a Machine.
type PaddleWebhook struct {
	verifier *paddle.WebhookVerifier
	log      *slog.Logger
}

// NewPaddleWebhook creates a webhook handler. The secret is the signing
// secret from the Paddle notification settings.
func NewPaddleWebhook(cfg PaddleConfig, log *slog.Logger) (*PaddleWebhook, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.New("paddle webhook secret is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PaddleWebhook{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		log:      log,
	}, nil
}

// paddleEvent is the envelope Paddle wraps every notification in.
type paddleEvent struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

// HandleWebhook verifies a delivery and applies it to the machine. An event
// type the machine has no use for is acknowledged and dropped; returning an
// error would make Paddle redeliver it forever.
func (p *PaddleWebhook) HandleWebhook(ctx context.Context, m *Machine, payload []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build verification request: %w", err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return errors.Join(ErrWebhookVerificationFailed, err)
	}
	if !valid {
		return ErrWebhookVerificationFailed
	}

	var event paddleEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	detail := purchaseFromPaddle(event.Data, string(payload))
	p.log.InfoContext(ctx, "paddle webhook received",
		slog.String("event_id", event.EventID),
		slog.String("event_type", event.EventType),
	)

	switch event.EventType {
	case "subscription.created":
		return m.CompletePurchase(ctx, detail)
	case "subscription.activated", "transaction.completed":
		return m.PaymentSuccessful(ctx, detail)
	case "subscription.resumed":
		if m.CurrentState().IsActive() {
			return m.PaymentSuccessful(ctx, detail)
		}
		return m.RestoreSubscription(ctx, detail)
	case "subscription.canceled":
		return m.UserCancelled(ctx)
	case "subscription.past_due":
		return m.BillingError(ctx, fmt.Errorf("paddle subscription past due: %s", event.EventID), nil)
	case "transaction.payment_failed":
		return m.PurchaseFailed(ctx, fmt.Errorf("paddle payment failed: %s", event.EventID), nil)
	default:
		p.log.DebugContext(ctx, "ignoring unhandled paddle event",
			slog.String("event_type", event.EventType),
		)
		return nil
	}
}

// purchaseFromPaddle maps a Paddle notification body to a normalized
// purchase. The subscription or transaction ID doubles as the purchase
// token, which keeps upserts idempotent across redeliveries.
func purchaseFromPaddle(data map[string]any, payload string) *PurchaseDetail {
	detail := &PurchaseDetail{Payload: payload}

	if id, ok := data["subscription_id"].(string); ok && id != "" {
		detail.PurchaseToken = id
	} else if id, ok := data["id"].(string); ok {
		detail.PurchaseToken = id
	}
	if customData, ok := data["custom_data"].(map[string]any); ok {
		if accountID, ok := customData["account_id"].(string); ok {
			detail.AccountID = accountID
		}
	}
	if items, ok := data["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			if priceID, ok := item["price_id"].(string); ok {
				detail.PlanID = priceID
			} else if price, ok := item["price"].(map[string]any); ok {
				if priceID, ok := price["id"].(string); ok {
					detail.PlanID = priceID
				}
				if productID, ok := price["product_id"].(string); ok {
					detail.ProductID = productID
				}
			}
		}
	}
	if period, ok := data["current_billing_period"].(map[string]any); ok {
		if endsAt, ok := period["ends_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, endsAt); err == nil {
				detail.BillingExpiry = t
			}
		}
	}
	return detail
}
