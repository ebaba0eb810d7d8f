package subscription_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rethinkdns/substate/pkg/subscription"
)

const webhookSecret = "pdl_ntfset_test_secret"

// signPayload produces a Paddle-Signature header value for the payload:
// HMAC-SHA256 over "<ts>:<body>" keyed with the notification secret.
func signPayload(payload []byte) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write([]byte(ts + ":"))
	mac.Write(payload)
	return fmt.Sprintf("ts=%s;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newTestWebhook(t *testing.T) *subscription.PaddleWebhook {
	t.Helper()
	hook, err := subscription.NewPaddleWebhook(subscription.PaddleConfig{WebhookSecret: webhookSecret}, nil)
	require.NoError(t, err)
	return hook
}

func newActiveMachine(t *testing.T, ctx context.Context) *subscription.Machine {
	t.Helper()
	m := subscription.New(subscription.NewSyncService(subscription.NewMemStore(), subscription.NewMemHistoryStore()))
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.PaymentSuccessful(ctx, testPurchase("sub_123")))
	require.Equal(t, subscription.StateActive, m.CurrentState())
	return m
}

func TestNewPaddleWebhookRequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := subscription.NewPaddleWebhook(subscription.PaddleConfig{}, nil)
	assert.Error(t, err)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	hook := newTestWebhook(t)
	m := newActiveMachine(t, ctx)

	payload := []byte(`{"event_id":"evt_1","event_type":"subscription.canceled","data":{"id":"sub_123"}}`)
	err := hook.HandleWebhook(ctx, m, payload, "ts=1;h1=deadbeef")
	assert.ErrorIs(t, err, subscription.ErrWebhookVerificationFailed)
	assert.Equal(t, subscription.StateActive, m.CurrentState())
}

func TestHandleWebhookCancellation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	hook := newTestWebhook(t)
	m := newActiveMachine(t, ctx)

	payload := []byte(`{"event_id":"evt_2","event_type":"subscription.canceled","data":{"id":"sub_123","custom_data":{"account_id":"acct-1"}}}`)
	require.NoError(t, hook.HandleWebhook(ctx, m, payload, signPayload(payload)))
	assert.Equal(t, subscription.StateCancelled, m.CurrentState())
}

func TestHandleWebhookActivation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	hook := newTestWebhook(t)
	store := subscription.NewMemStore()
	m := subscription.New(subscription.NewSyncService(store, subscription.NewMemHistoryStore()))
	t.Cleanup(func() { _ = m.Close() })
	require.NoError(t, m.Initialize(ctx))

	payload := []byte(`{
		"event_id": "evt_3",
		"event_type": "transaction.completed",
		"data": {
			"id": "txn_1",
			"subscription_id": "sub_456",
			"custom_data": {"account_id": "acct-1"},
			"items": [{"price_id": "pri_monthly"}],
			"current_billing_period": {"ends_at": "2027-01-01T00:00:00Z"}
		}
	}`)
	require.NoError(t, hook.HandleWebhook(ctx, m, payload, signPayload(payload)))
	assert.Equal(t, subscription.StateActive, m.CurrentState())

	row, err := store.ByPurchaseToken(ctx, "sub_456")
	require.NoError(t, err)
	assert.Equal(t, "pri_monthly", row.PlanID)
	assert.Equal(t, "acct-1", row.AccountID)
	assert.Equal(t, 2027, row.BillingExpiry.Year())
}

func TestHandleWebhookIgnoresUnknownEvents(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	hook := newTestWebhook(t)
	m := newActiveMachine(t, ctx)

	payload := []byte(`{"event_id":"evt_4","event_type":"address.created","data":{"id":"add_1"}}`)
	require.NoError(t, hook.HandleWebhook(ctx, m, payload, signPayload(payload)))
	assert.Equal(t, subscription.StateActive, m.CurrentState())
}
