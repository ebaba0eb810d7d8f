package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rethinkdns/substate/pkg/config"
	"github.com/rethinkdns/substate/pkg/subscription"
)

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config.ResetCache()

		s, err := subscription.LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, "substate:subscription:current", s.CacheKey)
		assert.Equal(t, 5*time.Minute, s.CacheTTL)
		assert.Equal(t, 12*time.Hour, s.SystemCheckInterval)
	})

	t.Run("from environment", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("SUBSTATE_CACHE_TTL", "90s")
		t.Setenv("SUBSTATE_SYSTEM_CHECK_INTERVAL", "1h")

		s, err := subscription.LoadSettings()
		require.NoError(t, err)
		assert.Equal(t, 90*time.Second, s.CacheTTL)
		assert.Equal(t, time.Hour, s.SystemCheckInterval)

		config.ResetCache()
	})
}

func TestRunSystemChecks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := subscription.New(subscription.NewSyncService(subscription.NewMemStore(), subscription.NewMemHistoryStore()))
	defer m.Close()

	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.PaymentSuccessful(ctx, testPurchase("tok-ticker")))
	require.NoError(t, m.UserCancelled(ctx))
	require.Equal(t, subscription.StateCancelled, m.CurrentState())

	go subscription.RunSystemChecks(ctx, m, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return m.CurrentState() == subscription.StateInitial
	}, time.Second, 5*time.Millisecond)
}
