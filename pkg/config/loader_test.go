package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rethinkdns/substate/pkg/config"
)

type testConfig struct {
	Name    string `env:"SUBSTATE_TEST_NAME" envDefault:"fallback"`
	Retries int    `env:"SUBSTATE_TEST_RETRIES" envDefault:"3"`
}

type requiredConfig struct {
	Token string `env:"SUBSTATE_TEST_REQUIRED,required"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults apply", func(t *testing.T) {
		config.ResetCache()

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "fallback", cfg.Name)
		assert.Equal(t, 3, cfg.Retries)
	})

	t.Run("env overrides defaults", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("SUBSTATE_TEST_NAME", "from-env")
		t.Setenv("SUBSTATE_TEST_RETRIES", "7")

		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-env", cfg.Name)
		assert.Equal(t, 7, cfg.Retries)
	})

	t.Run("cached per type", func(t *testing.T) {
		config.ResetCache()
		t.Setenv("SUBSTATE_TEST_NAME", "first")

		var first testConfig
		require.NoError(t, config.Load(&first))

		// Change the environment; the cached value must win.
		t.Setenv("SUBSTATE_TEST_NAME", "second")
		var again testConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, "first", again.Name)
	})

	t.Run("missing required variable fails", func(t *testing.T) {
		config.ResetCache()

		var cfg requiredConfig
		err := config.Load(&cfg)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("nil pointer rejected", func(t *testing.T) {
		config.ResetCache()
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})
}
