package subscription

import (
	"context"
	"time"

	"github.com/rethinkdns/substate/pkg/config"
)

// Settings is the environment-driven configuration of the subscription
// subsystem.
type Settings struct {
	CacheKey            string        `env:"SUBSTATE_CACHE_KEY" envDefault:"substate:subscription:current"`
	CacheTTL            time.Duration `env:"SUBSTATE_CACHE_TTL" envDefault:"5m"`
	SystemCheckInterval time.Duration `env:"SUBSTATE_SYSTEM_CHECK_INTERVAL" envDefault:"12h"`
}

// LoadSettings reads Settings from the environment.
func LoadSettings() (Settings, error) {
	var s Settings
	if err := config.Load(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// RunSystemChecks fires a system check on every tick until ctx is done. It
// blocks and is meant to run in its own goroutine:
//
//	go subscription.RunSystemChecks(ctx, m, settings.SystemCheckInterval)
func RunSystemChecks(ctx context.Context, m *Machine, interval time.Duration) {
	if interval <= 0 {
		interval = 12 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = m.SystemCheck(ctx)
		}
	}
}
