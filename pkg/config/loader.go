package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// configCache stores parsed configuration structs so every type is loaded
// exactly once per process.
type configCache struct {
	mu     sync.RWMutex
	values map[string]any
}

var (
	globalCache = &configCache{
		values: make(map[string]any),
	}

	defaultEnvLoaded sync.Once
)

// LoadEnv loads the given dotenv files into the process environment before
// any config struct is parsed. Later files win on conflicting keys.
func LoadEnv(paths ...string) error {
	if err := godotenv.Overload(paths...); err != nil {
		return errors.Join(ErrFailedToLoadEnvFile, err)
	}
	return nil
}

// Load populates v from the environment based on `env` field tags.
// The default .env file is loaded once, lazily, if present. Each unique
// configuration type is parsed once and cached for subsequent calls.
//
//	type PGConfig struct {
//	    ConnURL string `env:"PG_CONN_URL,required"`
//	}
//
//	var cfg PGConfig
//	if err := config.Load(&cfg); err != nil { ... }
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// The .env file is optional; a missing file is not an error.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	typeName := getTypeName[T]()

	globalCache.mu.RLock()
	if cached, ok := globalCache.values[typeName]; ok {
		*v = cached.(T)
		globalCache.mu.RUnlock()
		return nil
	}
	globalCache.mu.RUnlock()

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	globalCache.mu.Lock()
	// Another goroutine may have won the race; keep the first parsed value.
	if cached, ok := globalCache.values[typeName]; ok {
		*v = cached.(T)
	} else {
		globalCache.values[typeName] = *v
	}
	globalCache.mu.Unlock()

	return nil
}

// MustLoad works like Load but panics on failure. Use for configuration the
// application cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// ResetCache clears cached configuration values. Intended for tests.
func ResetCache() {
	globalCache.mu.Lock()
	defer globalCache.mu.Unlock()
	globalCache.values = make(map[string]any)
}

// getTypeName returns a string identifier for the generic type T.
func getTypeName[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
