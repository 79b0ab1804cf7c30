package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]any)

	defaultEnvLoaded sync.Once
)

// Load parses environment variables into the provided configuration struct.
//
// The first call loads the default .env file if one exists, then each unique
// configuration type is parsed once and cached for the lifetime of the
// process. Subsequent loads of the same type return the cached copy, so every
// subsystem observes identical configuration regardless of load order.
func Load[T any](v *T) error {
	defaultEnvLoaded.Do(func() {
		// The .env file is optional; missing is not an error.
		_ = godotenv.Load()
	})
	if v == nil {
		return ErrNilPointer
	}

	typeName := typeNameOf[T]()

	cacheMu.RLock()
	if cached, ok := cache[typeName]; ok {
		*v = cached.(T)
		cacheMu.RUnlock()
		return nil
	}
	cacheMu.RUnlock()

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached, ok := cache[typeName]; ok {
		// Another goroutine parsed concurrently; its copy wins to keep all
		// readers consistent.
		*v = cached.(T)
		return nil
	}
	cache[typeName] = *v
	return nil
}

// MustLoad works like Load but panics if configuration loading fails. Use it
// for configuration the application cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

func typeNameOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return fmt.Sprintf("%T", *new(T))
	}
	return t.String()
}
