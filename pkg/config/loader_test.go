package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/flagkit/pkg/config"
)

type testConfig struct {
	Addr string        `env:"TEST_LOADER_ADDR" envDefault:":8080"`
	TTL  time.Duration `env:"TEST_LOADER_TTL" envDefault:"60s"`
}

type requiredConfig struct {
	Secret string `env:"TEST_LOADER_REQ_SECRET,required"`
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, time.Minute, cfg.TTL)
	})

	t.Run("FromEnvironment", func(t *testing.T) {
		t.Setenv("TEST_LOADER_ADDR", ":9999")

		type envConfig struct {
			Addr string `env:"TEST_LOADER_ADDR" envDefault:":8080"`
		}
		var cfg envConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":9999", cfg.Addr)
	})

	t.Run("CachedAfterFirstLoad", func(t *testing.T) {
		var first testConfig
		require.NoError(t, config.Load(&first))

		// Changing the environment after the first load has no effect; the
		// cached copy wins for the lifetime of the process.
		t.Setenv("TEST_LOADER_ADDR", ":7777")
		var second testConfig
		require.NoError(t, config.Load(&second))
		assert.Equal(t, first.Addr, second.Addr)
	})

	t.Run("NilPointer", func(t *testing.T) {
		err := config.Load[testConfig](nil)
		assert.ErrorIs(t, err, config.ErrNilPointer)
	})

	t.Run("MissingRequired", func(t *testing.T) {
		var cfg requiredConfig
		err := config.Load(&cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, config.ErrParsingConfig)
	})

	t.Run("MustLoadPanics", func(t *testing.T) {
		assert.Panics(t, func() {
			var cfg requiredConfig
			config.MustLoad(&cfg)
		})
	})
}
