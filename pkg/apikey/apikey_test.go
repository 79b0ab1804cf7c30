package apikey_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
)

// fakeStorage is an in-memory EnvironmentStorage for tests.
type fakeStorage struct {
	envs map[uuid.UUID]*apikey.Environment
}

func newFakeStorage(envs ...*apikey.Environment) *fakeStorage {
	s := &fakeStorage{envs: make(map[uuid.UUID]*apikey.Environment)}
	for _, env := range envs {
		s.envs[env.ID] = env
	}
	return s
}

func (s *fakeStorage) GetEnvironmentsByKey(_ context.Context, key string) ([]*apikey.Environment, error) {
	var out []*apikey.Environment
	for _, env := range s.envs {
		if env.Key == key {
			out = append(out, env)
		}
	}
	return out, nil
}

func (s *fakeStorage) GetEnvironmentByID(_ context.Context, id uuid.UUID) (*apikey.Environment, error) {
	return s.envs[id], nil
}

func (s *fakeStorage) UpdateKeyHash(_ context.Context, id uuid.UUID, hash []byte) error {
	env, ok := s.envs[id]
	if !ok {
		return apikey.ErrEnvironmentNotFound
	}
	env.KeyHash = hash
	return nil
}

func newTestService(storage apikey.EnvironmentStorage) *apikey.Service {
	return apikey.NewService(storage, apikey.WithBcryptCost(bcrypt.MinCost))
}

func seedEnvironment(t *testing.T, svc *apikey.Service, key string) (*apikey.Environment, string) {
	t.Helper()
	plaintext, err := svc.Generate(key)
	require.NoError(t, err)
	hash, err := svc.Hash(plaintext)
	require.NoError(t, err)
	return &apikey.Environment{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		Name:      "Production",
		Key:       key,
		KeyHash:   hash,
	}, plaintext
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	svc := newTestService(newFakeStorage())

	t.Run("Format", func(t *testing.T) {
		t.Parallel()
		key, err := svc.Generate("production")
		require.NoError(t, err)

		parts := strings.Split(key, "_")
		require.Len(t, parts, 3)
		assert.Equal(t, "ffk", parts[0])
		assert.Equal(t, "production", parts[1])
		assert.Len(t, parts[2], 32, "16 random bytes, hex-encoded")
	})

	t.Run("Unique", func(t *testing.T) {
		t.Parallel()
		a, err := svc.Generate("production")
		require.NoError(t, err)
		b, err := svc.Generate("production")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("RejectsInvalidEnvironmentKey", func(t *testing.T) {
		t.Parallel()
		for _, key := range []string{"", "Prod", "pro_d", "pro d", "pröd"} {
			_, err := svc.Generate(key)
			assert.ErrorIs(t, err, apikey.ErrInvalidEnvironmentKey, "key %q", key)
		}
	})

	t.Run("AllowsDashes", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Generate("my-staging-2")
		assert.NoError(t, err)
	})
}

func TestVerify(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ValidKey", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(newFakeStorage())
		env, plaintext := seedEnvironment(t, svc, "production")
		svc = newTestService(newFakeStorage(env))

		got, err := svc.Verify(ctx, plaintext)
		require.NoError(t, err)
		assert.Equal(t, env.ID, got.ID)
	})

	t.Run("WrongPrefix", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(newFakeStorage())
		_, plaintext := seedEnvironment(t, svc, "production")

		tampered := "xxx" + strings.TrimPrefix(plaintext, "ffk")
		_, err := svc.Verify(ctx, tampered)
		assert.ErrorIs(t, err, apikey.ErrInvalidKey)
	})

	t.Run("TooFewSegments", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(newFakeStorage())
		for _, key := range []string{"", "ffk", "ffk_production", "not-a-key"} {
			_, err := svc.Verify(ctx, key)
			assert.ErrorIs(t, err, apikey.ErrInvalidKey, "key %q", key)
		}
	})

	t.Run("TamperedSuffix", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(newFakeStorage())
		env, plaintext := seedEnvironment(t, svc, "production")
		svc = newTestService(newFakeStorage(env))

		tampered := plaintext[:len(plaintext)-1] + "0"
		if tampered == plaintext {
			tampered = plaintext[:len(plaintext)-1] + "1"
		}
		_, err := svc.Verify(ctx, tampered)
		assert.ErrorIs(t, err, apikey.ErrInvalidKey)
	})

	t.Run("DisambiguatesSharedEnvironmentKey", func(t *testing.T) {
		t.Parallel()
		// Two projects both using "staging": the hash comparison picks the
		// right environment even though the key prefix is identical.
		svc := newTestService(newFakeStorage())
		envA, plaintextA := seedEnvironment(t, svc, "staging")
		envB, plaintextB := seedEnvironment(t, svc, "staging")
		svc = newTestService(newFakeStorage(envA, envB))

		got, err := svc.Verify(ctx, plaintextA)
		require.NoError(t, err)
		assert.Equal(t, envA.ID, got.ID)

		got, err = svc.Verify(ctx, plaintextB)
		require.NoError(t, err)
		assert.Equal(t, envB.ID, got.ID)
	})

	t.Run("UnknownEnvironmentKey", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(newFakeStorage())
		key, err := svc.Generate("ghost")
		require.NoError(t, err)

		_, err = svc.Verify(ctx, key)
		assert.ErrorIs(t, err, apikey.ErrInvalidKey)
	})
}

func TestRotate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("OldKeyInvalidatedImmediately", func(t *testing.T) {
		t.Parallel()
		seeder := newTestService(newFakeStorage())
		env, oldKey := seedEnvironment(t, seeder, "production")
		storage := newFakeStorage(env)
		svc := newTestService(storage)

		newKey, err := svc.Rotate(ctx, env.ID)
		require.NoError(t, err)
		require.NotEqual(t, oldKey, newKey)

		got, err := svc.Verify(ctx, newKey)
		require.NoError(t, err)
		assert.Equal(t, env.ID, got.ID)

		_, err = svc.Verify(ctx, oldKey)
		assert.ErrorIs(t, err, apikey.ErrInvalidKey)
	})

	t.Run("UnknownEnvironment", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(newFakeStorage())
		_, err := svc.Rotate(ctx, uuid.New())
		assert.ErrorIs(t, err, apikey.ErrEnvironmentNotFound)
	})
}

func TestHash(t *testing.T) {
	t.Parallel()

	svc := newTestService(newFakeStorage())

	// bcrypt salts every hash, so the same plaintext never hashes twice to
	// the same value, and the plaintext is not recoverable from either.
	a, err := svc.Hash("ffk_production_00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	b, err := svc.Hash("ffk_production_00112233445566778899aabbccddeeff")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
