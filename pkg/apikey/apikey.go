package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Prefix identifies flagkit credentials. It is part of the wire contract:
// clients send the full key in the X-API-Key header and the server recovers
// the environment key from the middle segment.
const Prefix = "ffk"

const randomBytes = 16

var envKeyRe = regexp.MustCompile(`^[a-z0-9-]+$`)

// Environment is a deployment context (production, staging, ...) within a
// project. Its KeyHash is the only secret at rest; the plaintext credential
// is generated once and never persisted.
type Environment struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	KeyHash   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// EnvironmentStorage defines the storage operations credential management
// needs. Environment keys are not unique across projects, so GetByKey returns
// every candidate.
type EnvironmentStorage interface {
	GetEnvironmentsByKey(ctx context.Context, key string) ([]*Environment, error)
	GetEnvironmentByID(ctx context.Context, id uuid.UUID) (*Environment, error)
	UpdateKeyHash(ctx context.Context, id uuid.UUID, hash []byte) error
}

// Service generates, verifies and rotates per-environment API keys.
type Service struct {
	storage    EnvironmentStorage
	bcryptCost int
}

// Option configures the Service.
type Option func(*Service)

// WithBcryptCost overrides the hashing cost. Lower it in tests to keep them
// fast; production should keep the default.
func WithBcryptCost(cost int) Option {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		panic(fmt.Sprintf("apikey: bcrypt cost must be in [%d,%d]", bcrypt.MinCost, bcrypt.MaxCost))
	}
	return func(s *Service) { s.bcryptCost = cost }
}

// NewService creates a credential manager on top of the given storage.
func NewService(storage EnvironmentStorage, opts ...Option) *Service {
	s := &Service{
		storage:    storage,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateEnvironmentKey rejects environment keys that would break the
// credential format: only lowercase alphanumerics and dashes are allowed,
// since "_" is the segment separator.
func ValidateEnvironmentKey(key string) error {
	if !envKeyRe.MatchString(key) {
		return errors.Join(ErrInvalidEnvironmentKey, fmt.Errorf("got %q", key))
	}
	return nil
}

// Generate produces a fresh plaintext credential for the environment key.
// The caller is responsible for hashing it before storage; the plaintext
// must never be persisted.
func (s *Service) Generate(environmentKey string) (string, error) {
	if err := ValidateEnvironmentKey(environmentKey); err != nil {
		return "", err
	}

	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Join(ErrOperationFailed, err)
	}
	return fmt.Sprintf("%s_%s_%s", Prefix, environmentKey, hex.EncodeToString(buf)), nil
}

// Hash derives the stored form of a plaintext credential. bcrypt embeds its
// own salt, so equal plaintexts produce distinct hashes.
func (s *Service) Hash(plaintext string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.bcryptCost)
	if err != nil {
		return nil, errors.Join(ErrOperationFailed, err)
	}
	return hash, nil
}

// Verify resolves a presented credential to its environment. It returns
// ErrInvalidKey for malformed keys (wrong prefix, too few segments) and when
// no candidate environment's hash matches. Each candidate costs one bcrypt
// comparison.
func (s *Service) Verify(ctx context.Context, plaintext string) (*Environment, error) {
	parts := strings.Split(plaintext, "_")
	if len(parts) < 3 || parts[0] != Prefix {
		return nil, ErrInvalidKey
	}
	envKey := parts[1]

	candidates, err := s.storage.GetEnvironmentsByKey(ctx, envKey)
	if err != nil {
		return nil, errors.Join(ErrOperationFailed, err)
	}

	for _, env := range candidates {
		if bcrypt.CompareHashAndPassword(env.KeyHash, []byte(plaintext)) == nil {
			return env, nil
		}
	}
	return nil, ErrInvalidKey
}

// Rotate replaces the environment's credential with a freshly generated one
// and returns the new plaintext exactly once. The previous key stops
// verifying as soon as the stored hash is replaced; there is no grace window.
func (s *Service) Rotate(ctx context.Context, environmentID uuid.UUID) (string, error) {
	env, err := s.storage.GetEnvironmentByID(ctx, environmentID)
	if err != nil {
		return "", err
	}
	if env == nil {
		return "", ErrEnvironmentNotFound
	}

	plaintext, err := s.Generate(env.Key)
	if err != nil {
		return "", err
	}
	hash, err := s.Hash(plaintext)
	if err != nil {
		return "", err
	}
	if err := s.storage.UpdateKeyHash(ctx, environmentID, hash); err != nil {
		return "", errors.Join(ErrOperationFailed, err)
	}
	return plaintext, nil
}
