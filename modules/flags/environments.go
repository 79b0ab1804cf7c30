package flags

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
)

// EnvironmentService manages environment lifecycle and API key issuance.
// Plaintext keys exist only in the return values of CreateEnvironment and
// RotateKey; storage only ever sees the bcrypt hash.
type EnvironmentService struct {
	envs EnvironmentStore
	keys *apikey.Service
}

// NewEnvironmentService wires the environment lifecycle service.
func NewEnvironmentService(envStore EnvironmentStore, keys *apikey.Service) *EnvironmentService {
	return &EnvironmentService{
		envs: envStore,
		keys: keys,
	}
}

// CreateEnvironment provisions a named environment under the project and
// issues its API key. The plaintext key is returned exactly once; it cannot
// be recovered later, only rotated.
func (s *EnvironmentService) CreateEnvironment(ctx context.Context, projectID uuid.UUID, name, envKey string) (*apikey.Environment, string, error) {
	if err := apikey.ValidateEnvironmentKey(envKey); err != nil {
		return nil, "", err
	}

	plaintext, err := s.keys.Generate(envKey)
	if err != nil {
		return nil, "", err
	}
	hash, err := s.keys.Hash(plaintext)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	env := &apikey.Environment{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		Key:       envKey,
		KeyHash:   hash,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.envs.CreateEnvironment(ctx, env); err != nil {
		return nil, "", err
	}

	return env, plaintext, nil
}

// RotateKey replaces the environment's API key, invalidating the previous
// one immediately. Requests in flight that already authenticated keep their
// result; every later request must present the new key.
func (s *EnvironmentService) RotateKey(ctx context.Context, environmentID uuid.UUID) (string, error) {
	return s.keys.Rotate(ctx, environmentID)
}

// GetEnvironment returns the environment by ID.
func (s *EnvironmentService) GetEnvironment(ctx context.Context, environmentID uuid.UUID) (*apikey.Environment, error) {
	return s.envs.GetEnvironmentByID(ctx, environmentID)
}

// DeleteEnvironment removes the environment and its rules.
func (s *EnvironmentService) DeleteEnvironment(ctx context.Context, environmentID uuid.UUID) error {
	return s.envs.DeleteEnvironment(ctx, environmentID)
}
