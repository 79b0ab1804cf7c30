package flags

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

type ruleKey struct {
	flagID        uuid.UUID
	environmentID uuid.UUID
}

// MemoryStorage is an in-memory Storage implementation for tests and
// single-node deployments. All returned values are copies, so callers can
// never mutate stored state through shared slices.
type MemoryStorage struct {
	mu    sync.RWMutex
	flags map[uuid.UUID]*Flag
	rules map[ruleKey]*evaluation.Rule
	envs  map[uuid.UUID]*apikey.Environment
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		flags: make(map[uuid.UUID]*Flag),
		rules: make(map[ruleKey]*evaluation.Rule),
		envs:  make(map[uuid.UUID]*apikey.Environment),
	}
}

// GetFlagByKey returns the flag with the given key in the project, or nil.
func (s *MemoryStorage) GetFlagByKey(_ context.Context, projectID uuid.UUID, key string) (*Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, flag := range s.flags {
		if flag.ProjectID == projectID && flag.Key == key {
			cp := *flag
			return &cp, nil
		}
	}
	return nil, nil
}

// GetFlagByID returns the flag with the given ID, or nil.
func (s *MemoryStorage) GetFlagByID(_ context.Context, id uuid.UUID) (*Flag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	flag, ok := s.flags[id]
	if !ok {
		return nil, nil
	}
	cp := *flag
	return &cp, nil
}

// CreateFlag persists a new flag definition, validating its key.
func (s *MemoryStorage) CreateFlag(_ context.Context, flag *Flag) error {
	if err := ValidateFlagKey(flag.Key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if flag.ID == uuid.Nil {
		flag.ID = uuid.New()
	}
	now := time.Now()
	flag.CreatedAt = now
	flag.UpdatedAt = now
	if flag.Status == "" {
		flag.Status = FlagStatusActive
	}

	cp := *flag
	s.flags[flag.ID] = &cp
	return nil
}

// GetRule returns the rule for the (flag, environment) pair, or nil.
func (s *MemoryStorage) GetRule(_ context.Context, flagID, environmentID uuid.UUID) (*evaluation.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[ruleKey{flagID: flagID, environmentID: environmentID}]
	if !ok {
		return nil, nil
	}
	cp := rule.Clone()
	return &cp, nil
}

// GetOrCreateRule lazily creates the default rule on first request.
func (s *MemoryStorage) GetOrCreateRule(_ context.Context, flagID, environmentID uuid.UUID) (*evaluation.Rule, error) {
	key := ruleKey{flagID: flagID, environmentID: environmentID}

	s.mu.Lock()
	defer s.mu.Unlock()

	rule, ok := s.rules[key]
	if !ok {
		now := time.Now()
		created := evaluation.DefaultRule()
		created.CreatedAt = now
		created.UpdatedAt = now
		s.rules[key] = &created
		rule = &created
	}
	cp := rule.Clone()
	return &cp, nil
}

// UpdateRule merges the update into the stored rule, creating it if needed.
func (s *MemoryStorage) UpdateRule(_ context.Context, flagID, environmentID uuid.UUID, update RuleUpdate) (*evaluation.Rule, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	key := ruleKey{flagID: flagID, environmentID: environmentID}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	rule, ok := s.rules[key]
	if !ok {
		created := evaluation.DefaultRule()
		created.CreatedAt = now
		rule = &created
		s.rules[key] = rule
	}

	merged := update.Apply(rule.Clone())
	merged.CreatedAt = rule.CreatedAt
	merged.UpdatedAt = now
	s.rules[key] = &merged

	cp := merged.Clone()
	return &cp, nil
}

// GetEnvironmentsByKey returns every environment sharing the key, across
// projects.
func (s *MemoryStorage) GetEnvironmentsByKey(_ context.Context, key string) ([]*apikey.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*apikey.Environment
	for _, env := range s.envs {
		if env.Key == key {
			cp := *env
			out = append(out, &cp)
		}
	}
	return out, nil
}

// GetEnvironmentByID returns the environment, or nil.
func (s *MemoryStorage) GetEnvironmentByID(_ context.Context, id uuid.UUID) (*apikey.Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, ok := s.envs[id]
	if !ok {
		return nil, nil
	}
	cp := *env
	return &cp, nil
}

// UpdateKeyHash atomically replaces the stored credential hash.
func (s *MemoryStorage) UpdateKeyHash(_ context.Context, id uuid.UUID, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envs[id]
	if !ok {
		return apikey.ErrEnvironmentNotFound
	}
	env.KeyHash = hash
	env.UpdatedAt = time.Now()
	return nil
}

// CreateEnvironment persists a new environment.
func (s *MemoryStorage) CreateEnvironment(_ context.Context, env *apikey.Environment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}
	now := time.Now()
	env.CreatedAt = now
	env.UpdatedAt = now

	cp := *env
	s.envs[env.ID] = &cp
	return nil
}

// DeleteEnvironment removes an environment and cascades to its rules.
func (s *MemoryStorage) DeleteEnvironment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.envs[id]; !ok {
		return apikey.ErrEnvironmentNotFound
	}
	delete(s.envs, id)
	for key := range s.rules {
		if key.environmentID == id {
			delete(s.rules, key)
		}
	}
	return nil
}
