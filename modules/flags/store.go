package flags

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// FlagStatus is the lifecycle state of a flag definition.
type FlagStatus string

const (
	FlagStatusActive   FlagStatus = "active"
	FlagStatusInactive FlagStatus = "inactive"
	FlagStatusArchived FlagStatus = "archived"
)

// Flag is a named boolean feature toggle scoped to a project. Per-environment
// behavior lives in the flag's rules, not here.
type Flag struct {
	ID          uuid.UUID  `json:"id"`
	ProjectID   uuid.UUID  `json:"project_id"`
	Key         string     `json:"key"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      FlagStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at,omitzero"`
	UpdatedAt   time.Time  `json:"updated_at,omitzero"`
}

var flagKeyRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidateFlagKey rejects keys that are not snake_case. Keys travel in URLs,
// cache fingerprints and SDK calls, so the character set is kept narrow.
func ValidateFlagKey(key string) error {
	if !flagKeyRe.MatchString(key) {
		return errors.Join(ErrInvalidFlagKey, fmt.Errorf("got %q", key))
	}
	return nil
}

// RuleUpdate is a partial update of a flag rule. Nil fields are left
// untouched.
type RuleUpdate struct {
	Enabled    *bool     `json:"enabled,omitempty"`
	Percentage *int      `json:"percentage,omitempty"`
	Whitelist  *[]string `json:"whitelist,omitempty"`
	Blacklist  *[]string `json:"blacklist,omitempty"`
}

// Validate rejects updates that must never reach persistence.
func (u RuleUpdate) Validate() error {
	if u.Percentage != nil {
		if *u.Percentage < 0 || *u.Percentage > 100 {
			return errors.Join(evaluation.ErrInvalidPercentage,
				fmt.Errorf("got %d", *u.Percentage))
		}
	}
	return nil
}

// Apply merges the update into a rule snapshot.
func (u RuleUpdate) Apply(rule evaluation.Rule) evaluation.Rule {
	if u.Enabled != nil {
		rule.Enabled = *u.Enabled
	}
	if u.Percentage != nil {
		rule.Percentage = *u.Percentage
	}
	if u.Whitelist != nil {
		rule.Whitelist = *u.Whitelist
	}
	if u.Blacklist != nil {
		rule.Blacklist = *u.Blacklist
	}
	return rule
}

// FlagStore resolves flag definitions. The evaluation path only reads;
// full flag CRUD belongs to the management API.
type FlagStore interface {
	// GetFlagByKey returns the flag with the given key in the project, or
	// nil when no such flag exists.
	GetFlagByKey(ctx context.Context, projectID uuid.UUID, key string) (*Flag, error)

	// GetFlagByID returns the flag with the given ID, or nil when no such
	// flag exists.
	GetFlagByID(ctx context.Context, id uuid.UUID) (*Flag, error)

	// CreateFlag persists a new flag definition.
	CreateFlag(ctx context.Context, flag *Flag) error
}

// RuleStore owns the durable copy of every flag rule. It knows nothing about
// caching; invalidation is the service layer's responsibility.
type RuleStore interface {
	// GetRule returns the rule for the (flag, environment) pair, or nil when
	// none exists yet.
	GetRule(ctx context.Context, flagID, environmentID uuid.UUID) (*evaluation.Rule, error)

	// GetOrCreateRule returns the rule for the pair, lazily creating the
	// default rule (disabled, zero rollout, empty lists) on first request.
	GetOrCreateRule(ctx context.Context, flagID, environmentID uuid.UUID) (*evaluation.Rule, error)

	// UpdateRule merges the update into the stored rule and returns the new
	// snapshot. The rule is created first if it does not exist.
	UpdateRule(ctx context.Context, flagID, environmentID uuid.UUID, update RuleUpdate) (*evaluation.Rule, error)
}

// EnvironmentStore extends the credential manager's storage needs with
// environment lifecycle operations.
type EnvironmentStore interface {
	apikey.EnvironmentStorage

	// CreateEnvironment persists a new environment including its key hash.
	CreateEnvironment(ctx context.Context, env *apikey.Environment) error

	// DeleteEnvironment removes an environment and, by cascade, its rules.
	DeleteEnvironment(ctx context.Context, id uuid.UUID) error
}

// Storage bundles the three stores a fully wired module needs. Separate
// interfaces remain available for callers substituting a single concern.
type Storage interface {
	FlagStore
	RuleStore
	EnvironmentStore
}
