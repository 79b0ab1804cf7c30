package evalcache

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagkit/pkg/evaluation"
)

// DefaultTTL bounds how long a cached decision may outlive the rule it was
// computed from when no explicit invalidation arrives.
const DefaultTTL = time.Minute

// Fingerprint uniquely identifies one evaluation result.
type Fingerprint struct {
	EnvironmentID uuid.UUID
	FlagKey       string
	UserID        string
}

// Cache is the shared evaluation cache consulted on every evaluation request.
//
// Invalidate must drop every cached entry for the (environment, flag key)
// pair regardless of user ID. The rule-mutation path calls it synchronously
// before acknowledging the mutation; see the Invalidator type.
type Cache interface {
	// Get returns the cached decision for the fingerprint. Expired entries
	// are reported as a miss even if physically still present.
	Get(ctx context.Context, fp Fingerprint) (evaluation.Decision, bool, error)

	// Put stores the decision under the fingerprint for the cache's TTL.
	Put(ctx context.Context, fp Fingerprint, d evaluation.Decision) error

	// Invalidate drops all cached decisions for the (environment, flag key)
	// pair, for every user.
	Invalidate(ctx context.Context, environmentID uuid.UUID, flagKey string) error

	// Clear drops every cached decision.
	Clear(ctx context.Context) error

	// Close releases background resources. The cache must not be used after.
	Close() error
}

// Invalidator is the narrow dependency the rule-mutation path needs: it lets
// mutation logic fire cache invalidation without depending on the full cache,
// and can be substituted with a no-op or a pub/sub fan-out variant.
type Invalidator interface {
	Invalidate(ctx context.Context, environmentID uuid.UUID, flagKey string) error
}

// InvalidatorFunc adapts a plain function to the Invalidator interface.
type InvalidatorFunc func(ctx context.Context, environmentID uuid.UUID, flagKey string) error

func (f InvalidatorFunc) Invalidate(ctx context.Context, environmentID uuid.UUID, flagKey string) error {
	return f(ctx, environmentID, flagKey)
}

// Noop caches nothing. Every Get is a miss and writes are discarded.
type Noop struct{}

// NewNoop returns a cache that satisfies the Cache interface without storing
// anything, so evaluation always consults the rule store.
func NewNoop() Noop { return Noop{} }

func (Noop) Get(context.Context, Fingerprint) (evaluation.Decision, bool, error) {
	return evaluation.Decision{}, false, nil
}
func (Noop) Put(context.Context, Fingerprint, evaluation.Decision) error { return nil }

func (Noop) Invalidate(context.Context, uuid.UUID, string) error { return nil }

func (Noop) Clear(context.Context) error { return nil }

func (Noop) Close() error { return nil }

