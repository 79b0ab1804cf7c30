package flags

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
	"github.com/dmitrymomot/flagkit/pkg/evalcache"
	"github.com/dmitrymomot/flagkit/pkg/evaluation"
	"github.com/dmitrymomot/flagkit/pkg/logger"
)

// MaxBatchSize caps the number of flag keys a single batch evaluation may
// request.
const MaxBatchSize = 50

// Service evaluates flags for authenticated environments, consulting the
// shared evaluation cache, and performs rule mutations with their synchronous
// cache invalidation.
type Service struct {
	flags FlagStore
	rules RuleStore
	cache evalcache.Cache
	log   *slog.Logger
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService wires the evaluation service. The cache is a required,
// explicitly constructed dependency: pass evalcache.NewNoop() to disable
// caching rather than nil.
func NewService(flagStore FlagStore, ruleStore RuleStore, cache evalcache.Cache, opts ...ServiceOption) *Service {
	s := &Service{
		flags: flagStore,
		rules: ruleStore,
		cache: cache,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate produces the decision for one flag and user within the
// environment. Unknown flags collapse to a flag_not_found decision rather
// than an error, so evaluation always yields a decision object. Cache
// failures degrade to a rule-store read instead of failing the request.
func (s *Service) Evaluate(ctx context.Context, env *apikey.Environment, flagKey, userID string) (evaluation.Decision, error) {
	fp := evalcache.Fingerprint{
		EnvironmentID: env.ID,
		FlagKey:       flagKey,
		UserID:        userID,
	}

	if decision, ok, err := s.cache.Get(ctx, fp); err != nil {
		s.log.WarnContext(ctx, "evaluation cache read failed",
			logger.Error(err),
			logger.FlagKey(flagKey),
			logger.Component("flags"),
		)
	} else if ok {
		return decision, nil
	}

	flag, err := s.flags.GetFlagByKey(ctx, env.ProjectID, flagKey)
	if err != nil {
		return evaluation.Decision{}, err
	}
	if flag == nil {
		// Not cached: a flag created moments later should become visible
		// immediately, and flag creation fires no invalidation.
		return evaluation.NotFound(), nil
	}

	rule, err := s.rules.GetOrCreateRule(ctx, flag.ID, env.ID)
	if err != nil {
		return evaluation.Decision{}, err
	}

	decision := evaluation.Evaluate(*rule, userID, flagKey)

	if err := s.cache.Put(ctx, fp, decision); err != nil {
		s.log.WarnContext(ctx, "evaluation cache write failed",
			logger.Error(err),
			logger.FlagKey(flagKey),
			logger.Component("flags"),
		)
	}

	return decision, nil
}

// EvaluateBatch evaluates up to MaxBatchSize flags for one user and returns
// a decision per requested key.
func (s *Service) EvaluateBatch(ctx context.Context, env *apikey.Environment, flagKeys []string, userID string) (map[string]evaluation.Decision, error) {
	if len(flagKeys) > MaxBatchSize {
		return nil, errors.Join(ErrTooManyFlags,
			fmt.Errorf("got %d, maximum %d", len(flagKeys), MaxBatchSize))
	}

	results := make(map[string]evaluation.Decision, len(flagKeys))
	for _, flagKey := range flagKeys {
		decision, err := s.Evaluate(ctx, env, flagKey, userID)
		if err != nil {
			return nil, err
		}
		results[flagKey] = decision
	}
	return results, nil
}

// UpdateRule merges the update into the rule for the (flag, environment)
// pair and invalidates the affected cache entries before returning, so any
// evaluation starting after this call observes the new rule or a cache miss.
func (s *Service) UpdateRule(ctx context.Context, flagID, environmentID uuid.UUID, update RuleUpdate) (*evaluation.Rule, error) {
	flag, err := s.flags.GetFlagByID(ctx, flagID)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, ErrFlagNotFound
	}

	rule, err := s.rules.UpdateRule(ctx, flagID, environmentID, update)
	if err != nil {
		return nil, err
	}

	// Synchronous by contract: the mutation must not report success until
	// stale decisions for this (environment, flag) pair are gone.
	if err := s.cache.Invalidate(ctx, environmentID, flag.Key); err != nil {
		return nil, err
	}

	return rule, nil
}
