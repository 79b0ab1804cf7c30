package flags

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/flagkit/pkg/apikey"
	"github.com/dmitrymomot/flagkit/pkg/evaluation"
	"github.com/dmitrymomot/flagkit/pkg/pg"
)

// PgStorage is the PostgreSQL Storage implementation. It expects the
// feature_flags, environments and flag_rules tables with ON DELETE CASCADE
// from rules to both flags and environments.
type PgStorage struct {
	pool *pgxpool.Pool
}

// NewPgStorage creates a storage on an established connection pool. The
// pool's lifecycle belongs to the caller.
func NewPgStorage(pool *pgxpool.Pool) *PgStorage {
	return &PgStorage{pool: pool}
}

// GetFlagByKey returns the flag with the given key in the project, or nil.
func (s *PgStorage) GetFlagByKey(ctx context.Context, projectID uuid.UUID, key string) (*Flag, error) {
	var flag Flag
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, key, name, COALESCE(description, ''), status, created_at, updated_at
		 FROM feature_flags
		 WHERE project_id = $1 AND key = $2`,
		projectID, key,
	).Scan(&flag.ID, &flag.ProjectID, &flag.Key, &flag.Name, &flag.Description,
		&flag.Status, &flag.CreatedAt, &flag.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &flag, nil
}

// GetFlagByID returns the flag with the given ID, or nil.
func (s *PgStorage) GetFlagByID(ctx context.Context, id uuid.UUID) (*Flag, error) {
	var flag Flag
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, key, name, COALESCE(description, ''), status, created_at, updated_at
		 FROM feature_flags
		 WHERE id = $1`,
		id,
	).Scan(&flag.ID, &flag.ProjectID, &flag.Key, &flag.Name, &flag.Description,
		&flag.Status, &flag.CreatedAt, &flag.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &flag, nil
}

// CreateFlag persists a new flag definition, validating its key.
func (s *PgStorage) CreateFlag(ctx context.Context, flag *Flag) error {
	if err := ValidateFlagKey(flag.Key); err != nil {
		return err
	}
	if flag.ID == uuid.Nil {
		flag.ID = uuid.New()
	}
	if flag.Status == "" {
		flag.Status = FlagStatusActive
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO feature_flags (id, project_id, key, name, description, status)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		 RETURNING created_at, updated_at`,
		flag.ID, flag.ProjectID, flag.Key, flag.Name, flag.Description, flag.Status,
	).Scan(&flag.CreatedAt, &flag.UpdatedAt)
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

// GetRule returns the rule for the (flag, environment) pair, or nil.
func (s *PgStorage) GetRule(ctx context.Context, flagID, environmentID uuid.UUID) (*evaluation.Rule, error) {
	var rule evaluation.Rule
	err := s.pool.QueryRow(ctx,
		`SELECT enabled, percentage, user_whitelist, user_blacklist, created_at, updated_at
		 FROM flag_rules
		 WHERE flag_id = $1 AND environment_id = $2`,
		flagID, environmentID,
	).Scan(&rule.Enabled, &rule.Percentage, &rule.Whitelist, &rule.Blacklist,
		&rule.CreatedAt, &rule.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &rule, nil
}

// GetOrCreateRule lazily creates the default rule on first request. The
// upsert is a no-op when the rule already exists, so concurrent first reads
// of the same pair cannot race into duplicate rows.
func (s *PgStorage) GetOrCreateRule(ctx context.Context, flagID, environmentID uuid.UUID) (*evaluation.Rule, error) {
	var rule evaluation.Rule
	err := s.pool.QueryRow(ctx,
		`INSERT INTO flag_rules (flag_id, environment_id, enabled, percentage, user_whitelist, user_blacklist)
		 VALUES ($1, $2, false, 0, ARRAY[]::text[], ARRAY[]::text[])
		 ON CONFLICT (flag_id, environment_id) DO UPDATE SET flag_id = EXCLUDED.flag_id
		 RETURNING enabled, percentage, user_whitelist, user_blacklist, created_at, updated_at`,
		flagID, environmentID,
	).Scan(&rule.Enabled, &rule.Percentage, &rule.Whitelist, &rule.Blacklist,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &rule, nil
}

// UpdateRule merges the update into the stored rule, creating it if needed.
func (s *PgStorage) UpdateRule(ctx context.Context, flagID, environmentID uuid.UUID, update RuleUpdate) (*evaluation.Rule, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	// Ensure the row exists so COALESCE below always has a base rule.
	if _, err := s.GetOrCreateRule(ctx, flagID, environmentID); err != nil {
		return nil, err
	}

	var rule evaluation.Rule
	err := s.pool.QueryRow(ctx,
		`UPDATE flag_rules SET
			enabled = COALESCE($3, enabled),
			percentage = COALESCE($4, percentage),
			user_whitelist = COALESCE($5, user_whitelist),
			user_blacklist = COALESCE($6, user_blacklist),
			updated_at = NOW()
		 WHERE flag_id = $1 AND environment_id = $2
		 RETURNING enabled, percentage, user_whitelist, user_blacklist, created_at, updated_at`,
		flagID, environmentID,
		update.Enabled, update.Percentage, update.Whitelist, update.Blacklist,
	).Scan(&rule.Enabled, &rule.Percentage, &rule.Whitelist, &rule.Blacklist,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &rule, nil
}

// GetEnvironmentsByKey returns every environment sharing the key, across
// projects.
func (s *PgStorage) GetEnvironmentsByKey(ctx context.Context, key string) ([]*apikey.Environment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, name, key, api_key_hash, created_at, updated_at
		 FROM environments
		 WHERE key = $1`,
		key,
	)
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	defer rows.Close()

	var out []*apikey.Environment
	for rows.Next() {
		var env apikey.Environment
		if err := rows.Scan(&env.ID, &env.ProjectID, &env.Name, &env.Key,
			&env.KeyHash, &env.CreatedAt, &env.UpdatedAt); err != nil {
			return nil, errors.Join(ErrStorageFailed, err)
		}
		out = append(out, &env)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return out, nil
}

// GetEnvironmentByID returns the environment, or nil.
func (s *PgStorage) GetEnvironmentByID(ctx context.Context, id uuid.UUID) (*apikey.Environment, error) {
	var env apikey.Environment
	err := s.pool.QueryRow(ctx,
		`SELECT id, project_id, name, key, api_key_hash, created_at, updated_at
		 FROM environments
		 WHERE id = $1`,
		id,
	).Scan(&env.ID, &env.ProjectID, &env.Name, &env.Key, &env.KeyHash,
		&env.CreatedAt, &env.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrStorageFailed, err)
	}
	return &env, nil
}

// UpdateKeyHash atomically replaces the stored credential hash; the old key
// stops verifying the moment this commits.
func (s *PgStorage) UpdateKeyHash(ctx context.Context, id uuid.UUID, hash []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE environments SET api_key_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, hash,
	)
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return apikey.ErrEnvironmentNotFound
	}
	return nil
}

// CreateEnvironment persists a new environment including its key hash.
func (s *PgStorage) CreateEnvironment(ctx context.Context, env *apikey.Environment) error {
	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO environments (id, project_id, name, key, api_key_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		env.ID, env.ProjectID, env.Name, env.Key, env.KeyHash,
	).Scan(&env.CreatedAt, &env.UpdatedAt)
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	return nil
}

// DeleteEnvironment removes an environment; its rules go with it by cascade.
func (s *PgStorage) DeleteEnvironment(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM environments WHERE id = $1`, id)
	if err != nil {
		return errors.Join(ErrStorageFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return apikey.ErrEnvironmentNotFound
	}
	return nil
}
