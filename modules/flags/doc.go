// Package flags wires the evaluation core into an HTTP module: the
// evaluation service with its shared cache, the rule-mutation operations with
// their synchronous cache invalidation, the environment credential lifecycle,
// and the chi router exposing all of it.
//
// Two authentication surfaces exist. The evaluation endpoints are gated by
// per-environment API keys presented in the X-API-Key header and verified by
// pkg/apikey. The management endpoints (environment creation, key rotation,
// rule updates) are expected to sit behind the host application's session
// authentication, supplied as ordinary middleware via RouterConfig.
//
// Evaluation never returns an HTTP error for an unknown flag: it collapses to
// a flag_not_found decision so callers always receive a decision object.
//
// Storage is pluggable: NewMemoryStorage serves tests and single-node
// deployments, NewPgStorage persists to PostgreSQL.
package flags
