// Package redis bootstraps the Redis client backing the shared evaluation
// cache in multi-instance deployments.
//
// Connect parses a standard redis:// connection URL and retries until the
// server answers a ping or the attempts are exhausted. Healthcheck adapts the
// client to the func(context.Context) error shape the readiness endpoint
// expects.
package redis
