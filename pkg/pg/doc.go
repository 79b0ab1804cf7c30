// Package pg bootstraps the PostgreSQL connection pool used by the durable
// rule and environment stores.
//
// Connect retries with linear backoff so service restarts survive transient
// database unavailability, and verifies connectivity with a ping before
// handing the pool to the caller. Healthcheck adapts the pool to the
// func(context.Context) error shape the readiness endpoint expects.
package pg
