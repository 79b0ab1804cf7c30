// Package evalcache provides the shared server-side cache for flag
// evaluation decisions.
//
// Decisions are cached per fingerprint (environment, flag key, user) with a
// bounded TTL. Entries are advisory: staleness up to the TTL is an accepted
// tradeoff rather than a correctness violation, because every rule mutation
// invalidates the affected (environment, flag key) pair synchronously before
// the mutation reports success. A reader starting after a mutation therefore
// observes either the new rule or a cache miss; readers concurrent with the
// mutation may still see the old decision until invalidation completes.
//
// Two implementations are provided:
//
//   - Memory: an in-process map guarded by an RWMutex, with a secondary index
//     from (environment, flag key) to the set of cached user IDs so that
//     Invalidate drops exactly the matching entries. Expired entries are
//     treated as misses on access and additionally removed by a background
//     sweep that never holds the write lock for more than one entry removal.
//
//   - RedisCache: a go-redis backed variant for multi-instance deployments.
//     Each decision lives under its own TTL'd key; a companion set per
//     (environment, flag key) tracks cached user IDs so invalidation needs no
//     SCAN over the keyspace.
//
// Noop satisfies the same interface and caches nothing, for wiring tests or
// deployments that want every evaluation to hit the rule store.
package evalcache
