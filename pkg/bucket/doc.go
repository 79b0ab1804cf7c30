// Package bucket assigns users to deterministic percentile buckets for
// percentage-based feature rollouts.
//
// A bucket is an integer in [0,100) derived from the pair (userID, flagKey).
// The same pair always lands in the same bucket, across processes, restarts
// and independent implementations in other languages, which makes gradual
// rollouts stable: a user who has a feature at 20% keeps it at 30%.
//
// The hash algorithm and input composition are part of the wire contract
// shared with every client SDK. The input is the UTF-8 encoding of
// "{userID}:{flagKey}" and the hash is MurmurHash3 (x86, 32-bit variant).
// Changing either would silently reshuffle every rollout in production, so
// both are fixed.
//
// Usage:
//
//	b := bucket.Bucket("user-42", "checkout_v2")
//	enabled := b < rule.Percentage
//
// The flag key deliberately excludes environment identity, so a user falls
// in the same bucket for a given flag in staging and production alike.
package bucket
