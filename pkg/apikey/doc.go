// Package apikey manages the per-environment machine credentials that gate
// access to flag evaluation.
//
// A key has the structure "ffk_{environmentKey}_{random}" where the random
// part is 16 cryptographically random bytes, hex-encoded. Only the prefix and
// environment key segments are derivable from storage: the stored value is a
// bcrypt hash of the full plaintext, so the random suffix can never be
// recovered, only verified. bcrypt is deliberately slow; a stolen hash cannot
// be brute-forced cheaply and each verification costs the caller one hash
// comparison per candidate environment.
//
// Verification parses the environment key out of the presented credential,
// loads every environment sharing that key (the same key may exist across
// projects), and compares the plaintext against each stored hash with
// bcrypt's constant-time comparison. The first matching environment wins.
//
// Rotation generates a fresh credential and atomically replaces the stored
// hash. The superseded key is invalid immediately; the new plaintext is
// returned exactly once and is never retrievable afterwards.
//
// Usage:
//
//	svc := apikey.NewService(storage)
//	plaintext, err := svc.Rotate(ctx, envID) // show to the operator once
//	env, err := svc.Verify(ctx, presentedKey) // on every evaluation request
package apikey
