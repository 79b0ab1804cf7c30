// Package evaluation implements the pure decision function at the heart of
// flag delivery: given a rule, a user and a flag key, it produces an
// enabled/disabled decision together with the reason it was reached.
//
// # Precedence
//
// Rules are evaluated in a fixed order, first match wins:
//
//  1. Master switch: a disabled rule is off for everyone.
//  2. Blacklist: a blacklisted user is off, even if also whitelisted.
//  3. Whitelist: a whitelisted user is on.
//  4. Percentage rollout: the user's deterministic bucket (see pkg/bucket)
//     is compared against the rule's percentage.
//
// Evaluate is deterministic and side-effect free. A decision is a pure
// function of the rule snapshot and the (userID, flagKey) pair at the moment
// of computation, which is what makes decisions safe to cache.
//
// # Usage
//
//	rule := evaluation.Rule{Enabled: true, Percentage: 30, Blacklist: []string{"u9"}}
//	d := evaluation.Evaluate(rule, "u1", "dark_mode")
//	if d.Enabled {
//		// show the feature
//	}
//
// The ReasonFlagNotFound decision is produced by the service layer when no
// flag exists for the requested key; Evaluate itself always receives a rule.
package evaluation
