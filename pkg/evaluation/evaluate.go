package evaluation

import (
	"slices"

	"github.com/dmitrymomot/flagkit/pkg/bucket"
)

// Reason explains which precedence step produced a decision.
type Reason string

const (
	ReasonFlagDisabled      Reason = "flag_disabled"
	ReasonUserBlacklist     Reason = "user_blacklist"
	ReasonUserWhitelist     Reason = "user_whitelist"
	ReasonPercentageRollout Reason = "percentage_rollout"
	ReasonFlagNotFound      Reason = "flag_not_found"
)

// Metadata carries the rollout inputs for percentage decisions so callers can
// see why a user fell on either side of the threshold.
type Metadata struct {
	Percentage int `json:"percentage"`
	Bucket     int `json:"bucket"`
}

// Decision is the immutable outcome of evaluating one flag for one user.
type Decision struct {
	Enabled  bool      `json:"enabled"`
	Reason   Reason    `json:"reason"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// NotFound is the decision returned by the service layer when no flag exists
// for the requested key. Evaluation always yields a decision, never an error.
func NotFound() Decision {
	return Decision{Enabled: false, Reason: ReasonFlagNotFound}
}

// Evaluate applies the rule to a user and flag, in fixed precedence order:
// master switch, blacklist, whitelist, percentage rollout. First match wins.
func Evaluate(rule Rule, userID, flagKey string) Decision {
	if !rule.Enabled {
		return Decision{Enabled: false, Reason: ReasonFlagDisabled}
	}

	if slices.Contains(rule.Blacklist, userID) {
		return Decision{Enabled: false, Reason: ReasonUserBlacklist}
	}

	if slices.Contains(rule.Whitelist, userID) {
		return Decision{Enabled: true, Reason: ReasonUserWhitelist}
	}

	b := bucket.Bucket(userID, flagKey)
	return Decision{
		Enabled:  b < rule.Percentage,
		Reason:   ReasonPercentageRollout,
		Metadata: &Metadata{Percentage: rule.Percentage, Bucket: b},
	}
}
