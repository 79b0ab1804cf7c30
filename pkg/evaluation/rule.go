package evaluation

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Rule is the environment-specific configuration controlling how a flag
// evaluates: a master switch, allow/deny lists and a rollout percentage.
// One rule exists per (flag, environment) pair.
type Rule struct {
	Enabled    bool      `json:"enabled"`
	Percentage int       `json:"percentage"`
	Whitelist  []string  `json:"whitelist,omitempty"`
	Blacklist  []string  `json:"blacklist,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// DefaultRule returns the rule created lazily the first time a (flag,
// environment) pair is requested: disabled, zero rollout, empty lists.
func DefaultRule() Rule {
	return Rule{Enabled: false, Percentage: 0}
}

// Validate rejects rules that must never reach persistence, currently a
// percentage outside [0,100].
func (r Rule) Validate() error {
	if r.Percentage < 0 || r.Percentage > 100 {
		return errors.Join(ErrInvalidPercentage,
			fmt.Errorf("got %d", r.Percentage))
	}
	return nil
}

// Clone returns a deep copy so cached or stored rules cannot be mutated
// through shared list slices.
func (r Rule) Clone() Rule {
	c := r
	if r.Whitelist != nil {
		c.Whitelist = slices.Clone(r.Whitelist)
	}
	if r.Blacklist != nil {
		c.Blacklist = slices.Clone(r.Blacklist)
	}
	return c
}
