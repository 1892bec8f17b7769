// Package eval implements the Permission Evaluator (spec §4.B): it walks
// the entity graph to compute effective permissions under inheritance,
// matches URI patterns, resolves grant/deny conflicts, and caches
// decisions with subtree invalidation.
package eval

import (
	"time"

	"github.com/mvaleed/acs/internal/domain"
)

// Strategy selects how candidate permissions are reduced to one effective
// decision when more than one matches (uri, verb).
type Strategy string

const (
	DenyOverrides    Strategy = "DENY_OVERRIDES"
	GrantOverrides   Strategy = "GRANT_OVERRIDES"
	MostSpecific     Strategy = "MOST_SPECIFIC"
	MostRecent       Strategy = "MOST_RECENT"
	HighestPriority  Strategy = "HIGHEST_PRIORITY"
	defaultStrategy           = DenyOverrides
)

func (s Strategy) normalized() Strategy {
	switch s {
	case GrantOverrides, MostSpecific, MostRecent, HighestPriority, DenyOverrides:
		return s
	default:
		return defaultStrategy
	}
}

// Source describes one ancestor (or the entity itself) that contributed a
// permission to a Decision's candidate set, for the inheritance trace.
type Source struct {
	EntityID   int64
	EntityKind domain.Kind
	Permission domain.Permission
}

// Decision is the result of evaluating one (entity, uri, verb) triple.
type Decision struct {
	Allowed            bool
	Reason             string
	Sources            []Source
	AppliedPermissions []domain.Permission
	EvaluationTime     time.Duration
	FromCache          bool
}

// EvalContext carries the optional attribute map and reference time used
// to filter conditional and temporary permissions (spec §4.B step 3).
type EvalContext struct {
	Attributes map[string]string
	Now        time.Time
}

func (c EvalContext) now() time.Time {
	if c.Now.IsZero() {
		return time.Now().UTC()
	}
	return c.Now
}
