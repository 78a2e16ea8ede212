// Package quota decides whether new audit submissions are admitted
// against a user's monthly plan allowance.
package quota

import (
	"fmt"

	"github.com/sitegauge/sitegauge/internal/model"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool `json:"allowed"`
	Limit   int  `json:"limit"`
	Used    int  `json:"used"`
}

// ExceededError is returned to submitters when a decision denies admission.
type ExceededError struct {
	Limit int
	Used  int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("monthly audit quota exceeded: used %d of %d", e.Used, e.Limit)
}

// Gate enforces per-plan monthly audit quotas.
//
// Admit is a pure decision over the user record. The audit counter is
// incremented by a separate storage operation, and only when a job
// reaches completed, so a failed audit does not consume quota. The
// check and the increment are not transactional with each other; a
// concurrent submission burst can admit one job past the nominal limit.
type Gate struct{}

// NewGate creates a quota gate.
func NewGate() *Gate {
	return &Gate{}
}

// Admit reports whether the user may submit another audit this billing
// month. Unknown plan tiers are treated as the free plan.
func (g *Gate) Admit(user *model.User) Decision {
	limit := model.PlanConfigFor(user.Plan).MonthlyAudits
	return Decision{
		Allowed: user.AuditCount < limit,
		Limit:   limit,
		Used:    user.AuditCount,
	}
}

// Err converts a denying decision into an ExceededError.
// Returns nil for an allowing decision.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &ExceededError{Limit: d.Limit, Used: d.Used}
}
