package quota

// PlanQuotas are the static per-plan send ceilings. Immutable; looked up
// by plan identifier at dispatch time.
type PlanQuotas struct {
	MaxPerDay             int `json:"max_per_day"`
	MaxPerHour            int `json:"max_per_hour"`
	MaxConcurrentSends    int `json:"max_concurrent_sends"`
	MaxFailuresBeforeStop int `json:"max_failures_before_stop"`
}

// Plan identifiers.
const (
	PlanFree       = "free"
	PlanStarter    = "starter"
	PlanGrowth     = "growth"
	PlanEnterprise = "enterprise"
)

var planTable = map[string]PlanQuotas{
	PlanFree:       {MaxPerDay: 200, MaxPerHour: 50, MaxConcurrentSends: 1, MaxFailuresBeforeStop: 5},
	PlanStarter:    {MaxPerDay: 2000, MaxPerHour: 500, MaxConcurrentSends: 2, MaxFailuresBeforeStop: 10},
	PlanGrowth:     {MaxPerDay: 20000, MaxPerHour: 5000, MaxConcurrentSends: 5, MaxFailuresBeforeStop: 20},
	PlanEnterprise: {MaxPerDay: 200000, MaxPerHour: 50000, MaxConcurrentSends: 10, MaxFailuresBeforeStop: 50},
}

// defaultPlanQuotas is the conservative fallback for unrecognized plans,
// tighter than free so a misconfigured plan cannot widen its limits.
var defaultPlanQuotas = PlanQuotas{MaxPerDay: 100, MaxPerHour: 25, MaxConcurrentSends: 1, MaxFailuresBeforeStop: 3}

// PlanFor returns the quotas for a plan identifier, falling back to the
// conservative default when the plan is unrecognized. It never errors.
func PlanFor(plan string) PlanQuotas {
	if q, ok := planTable[plan]; ok {
		return q
	}
	return defaultPlanQuotas
}
