package tenant

// Plan represents a tenant's subscription plan. The plan decides which
// priority queue a tenant's triggers land on and how many trigger
// executions the tenant may admit per owner-local day.
type Plan string

const (
	PlanSandbox      Plan = "sandbox"
	PlanTeam         Plan = "team"
	PlanProfessional Plan = "professional"
)

// IsValid checks if the plan is valid.
func (p Plan) IsValid() bool {
	switch p {
	case PlanSandbox, PlanTeam, PlanProfessional:
		return true
	}
	return false
}

// String returns the string representation of the plan.
func (p Plan) String() string {
	return string(p)
}

// ParsePlan parses a string to a Plan. Unknown plans resolve to sandbox,
// the most restrictive tier.
func ParsePlan(s string) (Plan, bool) {
	switch Plan(s) {
	case PlanSandbox, PlanTeam, PlanProfessional:
		return Plan(s), true
	}
	return PlanSandbox, false
}
