package rules

// Operator represents a comparison operator used in targeting conditions.
type Operator string

// Supported targeting operators (string values for clean JSON serialization).
// Operators outside this set evaluate to no-match rather than erroring, so
// snapshots written by a newer control plane stay servable.
const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpIn       Operator = "in"
	OpNotIn    Operator = "notIn"
	OpContains Operator = "contains"
	OpGt       Operator = "gt"
	OpLt       Operator = "lt"
)

// Condition represents a single targeting predicate. Attribute is resolved
// against the user context: an exact top-level key wins, otherwise the
// attribute is split on "." and walked into nested objects.
type Condition struct {
	Attribute string      `json:"attribute"`
	Operator  Operator    `json:"operator"`
	Value     interface{} `json:"value"`
}

// Rule represents one targeting rule. Conditions are combined with AND
// semantics; an empty condition list matches everyone.
type Rule struct {
	Conditions []Condition `json:"conditions"`
}

// Valid reports whether the operator is one of the supported set. The
// control plane rejects rules with unknown operators at edit time; the
// decision side merely fails the condition.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNeq, OpIn, OpNotIn, OpContains, OpGt, OpLt:
		return true
	default:
		return false
	}
}
