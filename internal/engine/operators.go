package engine

import (
	"encoding/json"
	"strings"

	"github.com/variantflow/variantflow/internal/rules"
)

// OperatorHandler evaluates one condition operator against the resolved
// context value and the rule value.
type OperatorHandler interface {
	Check(contextValue, ruleValue any) bool
}

// operatorHandlers is the closed operator set. Lookups for anything else
// fail, which the evaluator treats as no-match: an old decision node must
// keep serving a snapshot written by a newer control plane.
var operatorHandlers = map[rules.Operator]OperatorHandler{
	rules.OpEq:       eqHandler{},
	rules.OpNeq:      neqHandler{},
	rules.OpIn:       inHandler{},
	rules.OpNotIn:    notInHandler{},
	rules.OpContains: containsHandler{},
	rules.OpGt:       numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
	rules.OpLt:       numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
}

func getOperatorHandler(op rules.Operator) (OperatorHandler, bool) {
	h, ok := operatorHandlers[op]
	return h, ok
}

// strictEqual implements equality without cross-type coercion: 21 never
// equals "21". Numbers compare numerically across Go's numeric kinds
// because JSON has a single number type; strings, bools, and null compare
// within their own type; composites never compare equal.
func strictEqual(contextValue, ruleValue any) bool {
	if contextValue == nil || ruleValue == nil {
		return contextValue == nil && ruleValue == nil
	}
	if a, ok := toString(contextValue); ok {
		b, ok := toString(ruleValue)
		return ok && a == b
	}
	if a, ok := contextValue.(bool); ok {
		b, ok := ruleValue.(bool)
		return ok && a == b
	}
	if a, ok := toFloat64(contextValue); ok {
		b, ok := toFloat64(ruleValue)
		return ok && a == b
	}
	return false
}

type eqHandler struct{}

func (eqHandler) Check(contextValue, ruleValue any) bool {
	return strictEqual(contextValue, ruleValue)
}

type neqHandler struct{}

func (neqHandler) Check(contextValue, ruleValue any) bool {
	return !strictEqual(contextValue, ruleValue)
}

type inHandler struct{}

func (inHandler) Check(contextValue, ruleValue any) bool {
	seq, ok := toSequence(ruleValue)
	if !ok {
		return false
	}
	for _, item := range seq {
		if strictEqual(contextValue, item) {
			return true
		}
	}
	return false
}

type notInHandler struct{}

func (notInHandler) Check(contextValue, ruleValue any) bool {
	seq, ok := toSequence(ruleValue)
	if !ok {
		// Not a sequence is false for notIn too, not vacuously true.
		return false
	}
	for _, item := range seq {
		if strictEqual(contextValue, item) {
			return false
		}
	}
	return true
}

type containsHandler struct{}

func (containsHandler) Check(contextValue, ruleValue any) bool {
	haystack, ok := toString(contextValue)
	if !ok {
		return false
	}
	needle, ok := toString(ruleValue)
	if !ok {
		return false
	}
	return strings.Contains(haystack, needle)
}

type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(contextValue, ruleValue any) bool {
	a, ok := toFloat64(contextValue)
	if !ok {
		return false
	}
	b, ok := toFloat64(ruleValue)
	if !ok {
		return false
	}
	return h.cmp(a, b)
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// toFloat64 accepts Go's numeric kinds. Strings are deliberately excluded:
// "79" is not a number here.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toSequence(v any) ([]any, bool) {
	switch values := v.(type) {
	case []any:
		return values, true
	case []string:
		result := make([]any, len(values))
		for i, s := range values {
			result[i] = s
		}
		return result, true
	case []int:
		result := make([]any, len(values))
		for i, n := range values {
			result[i] = n
		}
		return result, true
	case []float64:
		result := make([]any, len(values))
		for i, n := range values {
			result[i] = n
		}
		return result, true
	default:
		return nil, false
	}
}
