// Package engine evaluates targeting rules and computes variant
// assignments against a compiled snapshot. The whole path is pure
// computation over immutable data; nothing here blocks.
package engine

import (
	"strings"

	"github.com/variantflow/variantflow/internal/rules"
)

// Evaluate returns true iff the context passes the rule set: OR across
// rules, AND within a rule. An empty rule list matches everyone, as does a
// rule with no conditions.
func Evaluate(ruleSet []rules.Rule, context map[string]any) bool {
	if len(ruleSet) == 0 {
		return true
	}
	for _, rule := range ruleSet {
		if matchesAllConditions(rule.Conditions, context) {
			return true
		}
	}
	return false
}

func matchesAllConditions(conditions []rules.Condition, context map[string]any) bool {
	for _, condition := range conditions {
		value, defined := resolveAttribute(context, condition.Attribute)
		if !defined {
			// Unresolvable attribute fails every operator, neq included.
			return false
		}
		handler, ok := getOperatorHandler(condition.Operator)
		if !ok || !handler.Check(value, condition.Value) {
			return false
		}
	}
	return true
}

// resolveAttribute looks up an attribute in the context. An exact top-level
// key wins even when it contains dots (the escape hatch for attribute names
// with literal dots); otherwise the attribute is split on "." and walked
// into nested objects. Missing segments or non-object intermediates resolve
// to undefined.
func resolveAttribute(context map[string]any, attribute string) (any, bool) {
	if context == nil {
		return nil, false
	}
	if value, ok := context[attribute]; ok {
		return value, true
	}

	segments := strings.Split(attribute, ".")
	if len(segments) == 1 {
		return nil, false
	}
	var current any = context
	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
