package mapping

import (
	"fmt"
	"regexp"
	"strings"
)

// EvaluateCondition reports whether data satisfies condition. Composite conditions use
// operator and|or|not with "conditions" or "condition"; field predicates use field, operator and
// value. A nil or empty condition is true and an unknown operator is false.
func EvaluateCondition(condition, data map[string]any) bool {
	if len(condition) == 0 {
		return true
	}

	operator, _ := condition["operator"].(string)
	if operator == "" {
		if _, ok := condition["field"]; ok {
			operator = "equals"
		} else {
			operator = "and"
		}
	}

	switch strings.ToLower(operator) {
	case "and":
		for _, sub := range subConditions(condition) {
			if !EvaluateCondition(sub, data) {
				return false
			}
		}

		return true
	case "or":
		for _, sub := range subConditions(condition) {
			if EvaluateCondition(sub, data) {
				return true
			}
		}

		return false
	case "not":
		sub, _ := condition["condition"].(map[string]any)

		return !EvaluateCondition(sub, data)
	default:
		return evaluatePredicate(strings.ToLower(operator), condition, data)
	}
}

func subConditions(condition map[string]any) []map[string]any {
	switch raw := condition["conditions"].(type) {
	case []map[string]any:
		return raw
	case []any:
		subs := make([]map[string]any, 0, len(raw))

		for _, item := range raw {
			if sub, ok := item.(map[string]any); ok {
				subs = append(subs, sub)
			}
		}

		return subs
	default:
		return nil
	}
}

func evaluatePredicate(operator string, condition, data map[string]any) bool {
	field, _ := condition["field"].(string)
	expected := condition["value"]

	actual, exists := Lookup(data, field)

	switch operator {
	case "equals":
		return equal(actual, exists, expected)
	case "not_equals":
		return !equal(actual, exists, expected)
	case "contains":
		return exists && expected != nil && strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected))
	case "not_contains":
		return !(exists && expected != nil && strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected)))
	case "starts_with":
		return exists && expected != nil && strings.HasPrefix(fmt.Sprint(actual), fmt.Sprint(expected))
	case "ends_with":
		return exists && expected != nil && strings.HasSuffix(fmt.Sprint(actual), fmt.Sprint(expected))
	case "regex":
		return exists && expected != nil && matchesFully(fmt.Sprint(expected), fmt.Sprint(actual))
	case "greater_than":
		return exists && compare(actual, expected) > 0
	case "less_than":
		return exists && compare(actual, expected) < 0
	case "greater_equal":
		return exists && compare(actual, expected) >= 0
	case "less_equal":
		return exists && compare(actual, expected) <= 0
	case "exists":
		return exists
	case "not_exists":
		return !exists
	default:
		return false
	}
}

func equal(actual any, exists bool, expected any) bool {
	if !exists || expected == nil {
		return !exists && expected == nil
	}

	if a, ok := toNumber(actual); ok {
		if b, ok := toNumber(expected); ok {
			return a == b
		}
	}

	return fmt.Sprint(actual) == fmt.Sprint(expected)
}

func compare(actual, expected any) int {
	if expected == nil {
		return 0
	}

	a, okA := toNumber(actual)
	b, okB := toNumber(expected)

	if okA && okB {
		switch {
		case a > b:
			return 1
		case a < b:
			return -1
		default:
			return 0
		}
	}

	return strings.Compare(fmt.Sprint(actual), fmt.Sprint(expected))
}

func matchesFully(pattern, value string) bool {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return false
	}

	return re.MatchString(value)
}
