// Package checker matches scenario expectations against what the stack
// produced.
package checker

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Match compares an actual value with an expected one. String
// expectations may use matchers:
//
//	"*"         any value, the key only has to exist
//	"~pattern~" regular expression on the value's text
//	">n" "<n" ">=n" "<=n" numeric comparison, numeric strings included
//
// Maps match when every expected key matches; extra keys are ignored.
// Returns "" on match and the mismatch reason otherwise.
func Match(actual, expected interface{}) string {
	if expected == nil {
		if actual == nil {
			return ""
		}
		return fmt.Sprintf("expected nil, got %v", actual)
	}
	if actual == nil {
		return fmt.Sprintf("expected %v, got nil", expected)
	}

	switch want := expected.(type) {
	case string:
		return matchString(actual, want)
	case bool:
		if got, ok := actual.(bool); ok && got == want {
			return ""
		}
		return fmt.Sprintf("expected %v, got %v", want, actual)
	case map[string]interface{}:
		return matchMap(actual, want)
	case []interface{}:
		return matchSlice(actual, want)
	}

	if want, err := toFloat(expected); err == nil {
		got, err := toFloat(actual)
		if err != nil {
			return fmt.Sprintf("expected number %v, got %T", expected, actual)
		}
		if got != want {
			return fmt.Sprintf("expected %v, got %v", expected, actual)
		}
		return ""
	}

	if reflect.DeepEqual(actual, expected) {
		return ""
	}
	return fmt.Sprintf("expected %v, got %v", expected, actual)
}

func matchString(actual interface{}, want string) string {
	switch {
	case want == "*":
		return ""
	case len(want) > 1 && strings.HasPrefix(want, "~") && strings.HasSuffix(want, "~"):
		return matchRegex(actual, strings.Trim(want, "~"))
	case strings.HasPrefix(want, ">") || strings.HasPrefix(want, "<"):
		return matchComparison(actual, want)
	}

	got, ok := actual.(string)
	if !ok {
		return fmt.Sprintf("expected string %q, got %T %v", want, actual, actual)
	}
	if got != want {
		return fmt.Sprintf("expected %q, got %q", want, got)
	}
	return ""
}

func matchRegex(actual interface{}, pattern string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)
	}
	text := fmt.Sprintf("%v", actual)
	if !re.MatchString(text) {
		return fmt.Sprintf("value %q does not match ~%s~", text, pattern)
	}
	return ""
}

func matchComparison(actual interface{}, comparison string) string {
	op := comparison[:1]
	if strings.HasPrefix(comparison, ">=") || strings.HasPrefix(comparison, "<=") {
		op = comparison[:2]
	}

	limit, err := strconv.ParseFloat(strings.TrimSpace(comparison[len(op):]), 64)
	if err != nil {
		return fmt.Sprintf("invalid comparison %q", comparison)
	}
	got, err := toFloat(actual)
	if err != nil {
		return fmt.Sprintf("cannot compare non-numeric value %v", actual)
	}

	var ok bool
	switch op {
	case ">":
		ok = got > limit
	case "<":
		ok = got < limit
	case ">=":
		ok = got >= limit
	case "<=":
		ok = got <= limit
	}
	if !ok {
		return fmt.Sprintf("expected value %s %v, got %v", op, limit, got)
	}
	return ""
}

func matchMap(actual interface{}, want map[string]interface{}) string {
	got, ok := actual.(map[string]interface{})
	if !ok {
		return fmt.Sprintf("expected object, got %T", actual)
	}
	for key, w := range want {
		v, exists := got[key]
		if !exists {
			return fmt.Sprintf("missing key %q", key)
		}
		if reason := Match(v, w); reason != "" {
			return fmt.Sprintf("key %q: %s", key, reason)
		}
	}
	return ""
}

func matchSlice(actual interface{}, want []interface{}) string {
	got, ok := actual.([]interface{})
	if !ok {
		return fmt.Sprintf("expected array, got %T", actual)
	}
	if len(got) != len(want) {
		return fmt.Sprintf("expected array length %d, got %d", len(want), len(got))
	}
	for i := range want {
		if reason := Match(got[i], want[i]); reason != "" {
			return fmt.Sprintf("element %d: %s", i, reason)
		}
	}
	return ""
}

// toFloat accepts Go numbers and numeric strings. Redis hash fields and
// Postgres numerics arrive as text.
func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
	}
	return 0, fmt.Errorf("not a number: %T", v)
}
