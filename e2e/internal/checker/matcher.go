package checker

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Matches checks a decoded JSON value against an expected value from a
// scenario file. Maps match on the expected keys only, and an expected list
// matches when every element is found somewhere in the actual list.
// String expectations may use matchers:
//
//	~pattern~   regular expression
//	>n, >=n     numeric comparison (also < and <=)
//	*           any value, key must exist
//
// Returns (true, "") on match, (false, reason) on mismatch.
func Matches(actual, expected interface{}) (bool, string) {
	if expected == nil {
		if actual == nil {
			return true, ""
		}
		return false, fmt.Sprintf("expected nil, got %v", actual)
	}

	switch exp := expected.(type) {
	case string:
		return matchString(actual, exp)
	case bool:
		if b, ok := actual.(bool); ok && b == exp {
			return true, ""
		}
		return false, fmt.Sprintf("expected %v, got %v", exp, actual)
	case map[string]interface{}:
		return matchMap(actual, exp)
	case []interface{}:
		return matchList(actual, exp)
	}

	expNum, ok := toFloat64(expected)
	if !ok {
		return false, fmt.Sprintf("unsupported expectation type %T", expected)
	}
	actNum, ok := toFloat64(actual)
	if !ok {
		return false, fmt.Sprintf("expected number %v, got %T", expected, actual)
	}
	if actNum != expNum {
		return false, fmt.Sprintf("expected %v, got %v", expNum, actNum)
	}
	return true, ""
}

// MatchPayload decodes a JSON payload and matches it against expected
func MatchPayload(payload []byte, expected map[string]interface{}) (bool, string) {
	var actual interface{}
	if err := json.Unmarshal(payload, &actual); err != nil {
		return false, fmt.Sprintf("payload is not JSON: %v", err)
	}
	return Matches(actual, expected)
}

var comparison = regexp.MustCompile(`^(>=|<=|>|<)\s*(-?[0-9.]+)$`)

func matchString(actual interface{}, expected string) (bool, string) {
	if expected == "*" {
		return true, ""
	}

	if len(expected) > 1 && strings.HasPrefix(expected, "~") && strings.HasSuffix(expected, "~") {
		pattern := strings.Trim(expected, "~")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)
		}
		s := fmt.Sprintf("%v", actual)
		if re.MatchString(s) {
			return true, ""
		}
		return false, fmt.Sprintf("value %q does not match pattern ~%s~", s, pattern)
	}

	if m := comparison.FindStringSubmatch(expected); m != nil {
		return matchComparison(actual, m[1], m[2])
	}

	s, ok := actual.(string)
	if !ok {
		return false, fmt.Sprintf("expected string %q, got %T", expected, actual)
	}
	if s != expected {
		return false, fmt.Sprintf("expected %q, got %q", expected, s)
	}
	return true, ""
}

func matchComparison(actual interface{}, op, value string) (bool, string) {
	actNum, ok := toFloat64(actual)
	if !ok {
		return false, fmt.Sprintf("cannot compare non-numeric value: %v", actual)
	}
	want, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return false, fmt.Sprintf("invalid comparison value: %s", value)
	}

	var result bool
	switch op {
	case ">":
		result = actNum > want
	case "<":
		result = actNum < want
	case ">=":
		result = actNum >= want
	case "<=":
		result = actNum <= want
	}
	if result {
		return true, ""
	}
	return false, fmt.Sprintf("expected value %s %v, got %v", op, want, actNum)
}

func matchMap(actual interface{}, expected map[string]interface{}) (bool, string) {
	actMap, ok := actual.(map[string]interface{})
	if !ok {
		return false, fmt.Sprintf("expected object, got %T", actual)
	}

	for key, want := range expected {
		got, exists := actMap[key]
		if !exists {
			return false, fmt.Sprintf("missing key %q", key)
		}
		if ok, reason := Matches(got, want); !ok {
			return false, fmt.Sprintf("key %q: %s", key, reason)
		}
	}
	return true, ""
}

func matchList(actual interface{}, expected []interface{}) (bool, string) {
	actList, ok := actual.([]interface{})
	if !ok {
		return false, fmt.Sprintf("expected list, got %T", actual)
	}

	for i, want := range expected {
		found := false
		for _, got := range actList {
			if ok, _ := Matches(got, want); ok {
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Sprintf("element %d (%v) not found", i, want)
		}
	}
	return true, ""
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
