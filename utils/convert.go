package utils

import (
	"strconv"
	"strings"
)

func AnyToString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

func AnyToIntSlice(v any) []int {
	s, ok := v.([]int)
	if !ok {
		return []int{}
	}
	return s
}

// AnyToInt accepts the shapes a decoded config value can take: ints, JSON numbers
// and numeric strings. Anything else yields def.
func AnyToInt(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

func AnyToBool(v any, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "yes", "on":
			return true
		case "no", "off":
			return false
		}
	case float64:
		return b != 0
	case int:
		return b != 0
	}
	return def
}
