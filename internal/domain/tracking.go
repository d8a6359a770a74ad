package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TrackingParams is the caller-supplied, free-form tracking map
// (user_id, gclid, fbclid, utm_*, anon_id, ...). Values are strings or numbers.
type TrackingParams map[string]interface{}

var nullLike = map[string]bool{
	"":          true,
	"null":      true,
	"undefined": true,
	"none":      true,
	"na":        true,
	"n/a":       true,
}

// IsNullLike reports whether a tracking value should be treated as absent.
func IsNullLike(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	if !ok {
		return false
	}
	return nullLike[strings.ToLower(strings.TrimSpace(s))]
}

// ValueString renders a tracking value the way it appears in a query string.
func ValueString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
