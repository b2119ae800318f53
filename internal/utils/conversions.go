package utils

import (
	"fmt"
	"strconv"
)

// ClaimString renders a decoded JSON claim as a string. Numeric user ids
// arrive as float64 from encoding/json.
func ClaimString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}
