package session

import (
	"fmt"
	"strconv"
	"strings"
)

// stringify canonicalizes an indexed field value: identity for strings,
// decimal for integers, comma-join for string lists, and
// "true"/"false" for booleans. Any other type falls back to fmt.Sprint,
// which keeps setField total (it never fails) while still documenting that
// only the four listed kinds are given first-class treatment.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case []string:
		return strings.Join(t, ",")
	default:
		return fmt.Sprint(v)
	}
}
