package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ToFloat converts any Go number to float64.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// numberOrBool treats booleans as 0/1 for equality checks.
func numberOrBool(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return ToFloat(v)
}

// Compare orders two values. The second result is false when the values are
// null, NaN, or of incomparable types. A string is compared against a time
// by parsing it with ParseDate.
func Compare(a, b any) (int, bool) {
	if IsNull(a) || IsNull(b) {
		return 0, false
	}
	if fa, ok := ToFloat(a); ok {
		fb, ok := ToFloat(b)
		if !ok {
			return 0, false
		}
		return compareFloat(fa, fb), true
	}
	switch x := a.(type) {
	case time.Time:
		y, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case string:
		switch y := b.(type) {
		case string:
			return strings.Compare(x, y), true
		case time.Time:
			tx, ok := ParseDate(x)
			if !ok {
				return 0, false
			}
			return tx.Compare(y), true
		}
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		return ParseDate(x)
	}
	return time.Time{}, false
}

// Equal reports whether two non-null values are equal. Numbers compare by
// value across Go types and booleans equal 1 and 0. Null never equals anything.
func Equal(a, b any) bool {
	if IsNull(a) || IsNull(b) {
		return false
	}
	if fa, ok := numberOrBool(a); ok {
		fb, ok := numberOrBool(b)
		return ok && fa == fb
	}
	c, ok := Compare(a, b)
	return ok && c == 0
}

// Format renders a value the way text operators see it.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.DateTime)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
