package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// toDecimal attempts a numeric coercion. Booleans count as 1/0 so totals
// over flag columns behave like counts.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return val, true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case float64:
		return decimal.NewFromFloat(val), true
	case bool:
		if val {
			return decimal.NewFromInt(1), true
		}
		return decimal.Zero, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

func toTime(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, val); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

// stringify renders any cell value as text, replacing invalid UTF-8 bytes
// instead of failing.
func stringify(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.ToValidUTF8(s, "�")
	}
	if b, ok := v.([]byte); ok {
		return strings.ToValidUTF8(string(b), "�")
	}
	return strings.ToValidUTF8(fmt.Sprintf("%v", v), "�")
}
