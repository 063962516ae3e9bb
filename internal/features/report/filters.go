package report

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// excludes decides whether a row is dropped based on the resolved value of
// this filter's field. A non-matching value excludes the row; the Exclude
// flag inverts that.
func (fp *filterPlan) excludes(value interface{}) bool {
	filtered := !matchesFilter(value, fp.ff.Operator, fp.ff.Value)
	if fp.ff.Exclude {
		filtered = !filtered
	}
	return filtered
}

// matchesFilter evaluates a stored operator against an in-process value.
// Comparisons go numeric when both sides coerce to decimals, otherwise they
// fall back to string comparison.
func matchesFilter(value interface{}, operator string, filterValue interface{}) bool {
	switch operator {
	case "", "exact":
		return stringify(value) == stringify(filterValue)
	case "iexact":
		return strings.EqualFold(stringify(value), stringify(filterValue))
	case "contains":
		return strings.Contains(stringify(value), stringify(filterValue))
	case "icontains":
		return strings.Contains(strings.ToLower(stringify(value)), strings.ToLower(stringify(filterValue)))
	case "startswith":
		return strings.HasPrefix(stringify(value), stringify(filterValue))
	case "istartswith":
		return strings.HasPrefix(strings.ToLower(stringify(value)), strings.ToLower(stringify(filterValue)))
	case "endswith":
		return strings.HasSuffix(stringify(value), stringify(filterValue))
	case "iendswith":
		return strings.HasSuffix(strings.ToLower(stringify(value)), strings.ToLower(stringify(filterValue)))
	case "gt", "gte", "lt", "lte":
		return compareOrdered(value, filterValue, operator)
	case "in":
		for _, candidate := range asList(filterValue) {
			if stringify(value) == stringify(candidate) {
				return true
			}
		}
		return false
	case "range":
		bounds := asList(filterValue)
		if len(bounds) != 2 {
			return false
		}
		return compareOrdered(value, bounds[0], "gte") && compareOrdered(value, bounds[1], "lte")
	case "isnull":
		wantNull := stringify(filterValue) == "true" || stringify(filterValue) == "1"
		return (value == nil) == wantNull
	case "regex":
		re, err := regexp.Compile(stringify(filterValue))
		return err == nil && re.MatchString(stringify(value))
	case "iregex":
		re, err := regexp.Compile("(?i)" + stringify(filterValue))
		return err == nil && re.MatchString(stringify(value))
	default:
		return false
	}
}

func compareOrdered(value, filterValue interface{}, operator string) bool {
	var cmp int
	a, aok := toDecimal(value)
	b, bok := toDecimal(filterValue)
	if aok && bok {
		cmp = a.Cmp(b)
	} else if at, aok := toTime(value); aok {
		if bt, bok := toTime(filterValue); bok {
			cmp = at.Compare(bt)
		} else {
			cmp = strings.Compare(stringify(value), stringify(filterValue))
		}
	} else {
		cmp = strings.Compare(stringify(value), stringify(filterValue))
	}

	switch operator {
	case "gt":
		return cmp > 0
	case "gte":
		return cmp >= 0
	case "lt":
		return cmp < 0
	case "lte":
		return cmp <= 0
	}
	return false
}

func asList(v interface{}) []interface{} {
	switch val := v.(type) {
	case []interface{}:
		return val
	case primitive.A:
		return []interface{}(val)
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []interface{}{val}
	}
}
