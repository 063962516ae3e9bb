package record

import (
	"fmt"
	"regexp"

	common_models "go-reports/internal/common/models"

	"go.mongodb.org/mongo-driver/bson"
)

// Predicate is a stored filter plus its exclusion flag. Excluded predicates
// match the rows to drop instead of the rows to keep.
type Predicate struct {
	common_models.Filter
	Exclude bool `json:"exclude" bson:"exclude"`
}

// compileCondition translates one operator into a match expression on the
// resolved document path. Unknown operators are rejected rather than
// silently matching everything.
func compileCondition(ref, operator string, value interface{}) (bson.M, error) {
	switch operator {
	case "", "exact", "eq":
		return bson.M{ref: value}, nil
	case "iexact":
		return bson.M{ref: bson.M{"$regex": "^" + regexp.QuoteMeta(toString(value)) + "$", "$options": "i"}}, nil
	case "ne":
		return bson.M{ref: bson.M{"$ne": value}}, nil
	case "gt", "gte", "lt", "lte":
		return bson.M{ref: bson.M{"$" + operator: value}}, nil
	case "in":
		return bson.M{ref: bson.M{"$in": toSlice(value)}}, nil
	case "contains":
		return bson.M{ref: bson.M{"$regex": regexp.QuoteMeta(toString(value))}}, nil
	case "icontains":
		return bson.M{ref: bson.M{"$regex": regexp.QuoteMeta(toString(value)), "$options": "i"}}, nil
	case "startswith":
		return bson.M{ref: bson.M{"$regex": "^" + regexp.QuoteMeta(toString(value))}}, nil
	case "istartswith":
		return bson.M{ref: bson.M{"$regex": "^" + regexp.QuoteMeta(toString(value)), "$options": "i"}}, nil
	case "endswith":
		return bson.M{ref: bson.M{"$regex": regexp.QuoteMeta(toString(value)) + "$"}}, nil
	case "iendswith":
		return bson.M{ref: bson.M{"$regex": regexp.QuoteMeta(toString(value)) + "$", "$options": "i"}}, nil
	case "range":
		bounds := toSlice(value)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("range filter needs exactly two bounds, got %d", len(bounds))
		}
		return bson.M{ref: bson.M{"$gte": bounds[0], "$lte": bounds[1]}}, nil
	case "isnull":
		if isTruthy(value) {
			return bson.M{ref: nil}, nil
		}
		return bson.M{ref: bson.M{"$ne": nil}}, nil
	default:
		return nil, fmt.Errorf("unsupported filter operator %q", operator)
	}
}

// compilePredicates builds the $match document for a predicate list. The
// resolve callback maps a filter's field path to its document path and
// registers any relation joins it needs.
func compilePredicates(predicates []Predicate, resolve func(key string) (string, error)) (bson.M, error) {
	var conditions []bson.M
	for _, p := range predicates {
		ref, err := resolve(p.Field)
		if err != nil {
			return nil, err
		}
		cond, err := compileCondition(ref, p.Operator, p.Value)
		if err != nil {
			return nil, err
		}
		if p.Exclude {
			cond = bson.M{"$nor": []bson.M{cond}}
		}
		conditions = append(conditions, cond)
	}

	switch len(conditions) {
	case 0:
		return bson.M{}, nil
	case 1:
		return conditions[0], nil
	default:
		return bson.M{"$and": conditions}, nil
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toSlice(v interface{}) []interface{} {
	switch val := v.(type) {
	case []interface{}:
		return val
	case bson.A:
		return []interface{}(val)
	case nil:
		return nil
	default:
		return []interface{}{val}
	}
}

func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "1"
	case int, int32, int64, float64:
		return fmt.Sprintf("%v", val) != "0"
	default:
		return false
	}
}
