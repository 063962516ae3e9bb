package record

import (
	"fmt"

	"go-reports/internal/features/entity"

	"go.mongodb.org/mongo-driver/bson"
)

// planner turns "__"-separated query keys into aggregation pipeline stages.
// Relation segments become sequential $lookup stages; the leaf becomes a
// $project expression. The entity loader is injected so the planner stays
// testable without a live database.
type planner struct {
	root *entity.Entity
	load func(name string) (*entity.Entity, error)
}

// keyRef is one resolved query key.
type keyRef struct {
	key      string
	agg      string // aggregate suffix, "" for plain keys
	fieldRef string // document path, e.g. "customer__address.city"
	relAlias string // alias of the last relation in the chain, "" for direct fields
	viaMany  bool   // chain crosses a many-to-many relation
	field    string
}

type relJoin struct {
	alias      string // progressive alias, e.g. "customer__address"
	localField string // parent-scoped field holding the reference
	from       string // target collection
	foreign    string // referenced field on the target, usually _id
	manyToMany bool
}

var aggregateSuffixes = map[string]bool{
	"avg": true, "sum": true, "min": true, "max": true, "count": true,
}

// resolveKey walks a query key through the schema. The trailing segment may
// be an aggregate suffix appended to a real field.
func (p *planner) resolveKey(key string, joins *[]relJoin, seen map[string]bool) (*keyRef, error) {
	segments := entity.SplitPath(key)
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty key", entity.ErrUnknownField)
	}

	cur := p.root
	alias := ""
	viaMany := false

	for i, seg := range segments {
		if seg == PKKey {
			ref := &keyRef{key: key, fieldRef: joinRef(alias, "_id"), relAlias: alias, viaMany: viaMany, field: "_id"}
			switch {
			case i == len(segments)-1:
				return ref, nil
			case i == len(segments)-2 && aggregateSuffixes[segments[len(segments)-1]]:
				ref.agg = segments[len(segments)-1]
				return ref, nil
			default:
				return nil, fmt.Errorf("%w: pk must be the last segment in %q", entity.ErrInvalidPath, key)
			}
		}

		field := cur.FieldByName(seg)
		if field == nil {
			return nil, fmt.Errorf("%w: %s has no field %q", entity.ErrUnknownField, cur.Name, seg)
		}

		if field.Kind == entity.KindRelation && field.Relation != nil {
			if i == len(segments)-1 {
				return nil, fmt.Errorf("%w: %q ends on relation %s", entity.ErrInvalidPath, key, seg)
			}
			parent := alias
			if alias == "" {
				alias = seg
			} else {
				alias = alias + entity.PathSeparator + seg
			}
			if field.Relation.ManyToMany {
				viaMany = true
			}

			if !seen[alias] {
				seen[alias] = true
				foreign := field.Relation.ValueField
				if foreign == "" {
					foreign = "_id"
				}
				*joins = append(*joins, relJoin{
					alias:      alias,
					localField: joinRef(parent, seg),
					from:       CollectionFor(field.Relation.Entity),
					foreign:    foreign,
					manyToMany: field.Relation.ManyToMany,
				})
			}

			next, err := p.load(field.Relation.Entity)
			if err != nil {
				return nil, err
			}
			cur = next
			continue
		}

		// Leaf field: the only thing allowed after it is an aggregate suffix
		ref := &keyRef{key: key, fieldRef: joinRef(alias, seg), relAlias: alias, viaMany: viaMany, field: seg}
		switch {
		case i == len(segments)-1:
			return ref, nil
		case i == len(segments)-2 && aggregateSuffixes[segments[len(segments)-1]]:
			ref.agg = segments[len(segments)-1]
			return ref, nil
		default:
			return nil, fmt.Errorf("%w: %s.%s is not a relation", entity.ErrInvalidPath, cur.Name, seg)
		}
	}

	return nil, fmt.Errorf("%w: %q", entity.ErrInvalidPath, key)
}

func joinRef(alias, field string) string {
	if alias == "" {
		return field
	}
	return alias + "." + field
}

// lookupStages emits the $lookup (and optional $unwind) stages for the
// collected joins. Many-to-many joins listed in keepArrays stay as arrays so
// aggregates can run over them; everything else is unwound, fanning rows out
// the way a SQL join would.
func lookupStages(joins []relJoin, keepArrays map[string]bool) []bson.D {
	var stages []bson.D
	for _, join := range joins {
		stages = append(stages, bson.D{{Key: "$lookup", Value: bson.M{
			"from":         join.from,
			"localField":   join.localField,
			"foreignField": join.foreign,
			"as":           join.alias,
		}}})
		if join.manyToMany && keepArrays[join.alias] {
			continue
		}
		stages = append(stages, bson.D{{Key: "$unwind", Value: bson.M{
			"path":                       "$" + join.alias,
			"preserveNullAndEmptyArrays": true,
		}}})
	}
	return stages
}

// projection builds the flat $project expression for one resolved key.
func (r *keyRef) projection(arrayKept bool) interface{} {
	ref := "$" + r.fieldRef

	if r.agg == "" {
		return ref
	}

	if r.viaMany && arrayKept {
		switch r.agg {
		case "count":
			return bson.M{"$size": bson.M{"$ifNull": []interface{}{"$" + r.relAlias, bson.A{}}}}
		default:
			return bson.M{"$" + r.agg: "$" + r.relAlias + "." + r.field}
		}
	}

	// Aggregate over a single-valued chain degenerates to the value itself
	if r.agg == "count" {
		return bson.M{"$cond": []interface{}{bson.M{"$ne": []interface{}{ref, nil}}, 1, 0}}
	}
	return ref
}

// distinctStages collapses identical projected rows. Joined relations fan
// rows out, so this is how a distinct report drops duplicate tuples.
func distinctStages(keys []string) []bson.D {
	id := bson.M{}
	for _, key := range keys {
		id[key] = "$" + key
	}
	return []bson.D{
		{{Key: "$group", Value: bson.M{"_id": id}}},
		{{Key: "$replaceRoot", Value: bson.M{"newRoot": "$_id"}}},
	}
}

// groupAccumulator builds the $group accumulator for one aggregation over
// unwound rows.
func groupAccumulator(ref string, fn string) bson.M {
	switch fn {
	case "count":
		return bson.M{"$sum": bson.M{"$cond": []interface{}{bson.M{"$ne": []interface{}{ref, nil}}, 1, 0}}}
	default:
		return bson.M{"$" + fn: ref}
	}
}
