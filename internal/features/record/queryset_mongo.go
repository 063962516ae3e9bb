package record

import (
	"context"
	"fmt"
	"strings"

	"go-reports/internal/features/entity"
	"go-reports/pkg/condition"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoQueryset runs report projections as aggregation pipelines over one
// entity's record collection. Predicates are applied after relation lookups
// so they can reference related fields with the same path syntax as columns.
type MongoQueryset struct {
	repo         RecordRepository
	introspector entity.Introspector
	engine       *condition.Engine
	root         *entity.Entity
	predicates   []Predicate
	distinct     bool
}

func (q *MongoQueryset) EntityName() string {
	return q.root.Name
}

func (q *MongoQueryset) planner(ctx context.Context) *planner {
	return &planner{
		root: q.root,
		load: func(name string) (*entity.Entity, error) {
			return q.introspector.GetEntity(ctx, name)
		},
	}
}

// resolveAll resolves keys and predicate fields against the schema, sharing
// one join list so each relation is looked up once per pipeline.
func (q *MongoQueryset) resolveAll(ctx context.Context, keys []string) ([]*keyRef, []relJoin, bson.M, error) {
	p := q.planner(ctx)
	var joins []relJoin
	seen := make(map[string]bool)

	refs := make([]*keyRef, 0, len(keys))
	for _, key := range keys {
		ref, err := p.resolveKey(key, &joins, seen)
		if err != nil {
			return nil, nil, nil, err
		}
		refs = append(refs, ref)
	}

	match, err := compilePredicates(q.predicates, func(field string) (string, error) {
		ref, err := p.resolveKey(field, &joins, seen)
		if err != nil {
			return "", err
		}
		if ref.agg != "" {
			return "", fmt.Errorf("filter field %q names an aggregate", field)
		}
		return ref.fieldRef, nil
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return refs, joins, match, nil
}

// arrayAliases decides which many-to-many lookups stay as arrays. An alias
// survives only when every key touching it is an aggregate and no deeper
// join hangs off it; everything else is unwound so rows fan out.
func arrayAliases(joins []relJoin, refs []*keyRef, predicates []Predicate) map[string]bool {
	keep := make(map[string]bool)
	for _, j := range joins {
		if j.manyToMany {
			keep[j.alias] = true
		}
	}

	touch := func(alias string) {
		for kept := range keep {
			if alias == kept || strings.HasPrefix(alias, kept+entity.PathSeparator) {
				delete(keep, kept)
			}
		}
	}

	for _, ref := range refs {
		if ref.agg == "" && ref.relAlias != "" {
			touch(ref.relAlias)
		}
	}
	for _, p := range predicates {
		segments := entity.SplitPath(p.Field)
		if len(segments) > 1 {
			touch(strings.Join(segments[:len(segments)-1], entity.PathSeparator))
		}
	}
	for _, j := range joins {
		for kept := range keep {
			if strings.HasPrefix(j.alias, kept+entity.PathSeparator) {
				delete(keep, kept)
			}
		}
	}
	return keep
}

func (q *MongoQueryset) baseStages(joins []relJoin, match bson.M, keep map[string]bool) []bson.D {
	stages := []bson.D{
		{{Key: "$match", Value: bson.M{keyDeleted: bson.M{"$ne": true}}}},
	}
	stages = append(stages, lookupStages(joins, keep)...)
	if len(match) > 0 {
		stages = append(stages, bson.D{{Key: "$match", Value: match}})
	}
	return stages
}

func (q *MongoQueryset) ValuesFlat(ctx context.Context, keys []string) (RowIterator, error) {
	refs, joins, match, err := q.resolveAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	keep := arrayAliases(joins, refs, q.predicates)

	proj := bson.M{"_id": 0}
	for _, ref := range refs {
		proj[ref.key] = ref.projection(keep[ref.relAlias])
	}

	pipeline := append(q.baseStages(joins, match, keep),
		bson.D{{Key: "$project", Value: proj}},
	)
	if q.distinct {
		pipeline = append(pipeline, distinctStages(keys)...)
	}

	cursor, err := q.repo.Collection(q.root.Name).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return &mongoRowIterator{cursor: cursor, keys: keys}, nil
}

func (q *MongoQueryset) ValuesGrouped(ctx context.Context, groupKeys []string, aggs []Aggregation) ([]map[string]interface{}, error) {
	aggKeys := make([]string, 0, len(aggs))
	for _, a := range aggs {
		aggKeys = append(aggKeys, a.Key)
	}

	refs, joins, match, err := q.resolveAll(ctx, append(append([]string{}, groupKeys...), aggKeys...))
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if ref.agg != "" {
			return nil, fmt.Errorf("grouped key %q carries an aggregate suffix", ref.key)
		}
	}
	groupRefs := refs[:len(groupKeys)]
	aggRefs := refs[len(groupKeys):]

	groupID := bson.M{}
	for _, ref := range groupRefs {
		groupID[ref.key] = "$" + ref.fieldRef
	}

	group := bson.M{"_id": groupID}
	proj := bson.M{"_id": 0}
	for _, ref := range groupRefs {
		proj[ref.key] = "$_id." + ref.key
	}
	for i, a := range aggs {
		rk := a.ResultKey()
		group[rk] = groupAccumulator("$"+aggRefs[i].fieldRef, a.Func)
		proj[rk] = "$" + rk
	}

	// Every lookup is unwound here so accumulators see one value per row
	pipeline := append(q.baseStages(joins, match, nil),
		bson.D{{Key: "$group", Value: group}},
		bson.D{{Key: "$project", Value: proj}},
	)

	cursor, err := q.repo.Collection(q.root.Name).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []map[string]interface{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(doc))
		for k, v := range doc {
			row[k] = condition.Normalize(v)
		}
		rows = append(rows, row)
	}
	return rows, cursor.Err()
}

func (q *MongoQueryset) Object(ctx context.Context, pk interface{}) (Object, error) {
	id, err := toObjectID(pk)
	if err != nil {
		return nil, err
	}
	doc, err := q.repo.FindByID(ctx, q.root.Name, id)
	if err != nil {
		return nil, err
	}
	return &MongoObject{
		resolver: &objectResolver{repo: q.repo, introspector: q.introspector, engine: q.engine},
		entity:   q.root,
		doc:      doc,
	}, nil
}

func toObjectID(pk interface{}) (primitive.ObjectID, error) {
	switch v := pk.(type) {
	case primitive.ObjectID:
		return v, nil
	case string:
		return primitive.ObjectIDFromHex(v)
	default:
		return primitive.NilObjectID, fmt.Errorf("unsupported primary key type %T", pk)
	}
}

// mongoRowIterator adapts an aggregation cursor to fixed-order rows.
type mongoRowIterator struct {
	cursor *mongo.Cursor
	keys   []string
	row    []interface{}
	err    error
}

func (it *mongoRowIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	if !it.cursor.Next(ctx) {
		it.err = it.cursor.Err()
		return false
	}

	var doc bson.M
	if err := it.cursor.Decode(&doc); err != nil {
		it.err = err
		return false
	}

	row := make([]interface{}, len(it.keys))
	for i, key := range it.keys {
		if v, ok := doc[key]; ok {
			row[i] = condition.Normalize(v)
		}
	}
	it.row = row
	return true
}

func (it *mongoRowIterator) Row() []interface{} { return it.row }

func (it *mongoRowIterator) Err() error { return it.err }

func (it *mongoRowIterator) Close(ctx context.Context) error {
	return it.cursor.Close(ctx)
}
