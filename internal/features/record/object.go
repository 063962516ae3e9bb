package record

import (
	"context"
	"fmt"

	"go-reports/internal/features/entity"
	"go-reports/pkg/condition"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// objectResolver carries the shared plumbing MongoObjects need to follow
// relations and evaluate computed properties.
type objectResolver struct {
	repo         RecordRepository
	introspector entity.Introspector
	engine       *condition.Engine
}

// MongoObject is one fetched record. Relation hops issue one query each,
// which is fine because the report engine caches objects per primary key.
type MongoObject struct {
	resolver *objectResolver
	entity   *entity.Entity
	doc      bson.M
}

func (o *MongoObject) PK() interface{} {
	return condition.Normalize(o.doc["_id"])
}

func (o *MongoObject) Field(name string) (interface{}, bool) {
	if name == PKKey {
		return o.PK(), true
	}
	v, ok := o.doc[name]
	if !ok {
		return nil, false
	}
	return condition.Normalize(v), true
}

func (o *MongoObject) Follow(ctx context.Context, relation string) (Object, error) {
	field := o.entity.FieldByName(relation)
	if field == nil || field.Kind != entity.KindRelation || field.Relation == nil {
		return nil, fmt.Errorf("%w: %s has no relation %q", entity.ErrUnknownField, o.entity.Name, relation)
	}
	if field.Relation.ManyToMany {
		return nil, fmt.Errorf("%w: %q is many-to-many, follow it by member pk", entity.ErrInvalidPath, relation)
	}

	raw, ok := o.doc[relation]
	if !ok || raw == nil {
		return nil, nil
	}
	return o.resolver.fetch(ctx, field.Relation, raw)
}

func (o *MongoObject) FollowMany(ctx context.Context, relation string, pk interface{}) (Object, error) {
	field := o.entity.FieldByName(relation)
	if field == nil || field.Kind != entity.KindRelation || field.Relation == nil {
		return nil, fmt.Errorf("%w: %s has no relation %q", entity.ErrUnknownField, o.entity.Name, relation)
	}
	if pk == nil {
		return nil, nil
	}
	return o.resolver.fetch(ctx, field.Relation, pk)
}

func (o *MongoObject) Property(ctx context.Context, name string) (interface{}, error) {
	field := o.entity.FieldByName(name)
	if field == nil || field.Kind != entity.KindProperty {
		return nil, fmt.Errorf("%w: %s has no property %q", entity.ErrUnknownField, o.entity.Name, name)
	}
	return o.resolver.engine.Evaluate(field.Expression, map[string]interface{}(o.doc))
}

func (o *MongoObject) CustomValue(ctx context.Context, name string) (interface{}, error) {
	field := o.entity.FieldByName(name)
	if field == nil || field.Kind != entity.KindCustom {
		return nil, fmt.Errorf("%w: %s has no custom field %q", entity.ErrUnknownField, o.entity.Name, name)
	}
	id, err := toObjectID(o.doc["_id"])
	if err != nil {
		return nil, err
	}
	v, err := o.resolver.repo.CustomValue(ctx, o.entity.Name, id, name)
	if err != nil {
		return nil, err
	}
	return condition.Normalize(v), nil
}

// fetch loads the related record referenced by raw. A reference that points
// at nothing resolves to nil rather than an error, matching the left-join
// semantics of the pipeline path.
func (r *objectResolver) fetch(ctx context.Context, rel *entity.RelationDef, raw interface{}) (Object, error) {
	target, err := r.introspector.GetEntity(ctx, rel.Entity)
	if err != nil {
		return nil, err
	}

	var doc bson.M
	if rel.ValueField != "" && rel.ValueField != "_id" {
		err = r.repo.Collection(target.Name).FindOne(ctx,
			bson.M{rel.ValueField: raw, keyDeleted: bson.M{"$ne": true}},
		).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	} else {
		id, err := toObjectID(raw)
		if err != nil {
			return nil, err
		}
		doc, err = r.repo.FindByID(ctx, target.Name, id)
		if err == ErrRecordNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}

	return &MongoObject{resolver: r, entity: target, doc: doc}, nil
}
