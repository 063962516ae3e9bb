package record

import (
	"context"
	"errors"
	"time"

	"go-reports/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrRecordNotFound = errors.New("record not found")

// CollectionFor names the per-entity record collection.
func CollectionFor(entityName string) string {
	return "records_" + entityName
}

// Reserved document keys. Entity field names may not start with an
// underscore, so these never collide with stored values.
const (
	keyDeleted   = "_deleted"
	keyCreatedAt = "_created_at"
	keyUpdatedAt = "_updated_at"
)

type RecordRepository interface {
	Insert(ctx context.Context, entityName string, values map[string]interface{}) (primitive.ObjectID, error)
	Update(ctx context.Context, entityName string, id primitive.ObjectID, values map[string]interface{}) error
	SoftDelete(ctx context.Context, entityName string, id primitive.ObjectID) error
	FindByID(ctx context.Context, entityName string, id primitive.ObjectID) (bson.M, error)
	List(ctx context.Context, entityName string, filter bson.M, limit, offset int64) ([]bson.M, error)
	Count(ctx context.Context, entityName string, filter bson.M) (int64, error)

	SetCustomValue(ctx context.Context, entityName string, recordID primitive.ObjectID, field string, value interface{}) error
	CustomValue(ctx context.Context, entityName string, recordID primitive.ObjectID, field string) (interface{}, error)
	CustomValues(ctx context.Context, entityName string, recordID primitive.ObjectID) (map[string]interface{}, error)

	Collection(entityName string) *mongo.Collection
}

type MongoRecordRepository struct {
	db *mongo.Database
}

func NewRecordRepository(mongodb *database.MongodbDB) RecordRepository {
	return &MongoRecordRepository{db: mongodb.DB}
}

func (r *MongoRecordRepository) Collection(entityName string) *mongo.Collection {
	return r.db.Collection(CollectionFor(entityName))
}

func (r *MongoRecordRepository) customValues() *mongo.Collection {
	return r.db.Collection("custom_values")
}

func (r *MongoRecordRepository) Insert(ctx context.Context, entityName string, values map[string]interface{}) (primitive.ObjectID, error) {
	now := time.Now().UTC()
	doc := bson.M{}
	for k, v := range values {
		doc[k] = v
	}
	doc[keyDeleted] = false
	doc[keyCreatedAt] = now
	doc[keyUpdatedAt] = now

	res, err := r.Collection(entityName).InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (r *MongoRecordRepository) Update(ctx context.Context, entityName string, id primitive.ObjectID, values map[string]interface{}) error {
	set := bson.M{keyUpdatedAt: time.Now().UTC()}
	for k, v := range values {
		set[k] = v
	}

	res, err := r.Collection(entityName).UpdateOne(ctx,
		bson.M{"_id": id, keyDeleted: bson.M{"$ne": true}},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *MongoRecordRepository) SoftDelete(ctx context.Context, entityName string, id primitive.ObjectID) error {
	res, err := r.Collection(entityName).UpdateOne(ctx,
		bson.M{"_id": id, keyDeleted: bson.M{"$ne": true}},
		bson.M{"$set": bson.M{keyDeleted: true, keyUpdatedAt: time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *MongoRecordRepository) FindByID(ctx context.Context, entityName string, id primitive.ObjectID) (bson.M, error) {
	var doc bson.M
	err := r.Collection(entityName).FindOne(ctx,
		bson.M{"_id": id, keyDeleted: bson.M{"$ne": true}},
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *MongoRecordRepository) List(ctx context.Context, entityName string, filter bson.M, limit, offset int64) ([]bson.M, error) {
	match := bson.M{keyDeleted: bson.M{"$ne": true}}
	for k, v := range filter {
		match[k] = v
	}

	opts := options.Find().SetLimit(limit).SetSkip(offset).SetSort(bson.M{keyCreatedAt: -1})
	cursor, err := r.Collection(entityName).Find(ctx, match, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *MongoRecordRepository) Count(ctx context.Context, entityName string, filter bson.M) (int64, error) {
	match := bson.M{keyDeleted: bson.M{"$ne": true}}
	for k, v := range filter {
		match[k] = v
	}
	return r.Collection(entityName).CountDocuments(ctx, match)
}

func (r *MongoRecordRepository) SetCustomValue(ctx context.Context, entityName string, recordID primitive.ObjectID, field string, value interface{}) error {
	_, err := r.customValues().UpdateOne(ctx,
		bson.M{"entity": entityName, "record_id": recordID, "field": field},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *MongoRecordRepository) CustomValue(ctx context.Context, entityName string, recordID primitive.ObjectID, field string) (interface{}, error) {
	var doc bson.M
	err := r.customValues().FindOne(ctx,
		bson.M{"entity": entityName, "record_id": recordID, "field": field},
	).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc["value"], nil
}

func (r *MongoRecordRepository) CustomValues(ctx context.Context, entityName string, recordID primitive.ObjectID) (map[string]interface{}, error) {
	cursor, err := r.customValues().Find(ctx, bson.M{"entity": entityName, "record_id": recordID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	values := make(map[string]interface{})
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		if field, ok := doc["field"].(string); ok {
			values[field] = doc["value"]
		}
	}
	return values, cursor.Err()
}
