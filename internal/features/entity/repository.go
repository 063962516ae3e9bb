package entity

import (
	"context"
	"errors"
	"time"

	"go-reports/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type EntityRepository interface {
	Create(ctx context.Context, entity *Entity) error
	FindByName(ctx context.Context, name string) (*Entity, error)
	List(ctx context.Context) ([]Entity, error)
	Update(ctx context.Context, entity *Entity) error
	Delete(ctx context.Context, name string) error
}

type EntityRepositoryImpl struct {
	Collection *mongo.Collection
}

func NewEntityRepository(db *database.MongodbDB) EntityRepository {
	return &EntityRepositoryImpl{
		Collection: db.DB.Collection("entities"),
	}
}

func (r *EntityRepositoryImpl) Create(ctx context.Context, entity *Entity) error {
	if entity.ID.IsZero() {
		entity.ID = primitive.NewObjectID()
	}
	entity.CreatedAt = time.Now()
	entity.UpdatedAt = time.Now()
	_, err := r.Collection.InsertOne(ctx, entity)
	return err
}

func (r *EntityRepositoryImpl) FindByName(ctx context.Context, name string) (*Entity, error) {
	var entity Entity
	err := r.Collection.FindOne(ctx, bson.M{"name": name}).Decode(&entity)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entity, nil
}

func (r *EntityRepositoryImpl) List(ctx context.Context) ([]Entity, error) {
	cursor, err := r.Collection.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entities []Entity
	if err := cursor.All(ctx, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *EntityRepositoryImpl) Update(ctx context.Context, entity *Entity) error {
	entity.UpdatedAt = time.Now()
	update := bson.M{
		"$set": bson.M{
			"label":      entity.Label,
			"namespace":  entity.Namespace,
			"fields":     entity.Fields,
			"updated_at": entity.UpdatedAt,
		},
	}
	_, err := r.Collection.UpdateOne(ctx, bson.M{"name": entity.Name}, update)
	return err
}

func (r *EntityRepositoryImpl) Delete(ctx context.Context, name string) error {
	_, err := r.Collection.DeleteOne(ctx, bson.M{"name": name})
	return err
}
