package schedule

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

var ErrScheduleNotFound = errors.New("schedule not found")

type ScheduleRepository interface {
	Create(ctx context.Context, s *Schedule) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Schedule, error)
	List(ctx context.Context, filter bson.M) ([]Schedule, error)
	FindActive(ctx context.Context) ([]Schedule, error)
	Update(ctx context.Context, s *Schedule) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	UpdateRunTimes(ctx context.Context, id primitive.ObjectID, lastRun time.Time, nextRun *time.Time) error
}

type MongoScheduleRepository struct {
	collection *mongo.Collection
}

func NewScheduleRepository(mongodb *database.MongodbDB) ScheduleRepository {
	return &MongoScheduleRepository{collection: mongodb.DB.Collection("schedules")}
}

func (r *MongoScheduleRepository) Create(ctx context.Context, s *Schedule) error {
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	res, err := r.collection.InsertOne(ctx, s)
	if err != nil {
		return err
	}
	s.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *MongoScheduleRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Schedule, error) {
	var s Schedule
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *MongoScheduleRepository) List(ctx context.Context, filter bson.M) ([]Schedule, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var schedules []Schedule
	if err := cursor.All(ctx, &schedules); err != nil {
		return nil, err
	}
	return schedules, nil
}

func (r *MongoScheduleRepository) FindActive(ctx context.Context) ([]Schedule, error) {
	return r.List(ctx, bson.M{"active": true})
}

func (r *MongoScheduleRepository) Update(ctx context.Context, s *Schedule) error {
	s.UpdatedAt = time.Now().UTC()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": s.ID}, s)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *MongoScheduleRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func (r *MongoScheduleRepository) UpdateRunTimes(ctx context.Context, id primitive.ObjectID, lastRun time.Time, nextRun *time.Time) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"last_run": lastRun, "next_run": nextRun, "updated_at": time.Now().UTC()},
	})
	return err
}
