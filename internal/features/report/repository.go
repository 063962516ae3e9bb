package report

import (
	"context"
	"time"

	"go-reports/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*Report, error)
	List(ctx context.Context, filter bson.M, limit, offset int64) ([]Report, error)
	Update(ctx context.Context, r *Report) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	ToggleStar(ctx context.Context, id primitive.ObjectID, userID string, starred bool) error
}

type MongoReportRepository struct {
	collection *mongo.Collection
}

func NewReportRepository(mongodb *database.MongodbDB) ReportRepository {
	return &MongoReportRepository{collection: mongodb.DB.Collection("reports")}
}

func (r *MongoReportRepository) Create(ctx context.Context, report *Report) error {
	now := time.Now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now

	res, err := r.collection.InsertOne(ctx, report)
	if err != nil {
		return err
	}
	report.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *MongoReportRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*Report, error) {
	var report Report
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &report, nil
}

func (r *MongoReportRepository) List(ctx context.Context, filter bson.M, limit, offset int64) ([]Report, error) {
	opts := options.Find().SetLimit(limit).SetSkip(offset).SetSort(bson.M{"updated_at": -1})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reports []Report
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *MongoReportRepository) Update(ctx context.Context, report *Report) error {
	report.UpdatedAt = time.Now().UTC()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": report.ID}, report)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (r *MongoReportRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (r *MongoReportRepository) ToggleStar(ctx context.Context, id primitive.ObjectID, userID string, starred bool) error {
	update := bson.M{"$pull": bson.M{"starred_by": userID}}
	if starred {
		update = bson.M{"$addToSet": bson.M{"starred_by": userID}}
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrReportNotFound
	}
	return nil
}
