package services

import (
	"context"
	"fmt"
	"time"

	"vigil/internal/metrics/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository handles database operations for probe metrics
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates a new repository instance
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		collection: db.Collection(models.MetricsCollection),
	}
}

// CreateIndexes creates necessary database indexes
func (r *Repository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "monitor_id", Value: 1}, {Key: "timestamp", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Append inserts a new metric. Duplicate keys are rejected rather than
// overwritten, keeping the store append-only.
func (r *Repository) Append(ctx context.Context, metric *models.Metric) error {
	if _, err := r.collection.InsertOne(ctx, metric); err != nil {
		return fmt.Errorf("failed to append metric: %w", err)
	}
	return nil
}

// QuerySince returns all metrics for a monitor at or after the given time,
// ordered by timestamp ascending.
func (r *Repository) QuerySince(ctx context.Context, monitorID string, since time.Time) ([]models.Metric, error) {
	filter := bson.M{
		"monitor_id": monitorID,
		"timestamp":  bson.M{"$gte": since},
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer cursor.Close(ctx)

	var metrics []models.Metric
	if err := cursor.All(ctx, &metrics); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}

	return metrics, nil
}
