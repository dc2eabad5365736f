package services

import (
	"context"
	"errors"
	"fmt"

	"vigil/internal/monitors/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when a referenced monitor does not exist.
var ErrNotFound = errors.New("monitor not found")

// Repository handles database operations for monitor configs
type Repository struct {
	collection *mongo.Collection
}

// NewRepository creates a new repository instance
func NewRepository(db *mongo.Database) *Repository {
	return &Repository{
		collection: db.Collection(models.MonitorsCollection),
	}
}

// CreateIndexes creates necessary database indexes
func (r *Repository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "url", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a new monitor config
func (r *Repository) Create(ctx context.Context, monitor *models.MonitorConfig) error {
	if _, err := r.collection.InsertOne(ctx, monitor); err != nil {
		return fmt.Errorf("failed to create monitor: %w", err)
	}
	return nil
}

// GetByID retrieves a monitor config by its ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.MonitorConfig, error) {
	var monitor models.MonitorConfig
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&monitor)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get monitor: %w", err)
	}
	return &monitor, nil
}

// List returns all monitor configs ordered by creation time
func (r *Repository) List(ctx context.Context) ([]models.MonitorConfig, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list monitors: %w", err)
	}
	defer cursor.Close(ctx)

	var monitors []models.MonitorConfig
	if err := cursor.All(ctx, &monitors); err != nil {
		return nil, fmt.Errorf("failed to decode monitors: %w", err)
	}

	return monitors, nil
}
