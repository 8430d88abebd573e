package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"grandgold-errcache/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBDecisionRepository implements DecisionRepository using MongoDB.
type MongoDBDecisionRepository struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	log        *slog.Logger
}

// NewMongoDBDecisionRepository connects to MongoDB and ensures indexes.
func NewMongoDBDecisionRepository(uri, database, collection string) (*MongoDBDecisionRepository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	coll := db.Collection(collection)
	logger := slog.With("component", "MongoDBDecisionRepository")

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "key", Value: 1}, {Key: "recorded_at", Value: -1}}},
		{Keys: bson.D{{Key: "recorded_at", Value: 1}}},
	}
	if _, err := coll.Indexes().CreateMany(ctx, indexes); err != nil {
		logger.Warn("failed to create indexes", "error", err)
	}

	logger.Info("decision log initialized", "database", database, "collection", collection)
	return &MongoDBDecisionRepository{
		client:     client,
		db:         db,
		collection: coll,
		log:        logger,
	}, nil
}

// BatchInsert inserts decisions with an unordered InsertMany.
func (r *MongoDBDecisionRepository) BatchInsert(ctx context.Context, decisions []model.Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	docs := make([]interface{}, len(decisions))
	for i, d := range decisions {
		d.RecordedAt = d.RecordedAt.UTC()
		docs[i] = d
	}

	_, err := r.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to insert decisions: %w", err)
	}
	return nil
}

// ListRecent returns up to limit decisions, newest first.
func (r *MongoDBDecisionRepository) ListRecent(ctx context.Context, key string, limit int) ([]model.Decision, error) {
	filter := bson.M{}
	if key != "" {
		filter["key"] = key
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "recorded_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer cursor.Close(ctx)

	decisions := make([]model.Decision, 0, limit)
	if err := cursor.All(ctx, &decisions); err != nil {
		return nil, fmt.Errorf("failed to decode decisions: %w", err)
	}
	return decisions, nil
}

// DeleteOlderThan removes decisions recorded before cutoff.
func (r *MongoDBDecisionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"recorded_at": bson.M{"$lt": cutoff.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old decisions: %w", err)
	}

	if result.DeletedCount > 0 {
		r.log.Info("pruned decision log", "deleted", result.DeletedCount, "cutoff", cutoff)
	}
	return result.DeletedCount, nil
}

// GetStats returns statistics about the decision log.
func (r *MongoDBDecisionRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["backend"] = "MongoDB"

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	stats["total_decisions"] = count

	if visible, err := r.collection.CountDocuments(ctx, bson.M{"visible": true}); err == nil {
		stats["visible_decisions"] = visible
	}

	var collStats bson.M
	cmd := bson.D{{Key: "collStats", Value: r.collection.Name()}}
	if err := r.db.RunCommand(ctx, cmd).Decode(&collStats); err == nil {
		stats["db_size_bytes"] = collStats["size"]
	}

	return stats, nil
}

// Close disconnects the client.
func (r *MongoDBDecisionRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.client.Disconnect(ctx)
}

var _ DecisionRepository = (*MongoDBDecisionRepository)(nil)
