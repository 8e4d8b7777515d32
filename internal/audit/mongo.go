package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/saviobatista/seatime-logger/internal/types"
)

// CollectionName is the collection holding provider call records
const CollectionName = "ais_api_logs"

// NewMongoClient creates a new MongoDB client
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().ApplyURI(uri)

	// Set connection timeout
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping to check connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return client, nil
}

// MongoStore records provider calls in MongoDB
type MongoStore struct {
	collection *mongo.Collection
}

// NewMongoStore creates the audit store and its lookup index
func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	collection := db.Collection(CollectionName)

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "mmsi", Value: 1}, {Key: "timestamp", Value: -1}},
	}
	if _, err := collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return nil, fmt.Errorf("failed to create audit index: %w", err)
	}

	return &MongoStore{collection: collection}, nil
}

// Record inserts one API call record
func (s *MongoStore) Record(ctx context.Context, entry *types.APICallLog) error {
	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert api call log: %w", err)
	}
	return nil
}

// Recent returns the latest records for an MMSI, newest first
func (s *MongoStore) Recent(ctx context.Context, mmsi string, limit int64) ([]types.APICallLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, bson.M{"mmsi": mmsi}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query api call logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []types.APICallLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("failed to decode api call logs: %w", err)
	}
	return logs, nil
}
