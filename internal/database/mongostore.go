package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const recordsCollection = "records"

// MongoStore keeps records as documents in a single collection, keyed by the
// record key. The version compare-and-swap rides on FindOneAndUpdate with
// the version in the filter, so concurrent writers cannot silently discard
// each other's updates.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type mongoRecord struct {
	Key       string    `bson:"_id"`
	Version   int64     `bson:"version"`
	Data      []byte    `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// NewMongoStore connects to MongoDB with connection pooling and verifies the
// connection.
func NewMongoStore(ctx context.Context, uri string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "neurochat"
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(recordsCollection),
	}, nil
}

// extractDBName extracts the database name from a MongoDB URI.
// mongodb://localhost:27017/neurochat?authSource=admin -> neurochat
func extractDBName(uri string) string {
	lastSlash := -1
	questionMark := -1
	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}
	if lastSlash == -1 {
		return ""
	}
	start := lastSlash + 1
	end := len(uri)
	if questionMark != -1 && questionMark > lastSlash {
		end = questionMark
	}
	if start >= end {
		return ""
	}
	return uri[start:end]
}

func (s *MongoStore) Get(ctx context.Context, key string) (*Record, error) {
	var rec mongoRecord
	err := s.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", key, err)
	}
	return &Record{Key: rec.Key, Version: rec.Version, Data: rec.Data}, nil
}

func (s *MongoStore) Put(ctx context.Context, key string, data []byte, version int64) (int64, error) {
	now := time.Now()

	if version == 0 {
		_, err := s.collection.InsertOne(ctx, mongoRecord{
			Key:       key,
			Version:   1,
			Data:      data,
			UpdatedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return 0, ErrVersionConflict
		}
		if err != nil {
			return 0, fmt.Errorf("failed to insert record %s: %w", key, err)
		}
		return 1, nil
	}

	filter := bson.M{"_id": key, "version": version}
	update := bson.M{
		"$set": bson.M{"data": data, "updatedAt": now},
		"$inc": bson.M{"version": 1},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated mongoRecord
	err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == mongo.ErrNoDocuments {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update record %s: %w", key, err)
	}
	return updated.Version, nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return s.client.Disconnect(ctx)
}
