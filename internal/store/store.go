// Package store implements the document-store adapter (C7), grounded on
// original_source/backend/db/DatabaseOperations.py and
// original_source/backend/db/Client.py, backed by
// go.mongodb.org/mongo-driver - the one dependency this repo adds outside
// the retrieval pack, since the aggregation vocabulary this module forwards
// (`$match`/`$group`/`$project`/`$facet`/`$unwind`) is literally MongoDB's
// own grammar (SPEC_FULL.md §4.7).
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"firestige.xyz/otus/internal/classifier"
	"firestige.xyz/otus/internal/log"
)

// Store wraps one Mongo collection with the insert/aggregate/prune
// operations the Consumer (C6) and query engine (C8) need.
type Store struct {
	client     *mongo.Client
	database   *mongo.Database
	collection *mongo.Collection
	logger     log.Logger
}

// Config mirrors the original's ENV_CONFIG-driven connection parameters.
type Config struct {
	URI            string
	DatabaseName   string
	CollectionName string
}

const defaultCollectionName = "captured_packets"

// Connect dials Mongo and ensures the collection's indexes exist, matching
// DatabaseOperations.__init__'s _create_indexes call.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	collectionName := cfg.CollectionName
	if collectionName == "" {
		collectionName = defaultCollectionName
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.URI, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongo at %s: %w", cfg.URI, err)
	}

	db := client.Database(cfg.DatabaseName)
	coll := db.Collection(collectionName)

	s := &Store{
		client:     client,
		database:   db,
		collection: coll,
		logger:     log.GetLogger().WithField("component", "Store"),
	}
	if err := s.createIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// createIndexes builds a descending index on timestamp and ascending
// indexes on source_ip and protocol, matching
// DatabaseOperations._create_indexes exactly.
func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "source_ip", Value: 1}}},
		{Keys: bson.D{{Key: "protocol", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// InsertOne persists one ClassifiedRecord, matching insert_packet's
// field-by-field document shape.
func (s *Store) InsertOne(ctx context.Context, rec *classifier.ClassifiedRecord) error {
	_, err := s.collection.InsertOne(ctx, rec)
	if err != nil {
		s.logger.WithError(err).Error("error inserting packet")
		return err
	}
	return nil
}

// InsertMany persists a batch of records in one round trip, matching
// insert_many_packets.
func (s *Store) InsertMany(ctx context.Context, recs []*classifier.ClassifiedRecord) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, len(recs))
	for i, r := range recs {
		docs[i] = r
	}
	result, err := s.collection.InsertMany(ctx, docs)
	if err != nil {
		s.logger.WithError(err).Error("error inserting multiple packets")
		return 0, err
	}
	return len(result.InsertedIDs), nil
}

// Aggregate forwards pipeline unchanged to the driver's Aggregate, matching
// the spec's "fixed vocabulary of stages forwarded unchanged" contract
// (SPEC_FULL.md §4.7). Stages are built by internal/query.PipelineBuilder.
func (s *Store) Aggregate(ctx context.Context, pipeline []bson.M) ([]bson.M, error) {
	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate failed: %w", err)
	}
	defer cursor.Close(ctx)

	var results []bson.M
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate results: %w", err)
	}
	return results, nil
}

// DeleteBefore removes every record with timestamp strictly before cutoff,
// the Go equivalent of a retention sweep the original leaves implicit in
// its "keep N days" configuration knobs.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": float64(cutoff.UnixNano()) / 1e9},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete records before %s: %w", cutoff, err)
	}
	return result.DeletedCount, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
