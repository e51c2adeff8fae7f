// Package mongo provides a MongoDB storage implementation.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// Config holds MongoDB connection configuration.
type Config struct {
	URI      string
	Database string

	DatabasesCollection string
	GatewaysCollection  string
	QueriesCollection   string

	ConnectTimeout time.Duration
}

// Store implements the storage.Storage interface backed by MongoDB.
type Store struct {
	client    *mongo.Client
	databases *mongo.Collection
	gateways  *mongo.Collection
	queries   *mongo.Collection
}

// NewStore connects to MongoDB, verifies the connection and ensures the
// indexes the registry depends on.
func NewStore(cfg Config) (*Store, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.DatabasesCollection == "" {
		cfg.DatabasesCollection = "databases"
	}
	if cfg.GatewaysCollection == "" {
		cfg.GatewaysCollection = "gateways"
	}
	if cfg.QueriesCollection == "" {
		cfg.QueriesCollection = "queries"
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{
		client:    client,
		databases: db.Collection(cfg.DatabasesCollection),
		gateways:  db.Collection(cfg.GatewaysCollection),
		queries:   db.Collection(cfg.QueriesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	return s, nil
}

// ensureIndexes creates the unique id index on every collection plus the
// partial unique interning-key index gateway interning relies on. The key is
// a flattened scalar rather than database_id_set itself: a unique index on
// the array would be multikey and reject any two gateways sharing a single
// database. The partial filter keeps explicit-id gateways, which carry no
// interning_key field, out of the index.
func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	for _, coll := range []*mongo.Collection{s.databases, s.gateways, s.queries} {
		if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: unique,
		}); err != nil {
			return err
		}
	}
	_, err := s.gateways.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "interning_key", Value: 1}},
		Options: options.Index().SetUnique(true).
			SetPartialFilterExpression(bson.M{"interning_key": bson.M{"$type": "string"}}),
	})
	return err
}

// CreateDatabase stores a new database record.
func (s *Store) CreateDatabase(ctx context.Context, record *storage.DatabaseRecord) error {
	return insertOne(ctx, s.databases, record)
}

// ReplaceDatabase replaces an existing database record.
func (s *Store) ReplaceDatabase(ctx context.Context, record *storage.DatabaseRecord) error {
	result, err := s.databases.ReplaceOne(ctx, bson.M{"id": record.ID}, record)
	if err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetDatabase retrieves a database record by id.
func (s *Store) GetDatabase(ctx context.Context, id string) (*storage.DatabaseRecord, error) {
	return findOne[storage.DatabaseRecord](ctx, s.databases, bson.M{"id": id})
}

// ListDatabases returns database records ordered by creation time.
func (s *Store) ListDatabases(ctx context.Context, params storage.ListParams) ([]*storage.DatabaseRecord, int64, error) {
	return list[storage.DatabaseRecord](ctx, s.databases, params)
}

// CreateGateway stores a new gateway record.
func (s *Store) CreateGateway(ctx context.Context, record *storage.GatewayRecord) error {
	return insertOne(ctx, s.gateways, record)
}

// GetGateway retrieves a gateway record by id.
func (s *Store) GetGateway(ctx context.Context, id string) (*storage.GatewayRecord, error) {
	return findOne[storage.GatewayRecord](ctx, s.gateways, bson.M{"id": id})
}

// FindGatewayByDatabaseSet looks up an interned gateway by its canonical
// database-id set, matching on the flattened interning key.
func (s *Store) FindGatewayByDatabaseSet(ctx context.Context, idSet []string) (*storage.GatewayRecord, error) {
	return findOne[storage.GatewayRecord](ctx, s.gateways, bson.M{"interning_key": storage.InterningKey(idSet)})
}

// ListGateways returns gateway records ordered by creation time.
func (s *Store) ListGateways(ctx context.Context, params storage.ListParams) ([]*storage.GatewayRecord, int64, error) {
	return list[storage.GatewayRecord](ctx, s.gateways, params)
}

// CreateQuery stores a new query record.
func (s *Store) CreateQuery(ctx context.Context, record *storage.QueryRecord) error {
	return insertOne(ctx, s.queries, record)
}

// GetQuery retrieves a query record by id.
func (s *Store) GetQuery(ctx context.Context, id string) (*storage.QueryRecord, error) {
	return findOne[storage.QueryRecord](ctx, s.queries, bson.M{"id": id})
}

// UpdateQuery applies a patch to an existing query record.
func (s *Store) UpdateQuery(ctx context.Context, id string, update storage.QueryUpdate) error {
	set := bson.M{}
	if update.State != nil {
		set["state"] = *update.State
	}
	if update.Response != nil {
		set["response"] = update.Response
	}
	if !update.LastUpdated.IsZero() {
		set["last_updated"] = update.LastUpdated
	}
	if len(set) == 0 {
		return nil
	}
	result, err := s.queries.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update query: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListQueries returns query records ordered by creation time.
func (s *Store) ListQueries(ctx context.Context, params storage.ListParams) ([]*storage.QueryRecord, int64, error) {
	return list[storage.QueryRecord](ctx, s.queries, params)
}

// Close disconnects from MongoDB.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// IsHealthy returns true when MongoDB answers a ping.
func (s *Store) IsHealthy(ctx context.Context) bool {
	return s.client.Ping(ctx, nil) == nil
}

func insertOne(ctx context.Context, coll *mongo.Collection, record any) error {
	if _, err := coll.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrIDConflict
		}
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter bson.M) (*T, error) {
	var record T
	if err := coll.FindOne(ctx, filter).Decode(&record); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("find one: %w", err)
	}
	return &record, nil
}

func list[T any](ctx context.Context, coll *mongo.Collection, params storage.ListParams) ([]*T, int64, error) {
	filter := bson.M{}
	if len(params.IDs) > 0 {
		filter["id"] = bson.M{"$in": params.IDs}
	}

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if params.Skip > 0 {
		opts.SetSkip(int64(params.Skip))
	}
	if params.Limit > 0 {
		opts.SetLimit(int64(params.Limit))
	}

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find: %w", err)
	}
	defer cursor.Close(ctx)

	var results []*T
	for cursor.Next(ctx) {
		var record T
		if err := cursor.Decode(&record); err != nil {
			return nil, 0, fmt.Errorf("decode: %w", err)
		}
		results = append(results, &record)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("cursor: %w", err)
	}
	return results, total, nil
}
