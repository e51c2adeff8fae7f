// Package memory provides an in-memory storage implementation.
package memory

import (
	"context"
	"sync"

	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// Store implements the storage.Storage interface using in-memory maps. It is
// used by tests and by the `memory` storage type for development.
type Store struct {
	mu sync.RWMutex

	databases map[string]*storage.DatabaseRecord
	gateways  map[string]*storage.GatewayRecord
	queries   map[string]*storage.QueryRecord

	// Insertion order per collection, for deterministic listings.
	databaseOrder []string
	gatewayOrder  []string
	queryOrder    []string
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		databases: make(map[string]*storage.DatabaseRecord),
		gateways:  make(map[string]*storage.GatewayRecord),
		queries:   make(map[string]*storage.QueryRecord),
	}
}

// CreateDatabase stores a new database record.
func (s *Store) CreateDatabase(ctx context.Context, record *storage.DatabaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.databases[record.ID]; exists {
		return storage.ErrIDConflict
	}
	s.databases[record.ID] = cloneDatabase(record)
	s.databaseOrder = append(s.databaseOrder, record.ID)
	return nil
}

// ReplaceDatabase replaces an existing database record.
func (s *Store) ReplaceDatabase(ctx context.Context, record *storage.DatabaseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.databases[record.ID]; !exists {
		return storage.ErrNotFound
	}
	s.databases[record.ID] = cloneDatabase(record)
	return nil
}

// GetDatabase retrieves a database record by id.
func (s *Store) GetDatabase(ctx context.Context, id string) (*storage.DatabaseRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.databases[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneDatabase(record), nil
}

// ListDatabases returns database records in insertion order.
func (s *Store) ListDatabases(ctx context.Context, params storage.ListParams) ([]*storage.DatabaseRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := filterIDs(s.databaseOrder, params.IDs)
	total := int64(len(ids))
	var results []*storage.DatabaseRecord
	for _, id := range page(ids, params) {
		results = append(results, cloneDatabase(s.databases[id]))
	}
	return results, total, nil
}

// CreateGateway stores a new gateway record.
func (s *Store) CreateGateway(ctx context.Context, record *storage.GatewayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.gateways[record.ID]; exists {
		return storage.ErrIDConflict
	}
	if record.InterningKey != "" {
		for _, id := range s.gatewayOrder {
			if s.gateways[id].InterningKey == record.InterningKey {
				return storage.ErrIDConflict
			}
		}
	}
	s.gateways[record.ID] = cloneGateway(record)
	s.gatewayOrder = append(s.gatewayOrder, record.ID)
	return nil
}

// GetGateway retrieves a gateway record by id.
func (s *Store) GetGateway(ctx context.Context, id string) (*storage.GatewayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.gateways[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneGateway(record), nil
}

// FindGatewayByDatabaseSet returns the interned gateway whose canonical
// database-id set equals idSet. Explicit-id gateways carry no interning key
// and are never matched.
func (s *Store) FindGatewayByDatabaseSet(ctx context.Context, idSet []string) (*storage.GatewayRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := storage.InterningKey(idSet)
	for _, id := range s.gatewayOrder {
		record := s.gateways[id]
		if record.InterningKey != "" && record.InterningKey == key {
			return cloneGateway(record), nil
		}
	}
	return nil, storage.ErrNotFound
}

// ListGateways returns gateway records in insertion order.
func (s *Store) ListGateways(ctx context.Context, params storage.ListParams) ([]*storage.GatewayRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := filterIDs(s.gatewayOrder, params.IDs)
	total := int64(len(ids))
	var results []*storage.GatewayRecord
	for _, id := range page(ids, params) {
		results = append(results, cloneGateway(s.gateways[id]))
	}
	return results, total, nil
}

// CreateQuery stores a new query record.
func (s *Store) CreateQuery(ctx context.Context, record *storage.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.queries[record.ID]; exists {
		return storage.ErrIDConflict
	}
	s.queries[record.ID] = cloneQuery(record)
	s.queryOrder = append(s.queryOrder, record.ID)
	return nil
}

// GetQuery retrieves a query record by id.
func (s *Store) GetQuery(ctx context.Context, id string) (*storage.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.queries[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneQuery(record), nil
}

// UpdateQuery applies a patch to an existing query record.
func (s *Store) UpdateQuery(ctx context.Context, id string, update storage.QueryUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.queries[id]
	if !exists {
		return storage.ErrNotFound
	}
	if update.State != nil {
		record.State = *update.State
	}
	if update.Response != nil {
		record.Response = cloneResponse(update.Response)
	}
	if !update.LastUpdated.IsZero() {
		record.LastUpdated = update.LastUpdated
	}
	return nil
}

// ListQueries returns query records in insertion order.
func (s *Store) ListQueries(ctx context.Context, params storage.ListParams) ([]*storage.QueryRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := filterIDs(s.queryOrder, params.IDs)
	total := int64(len(ids))
	var results []*storage.QueryRecord
	for _, id := range page(ids, params) {
		results = append(results, cloneQuery(s.queries[id]))
	}
	return results, total, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return nil
}

// IsHealthy returns true if the store is healthy.
func (s *Store) IsHealthy(ctx context.Context) bool {
	return true
}

func filterIDs(order []string, want []string) []string {
	if len(want) == 0 {
		return order
	}
	wanted := make(map[string]bool, len(want))
	for _, id := range want {
		wanted[id] = true
	}
	var out []string
	for _, id := range order {
		if wanted[id] {
			out = append(out, id)
		}
	}
	return out
}

func page(ids []string, params storage.ListParams) []string {
	if params.Skip > 0 {
		if params.Skip >= len(ids) {
			return nil
		}
		ids = ids[params.Skip:]
	}
	if params.Limit > 0 && params.Limit < len(ids) {
		ids = ids[:params.Limit]
	}
	return ids
}
