// Package registry implements the gateway registry: database registration,
// deterministic gateway interning and federated query records.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// Registry coordinates gateway, database and query records on top of a
// storage backend. All methods are safe for concurrent use; the interning
// protocol relies on the store enforcing uniqueness of the interning key.
type Registry struct {
	store  storage.Storage
	logger *slog.Logger
}

// New creates a registry over the given storage backend.
func New(store storage.Storage, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, logger: logger}
}

// IsHealthy reports whether the storage backend is reachable.
func (r *Registry) IsHealthy(ctx context.Context) bool {
	return r.store.IsHealthy(ctx)
}

// NewID returns a fresh 32-character lowercase hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// RegisterDatabase registers an upstream database, replacing any previous
// descriptor with the same id. An empty id is derived from the base URL.
func (r *Registry) RegisterDatabase(ctx context.Context, record storage.DatabaseRecord) (*storage.DatabaseRecord, error) {
	record.BaseURL = strings.TrimRight(record.BaseURL, "/")
	if record.BaseURL == "" {
		return nil, fmt.Errorf("database %q: base_url is required", record.ID)
	}
	if record.ID == "" {
		record.ID = DatabaseIDFromURL(record.BaseURL)
	}
	if record.Name == "" {
		record.Name = record.ID
	}
	record.CreatedAt = time.Now().UTC()

	err := r.store.CreateDatabase(ctx, &record)
	if errors.Is(err, storage.ErrIDConflict) {
		err = r.store.ReplaceDatabase(ctx, &record)
	}
	if err != nil {
		return nil, fmt.Errorf("register database %q: %w", record.ID, err)
	}
	r.logger.Debug("registered database", "id", record.ID, "base_url", record.BaseURL)
	return &record, nil
}

// GetDatabase retrieves a registered database by id.
func (r *Registry) GetDatabase(ctx context.Context, id string) (*storage.DatabaseRecord, error) {
	record, err := r.store.GetDatabase(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, id)
	}
	return record, err
}

// ListDatabases lists registered databases.
func (r *Registry) ListDatabases(ctx context.Context, params storage.ListParams) ([]*storage.DatabaseRecord, int64, error) {
	return r.store.ListDatabases(ctx, params)
}

// GatewaySpec describes the databases a gateway should federate. IDs name
// already-registered databases; Databases carries full descriptors that are
// registered on the fly. ExplicitID, when set, bypasses interning.
type GatewaySpec struct {
	IDs        []string
	Databases  []storage.DatabaseRecord
	ExplicitID string
}

// ResolveOrCreateGateway returns the gateway for the given database set,
// creating it if no gateway with the same canonical set exists. The boolean
// reports whether a new gateway record was inserted.
//
// Resolution is deterministic: the same database set always maps to the same
// gateway id, regardless of the order databases were given in and of which
// concurrent caller wins the insert.
func (r *Registry) ResolveOrCreateGateway(ctx context.Context, spec GatewaySpec) (*storage.GatewayRecord, bool, error) {
	databases, err := r.resolveDatabases(ctx, spec)
	if err != nil {
		return nil, false, err
	}
	if len(databases) == 0 {
		return nil, false, ErrNoDatabases
	}

	idSet := canonicalIDSet(databases)

	if spec.ExplicitID != "" {
		record := &storage.GatewayRecord{
			ID:            spec.ExplicitID,
			Databases:     databases,
			DatabaseIDSet: idSet,
			CreatedAt:     time.Now().UTC(),
		}
		if err := r.store.CreateGateway(ctx, record); err != nil {
			if errors.Is(err, storage.ErrIDConflict) {
				return nil, false, fmt.Errorf("%w: %s", ErrGatewayExists, spec.ExplicitID)
			}
			return nil, false, fmt.Errorf("create gateway: %w", err)
		}
		r.logger.Info("created gateway", "id", record.ID, "databases", idSet)
		return record, true, nil
	}

	if existing, err := r.store.FindGatewayByDatabaseSet(ctx, idSet); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, false, fmt.Errorf("find gateway: %w", err)
	}

	record := &storage.GatewayRecord{
		ID:            NewID(),
		Databases:     databases,
		DatabaseIDSet: idSet,
		InterningKey:  storage.InterningKey(idSet),
		CreatedAt:     time.Now().UTC(),
	}
	err = r.store.CreateGateway(ctx, record)
	if err == nil {
		r.logger.Info("created gateway", "id", record.ID, "databases", idSet)
		return record, true, nil
	}
	if !errors.Is(err, storage.ErrIDConflict) {
		return nil, false, fmt.Errorf("create gateway: %w", err)
	}

	// A concurrent caller interned the same set first. Their record is the
	// canonical one.
	existing, err := r.store.FindGatewayByDatabaseSet(ctx, idSet)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, ErrRegistryInconsistent
	}
	if err != nil {
		return nil, false, fmt.Errorf("find gateway after insert race: %w", err)
	}
	return existing, false, nil
}

// GetGateway retrieves a gateway by id.
func (r *Registry) GetGateway(ctx context.Context, id string) (*storage.GatewayRecord, error) {
	return r.store.GetGateway(ctx, id)
}

// ListGateways lists gateway records.
func (r *Registry) ListGateways(ctx context.Context, params storage.ListParams) ([]*storage.GatewayRecord, int64, error) {
	return r.store.ListGateways(ctx, params)
}

// resolveDatabases turns a gateway spec into the ordered database list:
// referenced ids first, then inline descriptors, with duplicate base URLs
// dropped keeping the first occurrence.
func (r *Registry) resolveDatabases(ctx context.Context, spec GatewaySpec) ([]storage.DatabaseRecord, error) {
	var databases []storage.DatabaseRecord
	for _, id := range spec.IDs {
		record, err := r.GetDatabase(ctx, id)
		if err != nil {
			return nil, err
		}
		databases = append(databases, *record)
	}
	for _, db := range spec.Databases {
		record, err := r.RegisterDatabase(ctx, db)
		if err != nil {
			return nil, err
		}
		databases = append(databases, *record)
	}

	seen := make(map[string]bool, len(databases))
	deduped := databases[:0]
	for _, db := range databases {
		if seen[db.BaseURL] {
			r.logger.Warn("dropping duplicate database base_url", "id", db.ID, "base_url", db.BaseURL)
			continue
		}
		seen[db.BaseURL] = true
		deduped = append(deduped, db)
	}
	return deduped, nil
}

// canonicalIDSet returns the sorted database ids, the gateway's interning key.
func canonicalIDSet(databases []storage.DatabaseRecord) []string {
	ids := make([]string, len(databases))
	for i, db := range databases {
		ids[i] = db.ID
	}
	sort.Strings(ids)
	return ids
}

// DatabaseIDFromURL derives a database id slug from a base URL.
func DatabaseIDFromURL(baseURL string) string {
	id := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		id = u.Host + u.Path
	}
	id = strings.TrimRight(id, "/")
	replacer := strings.NewReplacer("/", "__", ".", "_", ":", "_")
	return replacer.Replace(id)
}
