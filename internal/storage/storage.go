// Package storage provides the document-store façade and implementations for
// the gateway's persisted collections.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
)

// Common errors
var (
	ErrNotFound   = errors.New("not found")
	ErrIDConflict = errors.New("id already exists")
)

// DatabaseRecord describes a registered upstream OPTIMADE database.
type DatabaseRecord struct {
	ID        string            `json:"id" bson:"id"`
	Name      string            `json:"name" bson:"name"`
	BaseURL   string            `json:"base_url" bson:"base_url"`
	Version   string            `json:"version,omitempty" bson:"version,omitempty"`
	Provider  map[string]string `json:"provider,omitempty" bson:"provider,omitempty"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
}

// GatewayRecord is a named set of databases exposed as one OPTIMADE endpoint.
//
// Databases holds the declaration order used for merged output;
// DatabaseIDSet holds the same ids sorted ascending. InterningKey is the
// canonical set flattened into one token; it is set only on interned records,
// explicit-id gateways leave it empty and stay invisible to set-equality
// resolution. Stores enforce uniqueness on a non-empty InterningKey, which is
// what makes two concurrent interning inserts of the same set collide.
type GatewayRecord struct {
	ID            string           `json:"id" bson:"id"`
	Databases     []DatabaseRecord `json:"databases" bson:"databases"`
	DatabaseIDSet []string         `json:"database_id_set" bson:"database_id_set"`
	InterningKey  string           `json:"-" bson:"interning_key,omitempty"`
	CreatedAt     time.Time        `json:"created_at" bson:"created_at"`
}

// InterningKey flattens a canonical (sorted) database-id set into the single
// token stores index for set-equality conflicts.
func InterningKey(idSet []string) string {
	return strings.Join(idSet, ",")
}

// QueryState is the lifecycle state of a federated query record.
type QueryState string

const (
	QueryStateCreated    QueryState = "created"
	QueryStateStarted    QueryState = "started"
	QueryStateInProgress QueryState = "in_progress"
	QueryStateFinished   QueryState = "finished"
)

// queryStateOrder defines the strict advancement order of query states.
var queryStateOrder = map[QueryState]int{
	QueryStateCreated:    0,
	QueryStateStarted:    1,
	QueryStateInProgress: 2,
	QueryStateFinished:   3,
}

// Valid reports whether s is a known query state.
func (s QueryState) Valid() bool {
	_, ok := queryStateOrder[s]
	return ok
}

// Before reports whether s is strictly earlier than other in the lifecycle.
func (s QueryState) Before(other QueryState) bool {
	return queryStateOrder[s] < queryStateOrder[other]
}

// QueryRecord is the long-lived record of one federated query.
type QueryRecord struct {
	ID          string               `json:"id" bson:"id"`
	GatewayID   string               `json:"gateway_id" bson:"gateway_id"`
	Parameters  optimade.QueryParams `json:"query_parameters" bson:"query_parameters"`
	Endpoint    string               `json:"endpoint" bson:"endpoint"`
	State       QueryState           `json:"state" bson:"state"`
	Response    *optimade.Response   `json:"response" bson:"response,omitempty"`
	CreatedAt   time.Time            `json:"created_at" bson:"created_at"`
	LastUpdated time.Time            `json:"last_updated" bson:"last_updated"`
}

// QueryUpdate is a patch applied to an existing query record. Nil fields are
// left untouched.
type QueryUpdate struct {
	State       *QueryState
	Response    *optimade.Response
	LastUpdated time.Time
}

// ListParams controls listing operations on a collection.
type ListParams struct {
	// IDs filters to records whose id is in the set. Empty means no filter.
	IDs []string
	// Skip and Limit page through the result. Limit <= 0 means unlimited.
	Skip  int
	Limit int
}

// Storage is the document-store façade over the gateway's three collections.
//
// Create operations are atomic with respect to id: of two concurrent inserts
// with the same id exactly one succeeds, the other observes ErrIDConflict.
// CreateGateway is additionally atomic with respect to a non-empty
// InterningKey, so two concurrent interning inserts of the same canonical set
// collide even though each carries a fresh id. This is the atomicity the
// registry's interning protocol relies on.
type Storage interface {
	// Databases
	CreateDatabase(ctx context.Context, record *DatabaseRecord) error
	ReplaceDatabase(ctx context.Context, record *DatabaseRecord) error
	GetDatabase(ctx context.Context, id string) (*DatabaseRecord, error)
	ListDatabases(ctx context.Context, params ListParams) ([]*DatabaseRecord, int64, error)

	// Gateways
	CreateGateway(ctx context.Context, record *GatewayRecord) error
	GetGateway(ctx context.Context, id string) (*GatewayRecord, error)
	// FindGatewayByDatabaseSet looks up an interned gateway by its canonical
	// (sorted) database-id set. Explicit-id gateways are never matched.
	// Returns ErrNotFound on miss.
	FindGatewayByDatabaseSet(ctx context.Context, idSet []string) (*GatewayRecord, error)
	ListGateways(ctx context.Context, params ListParams) ([]*GatewayRecord, int64, error)

	// Queries
	CreateQuery(ctx context.Context, record *QueryRecord) error
	GetQuery(ctx context.Context, id string) (*QueryRecord, error)
	UpdateQuery(ctx context.Context, id string, update QueryUpdate) error
	ListQueries(ctx context.Context, params ListParams) ([]*QueryRecord, int64, error)

	// Lifecycle
	Close() error
	IsHealthy(ctx context.Context) bool
}
