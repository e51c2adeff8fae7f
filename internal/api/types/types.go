// Package types defines request and response shapes for the HTTP API.
package types

import (
	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	Errors []optimade.Error `json:"errors"`
}

// ListMeta describes a listing of gateway-owned records.
type ListMeta struct {
	DataReturned      int64 `json:"data_returned"`
	DataAvailable     int64 `json:"data_available"`
	MoreDataAvailable bool  `json:"more_data_available"`
}

// ResponseMeta carries optional warnings alongside a single resource.
type ResponseMeta struct {
	Warnings []optimade.Error `json:"warnings,omitempty"`
}

// DatabaseInput is an inline upstream database descriptor.
type DatabaseInput struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	Version string `json:"version"`
}

// Record converts the input into a storage record.
func (d DatabaseInput) Record() storage.DatabaseRecord {
	return storage.DatabaseRecord{
		ID:      d.ID,
		Name:    d.Name,
		BaseURL: d.BaseURL,
		Version: d.Version,
	}
}

// GatewayCreateRequest is the body of POST /gateways. Databases can be named
// by id or given inline; inline descriptors are registered on the fly.
type GatewayCreateRequest struct {
	ID          string          `json:"id"`
	DatabaseIDs []string        `json:"database_ids"`
	Databases   []DatabaseInput `json:"databases"`
}

// GatewayResponse wraps a single gateway record.
type GatewayResponse struct {
	Data *storage.GatewayRecord `json:"data"`
	Meta *ResponseMeta          `json:"meta,omitempty"`
}

// GatewaysResponse wraps a gateway listing.
type GatewaysResponse struct {
	Data []*storage.GatewayRecord `json:"data"`
	Meta ListMeta                 `json:"meta"`
}

// QueryCreateRequest is the body of POST /gateways/{id}/queries.
type QueryCreateRequest struct {
	Endpoint        string               `json:"endpoint"`
	QueryParameters optimade.QueryParams `json:"query_parameters"`
}

// QueryResponse wraps a single query record.
type QueryResponse struct {
	Data *storage.QueryRecord `json:"data"`
	Meta *ResponseMeta        `json:"meta,omitempty"`
}

// QueriesResponse wraps a query-record listing.
type QueriesResponse struct {
	Data []*storage.QueryRecord `json:"data"`
	Meta ListMeta               `json:"meta"`
}

// DatabaseResponse wraps a single database record.
type DatabaseResponse struct {
	Data *storage.DatabaseRecord `json:"data"`
}

// DatabasesResponse wraps a database listing.
type DatabasesResponse struct {
	Data []*storage.DatabaseRecord `json:"data"`
	Meta ListMeta                  `json:"meta"`
}
