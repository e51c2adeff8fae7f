package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// EndpointStructures is the only entry endpoint federated queries support.
const EndpointStructures = "structures"

// CreateQuery creates a new query record in the created state against an
// existing gateway.
func (r *Registry) CreateQuery(ctx context.Context, gatewayID, endpoint string, params optimade.QueryParams) (*storage.QueryRecord, error) {
	if endpoint == "" {
		endpoint = EndpointStructures
	}
	if endpoint != EndpointStructures {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEndpoint, endpoint)
	}
	if _, err := r.store.GetGateway(ctx, gatewayID); err != nil {
		return nil, fmt.Errorf("gateway %q: %w", gatewayID, err)
	}

	now := time.Now().UTC()
	record := &storage.QueryRecord{
		ID:          NewID(),
		GatewayID:   gatewayID,
		Parameters:  params,
		Endpoint:    endpoint,
		State:       storage.QueryStateCreated,
		CreatedAt:   now,
		LastUpdated: now,
	}
	if err := r.store.CreateQuery(ctx, record); err != nil {
		return nil, fmt.Errorf("create query: %w", err)
	}
	r.logger.Debug("created query", "id", record.ID, "gateway", gatewayID)
	return record, nil
}

// AdvanceQuery moves a query record forward in its lifecycle. Transitions
// must be strictly monotonic; a finished record can never change again. The
// response may only be attached together with the finished state.
func (r *Registry) AdvanceQuery(ctx context.Context, id string, state storage.QueryState, response *optimade.Response) (*storage.QueryRecord, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, state)
	}
	if response != nil && state != storage.QueryStateFinished {
		return nil, fmt.Errorf("%w: response requires finished state, got %q", ErrInvalidTransition, state)
	}

	record, err := r.store.GetQuery(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", id, err)
	}
	if record.State == storage.QueryStateFinished {
		return nil, fmt.Errorf("%w: %s", ErrQueryFinished, id)
	}
	if !record.State.Before(state) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.State, state)
	}

	now := time.Now().UTC()
	update := storage.QueryUpdate{State: &state, Response: response, LastUpdated: now}
	if err := r.store.UpdateQuery(ctx, id, update); err != nil {
		return nil, fmt.Errorf("update query %q: %w", id, err)
	}

	record.State = state
	record.Response = response
	record.LastUpdated = now
	r.logger.Debug("advanced query", "id", id, "state", state)
	return record, nil
}

// GetQuery retrieves a query record by id.
func (r *Registry) GetQuery(ctx context.Context, id string) (*storage.QueryRecord, error) {
	return r.store.GetQuery(ctx, id)
}

// ListQueries lists query records.
func (r *Registry) ListQueries(ctx context.Context, params storage.ListParams) ([]*storage.QueryRecord, int64, error) {
	return r.store.ListQueries(ctx, params)
}
