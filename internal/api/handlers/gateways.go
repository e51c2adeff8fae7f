package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/materials-consortia/optimade-gateway/internal/api/types"
	"github.com/materials-consortia/optimade-gateway/internal/registry"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// ListGateways handles GET /gateways
func (h *Handler) ListGateways(w http.ResponseWriter, r *http.Request) {
	params := listParams(r, h.config.PageLimit)
	records, total, err := h.registry.ListGateways(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	if records == nil {
		records = []*storage.GatewayRecord{}
	}
	writeJSON(w, http.StatusOK, types.GatewaysResponse{
		Data: records,
		Meta: listMeta(len(records), total, params),
	})
}

// CreateGateway handles POST /gateways
//
// The same database set always resolves to the same gateway: a new record
// answers 201, a matched existing one answers 200.
func (h *Handler) CreateGateway(w http.ResponseWriter, r *http.Request) {
	var req types.GatewayCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid JSON body: "+err.Error())
		return
	}

	spec := registry.GatewaySpec{IDs: req.DatabaseIDs, ExplicitID: req.ID}
	for _, db := range req.Databases {
		spec.Databases = append(spec.Databases, db.Record())
	}

	record, created, err := h.registry.ResolveOrCreateGateway(r.Context(), spec)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrGatewayExists):
			writeError(w, http.StatusConflict, "Conflict", err.Error())
		case errors.Is(err, registry.ErrUnknownDatabase), errors.Is(err, registry.ErrNoDatabases):
			writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		}
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		if h.metrics != nil {
			h.metrics.GatewayCreated()
		}
	}
	writeJSON(w, status, types.GatewayResponse{Data: record})
}

// GetGateway handles GET /gateways/{gatewayID}
func (h *Handler) GetGateway(w http.ResponseWriter, r *http.Request) {
	record, ok := h.gatewayFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, types.GatewayResponse{Data: record})
}

// gatewayFromRequest loads the gateway named in the URL, writing the error
// response itself on failure.
func (h *Handler) gatewayFromRequest(w http.ResponseWriter, r *http.Request) (*storage.GatewayRecord, bool) {
	id := chi.URLParam(r, "gatewayID")
	record, err := h.registry.GetGateway(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not Found", "gateway not found: "+id)
		} else {
			writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		}
		return nil, false
	}
	return record, true
}
