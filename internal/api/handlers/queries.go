package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/materials-consortia/optimade-gateway/internal/api/types"
	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/registry"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// CreateQuery handles POST /gateways/{gatewayID}/queries
//
// The query record is created and started in the background; the client polls
// GET /queries/{id} for the result.
func (h *Handler) CreateQuery(w http.ResponseWriter, r *http.Request) {
	gateway, ok := h.gatewayFromRequest(w, r)
	if !ok {
		return
	}

	var req types.QueryCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid JSON body: "+err.Error())
		return
	}

	var warnings []optimade.Error
	if req.QueryParameters.Sort != "" {
		// Cross-database sorting of a merged page is not meaningful, so
		// asynchronous queries refuse to pretend it happened.
		warnings = append(warnings, optimade.Error{
			Title:  "QueryParameterNotSupported",
			Detail: "sort is not supported for federated queries and was ignored",
		})
		req.QueryParameters.Sort = ""
	}

	record, err := h.registry.CreateQuery(r.Context(), gateway.ID, req.Endpoint, req.QueryParameters)
	if err != nil {
		if errors.Is(err, registry.ErrUnsupportedEndpoint) {
			writeError(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	h.orchestrator.RunDetached(r.Context(), record)

	resp := types.QueryResponse{Data: record}
	if len(warnings) > 0 {
		resp.Meta = &types.ResponseMeta{Warnings: warnings}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// ListQueries handles GET /queries
func (h *Handler) ListQueries(w http.ResponseWriter, r *http.Request) {
	params := listParams(r, h.config.PageLimit)
	records, total, err := h.registry.ListQueries(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	if records == nil {
		records = []*storage.QueryRecord{}
	}
	writeJSON(w, http.StatusOK, types.QueriesResponse{
		Data: records,
		Meta: listMeta(len(records), total, params),
	})
}

// GetQuery handles GET /queries/{queryID}
//
// The response field is present iff the query has finished. A finished query
// whose merged response carries errors is served with the errors' status.
func (h *Handler) GetQuery(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "queryID")
	record, err := h.registry.GetQuery(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Not Found", "query not found: "+id)
		} else {
			writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		}
		return
	}
	writeJSON(w, finishedStatus(record), types.QueryResponse{Data: record})
}
