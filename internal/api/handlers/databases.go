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

// ListDatabases handles GET /databases
func (h *Handler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	params := listParams(r, h.config.PageLimit)
	records, total, err := h.registry.ListDatabases(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	if records == nil {
		records = []*storage.DatabaseRecord{}
	}
	writeJSON(w, http.StatusOK, types.DatabasesResponse{
		Data: records,
		Meta: listMeta(len(records), total, params),
	})
}

// RegisterDatabase handles POST /databases
//
// Registering an id again replaces the previous descriptor.
func (h *Handler) RegisterDatabase(w http.ResponseWriter, r *http.Request) {
	var req types.DatabaseInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid JSON body: "+err.Error())
		return
	}
	if req.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "Bad Request", "base_url is required")
		return
	}

	record, err := h.registry.RegisterDatabase(r.Context(), req.Record())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, types.DatabaseResponse{Data: record})
}

// GetDatabase handles GET /databases/{databaseID}
func (h *Handler) GetDatabase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "databaseID")
	record, err := h.registry.GetDatabase(r.Context(), id)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownDatabase) {
			writeError(w, http.StatusNotFound, "Not Found", "database not found: "+id)
		} else {
			writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, types.DatabaseResponse{Data: record})
}
