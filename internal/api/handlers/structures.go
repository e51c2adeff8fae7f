package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/registry"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// GetStructures handles GET /gateways/{gatewayID}/structures
//
// The federated query runs synchronously on the request context, so a client
// disconnect cancels the fan-out. Partial upstream failures do not fail the
// request; they are reported in the response's errors array next to the data
// the remaining sources returned.
func (h *Handler) GetStructures(w http.ResponseWriter, r *http.Request) {
	gateway, ok := h.gatewayFromRequest(w, r)
	if !ok {
		return
	}

	params := optimade.ParamsFromValues(r.URL.Query())
	record, err := h.registry.CreateQuery(r.Context(), gateway.ID, registry.EndpointStructures, params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	finished, err := h.orchestrator.Run(r.Context(), record)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, finished.Response)
}

// GetStructure handles GET /gateways/{gatewayID}/structures/{databaseID}/{entryID}
//
// The entry id is the prefixed form handed out in listings; the prefix picks
// the upstream database and the local id is fetched from it directly.
func (h *Handler) GetStructure(w http.ResponseWriter, r *http.Request) {
	gateway, ok := h.gatewayFromRequest(w, r)
	if !ok {
		return
	}

	databaseID := chi.URLParam(r, "databaseID")
	entryID := chi.URLParam(r, "entryID")

	var database *storage.DatabaseRecord
	for i := range gateway.Databases {
		if gateway.Databases[i].ID == databaseID {
			database = &gateway.Databases[i]
			break
		}
	}
	if database == nil {
		writeError(w, http.StatusNotFound, "Not Found",
			"gateway "+gateway.ID+" has no database "+databaseID)
		return
	}

	params := optimade.ParamsFromValues(r.URL.Query())
	outcome := h.client.FetchEntry(r.Context(), *database, registry.EndpointStructures, entryID, params, h.config.PerDBTimeout)

	switch {
	case outcome.Transport != nil:
		writeJSON(w, http.StatusGatewayTimeout, optimade.SingleResponse{
			Errors: []optimade.Error{{
				Status: http.StatusGatewayTimeout,
				Title:  "Gateway Timeout",
				Detail: string(outcome.Transport.Kind) + ": " + outcome.Transport.Message,
				Source: databaseID,
				Type:   "transport_error",
			}},
			Meta: h.singleMeta(r, databaseID, optimade.SourceError),
		})
	case outcome.Upstream != nil:
		status := outcome.Upstream.Status
		resp := optimade.SingleResponse{Meta: h.singleMeta(r, databaseID, optimade.SourceError)}
		if len(outcome.Upstream.Errors) > 0 {
			resp.Errors = outcome.Upstream.Errors
			for i := range resp.Errors {
				resp.Errors[i].Source = databaseID
			}
		} else {
			resp.Errors = []optimade.Error{{
				Status: status,
				Title:  "Upstream Error",
				Detail: outcome.Upstream.Body,
				Source: databaseID,
				Type:   "upstream_error",
			}}
		}
		writeJSON(w, status, resp)
	default:
		resp := outcome.Response
		if resp.Data != nil {
			resp.Data = resp.Data.WithPrefixedID(databaseID)
		}
		resp.Meta = h.singleMeta(r, databaseID, optimade.SourceOK)
		if resp.Data != nil {
			resp.Meta.DataReturned = 1
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *Handler) singleMeta(r *http.Request, databaseID, state string) optimade.Meta {
	return optimade.Meta{
		Query:      optimade.MetaQuery{Representation: r.URL.RequestURI()},
		APIVersion: optimade.APIVersion,
		Sources:    map[string]string{databaseID: state},
	}
}

// GetGatewayInfo handles GET /gateways/{gatewayID}/info
func (h *Handler) GetGatewayInfo(w http.ResponseWriter, r *http.Request) {
	gateway, ok := h.gatewayFromRequest(w, r)
	if !ok {
		return
	}

	baseURL := h.config.BaseURL + "/gateways/" + gateway.ID
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"type": "info",
			"id":   "/",
			"attributes": map[string]any{
				"api_version": optimade.APIVersion,
				"available_api_versions": []map[string]string{
					{"url": baseURL + "/" + optimade.VersionPath(), "version": optimade.APIVersion},
				},
				"formats":             []string{"json"},
				"available_endpoints": []string{"info", "links", "structures", "versions"},
				"entry_types_by_format": map[string][]string{
					"json": {"structures"},
				},
				"is_index": false,
			},
		},
		"meta": map[string]any{
			"api_version": optimade.APIVersion,
			"query":       map[string]string{"representation": r.URL.RequestURI()},
		},
	})
}

// GetGatewayLinks handles GET /gateways/{gatewayID}/links
//
// Every federated database is reported as a child link of the gateway.
func (h *Handler) GetGatewayLinks(w http.ResponseWriter, r *http.Request) {
	gateway, ok := h.gatewayFromRequest(w, r)
	if !ok {
		return
	}

	links := make([]map[string]any, 0, len(gateway.Databases))
	for _, db := range gateway.Databases {
		links = append(links, map[string]any{
			"type": "links",
			"id":   db.ID,
			"attributes": map[string]any{
				"name":      db.Name,
				"base_url":  db.BaseURL,
				"link_type": "child",
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data": links,
		"meta": map[string]any{
			"api_version":   optimade.APIVersion,
			"data_returned": len(links),
		},
	})
}

// GetGatewayVersions handles GET /gateways/{gatewayID}/versions
func (h *Handler) GetGatewayVersions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.gatewayFromRequest(w, r); !ok {
		return
	}
	h.GetVersions(w, r)
}

// GetVersions handles GET /versions
func (h *Handler) GetVersions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; header=present")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("version\n" + optimade.MajorVersion + "\n"))
}
