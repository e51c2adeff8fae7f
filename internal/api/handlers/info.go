package handlers

import (
	"net/http"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// GetInfo handles GET /info
func (h *Handler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"type": "info",
			"id":   "/",
			"attributes": map[string]any{
				"api_version": optimade.APIVersion,
				"available_api_versions": []map[string]string{
					{"url": h.config.BaseURL + "/" + optimade.VersionPath(), "version": optimade.APIVersion},
				},
				"formats":             []string{"json"},
				"available_endpoints": []string{"info", "links", "versions", "gateways", "queries", "databases", "search"},
				"entry_types_by_format": map[string][]string{
					"json": {},
				},
				// The gateway itself serves no entries directly; gateways do.
				"is_index": true,
			},
		},
		"meta": map[string]any{
			"api_version": optimade.APIVersion,
			"query":       map[string]string{"representation": r.URL.RequestURI()},
		},
	})
}

// GetLinks handles GET /links
//
// Every registered database is reported as a child link.
func (h *Handler) GetLinks(w http.ResponseWriter, r *http.Request) {
	records, _, err := h.registry.ListDatabases(r.Context(), storage.ListParams{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	links := make([]map[string]any, 0, len(records))
	for _, db := range records {
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
