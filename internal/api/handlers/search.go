package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/registry"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// Search handles GET /search
//
// The database set is given directly in the request via `database_ids` and
// `optimade_urls`; the matching gateway is resolved or created on the fly and
// a query is started against it. If the query finishes within the `timeout`
// window (seconds) the merged response is returned inline, otherwise the
// client is redirected to the query record to poll.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()

	spec := registry.GatewaySpec{IDs: commaSeparated(values["database_ids"])}
	for _, rawURL := range commaSeparated(values["optimade_urls"]) {
		spec.Databases = append(spec.Databases, storage.DatabaseRecord{BaseURL: rawURL})
	}
	if len(spec.IDs) == 0 && len(spec.Databases) == 0 {
		writeError(w, http.StatusBadRequest, "Bad Request",
			"at least one of database_ids and optimade_urls is required")
		return
	}

	gateway, created, err := h.registry.ResolveOrCreateGateway(r.Context(), spec)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownDatabase) {
			writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}
	if created && h.metrics != nil {
		h.metrics.GatewayCreated()
	}

	params := optimade.ParamsFromValues(values)
	record, err := h.registry.CreateQuery(r.Context(), gateway.ID, values.Get("endpoint"), params)
	if err != nil {
		if errors.Is(err, registry.ErrUnsupportedEndpoint) {
			writeError(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal Server Error", err.Error())
		return
	}

	wait := h.config.SearchTimeout
	if v := values.Get("timeout"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			wait = time.Duration(n) * time.Second
		}
	}

	// The query keeps running after a redirect, so it is detached from the
	// request context up front.
	done := make(chan *storage.QueryRecord, 1)
	go func() {
		finished, err := h.orchestrator.Run(context.WithoutCancel(r.Context()), record)
		if err != nil {
			h.logger.Error("search query failed", "query", record.ID, "error", err)
			close(done)
			return
		}
		done <- finished
	}()

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case finished, ok := <-done:
		if !ok {
			writeError(w, http.StatusInternalServerError, "Internal Server Error",
				"query "+record.ID+" failed")
			return
		}
		writeJSON(w, finishedStatus(finished), finished.Response)
	case <-timer.C:
		http.Redirect(w, r, "/queries/"+record.ID, http.StatusSeeOther)
	}
}

// commaSeparated flattens repeated query values and splits comma-joined
// entries, dropping empties.
func commaSeparated(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
