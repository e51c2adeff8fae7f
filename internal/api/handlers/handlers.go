// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/materials-consortia/optimade-gateway/internal/api/types"
	"github.com/materials-consortia/optimade-gateway/internal/metrics"
	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/query"
	"github.com/materials-consortia/optimade-gateway/internal/registry"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
	"github.com/materials-consortia/optimade-gateway/internal/upstream"
)

// Handler provides HTTP handlers for the gateway API.
type Handler struct {
	registry     *registry.Registry
	orchestrator *query.Orchestrator
	client       *upstream.Client
	metrics      *metrics.Metrics
	logger       *slog.Logger
	config       Config
}

// Config holds handler configuration.
type Config struct {
	// PageLimit is the default per-database page size.
	PageLimit int
	// PerDBTimeout bounds single-entry upstream fetches.
	PerDBTimeout time.Duration
	// SearchTimeout is how long GET /search waits before redirecting.
	SearchTimeout time.Duration
	// BaseURL is the externally visible URL of this gateway service.
	BaseURL string
	Version string
}

// New creates a new Handler.
func New(reg *registry.Registry, orch *query.Orchestrator, client *upstream.Client, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Handler {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = query.DefaultPageLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry:     reg,
		orchestrator: orch,
		client:       client,
		metrics:      m,
		logger:       logger,
		config:       cfg,
	}
}

// Root handles GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "optimade-gateway",
		"version":     h.config.Version,
		"api_version": optimade.APIVersion,
	})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.registry.IsHealthy(r.Context()) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status": "DOWN",
		"reason": "storage backend unavailable",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a single-error response in the OPTIMADE error envelope.
func writeError(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, types.ErrorResponse{
		Errors: []optimade.Error{{Status: status, Title: title, Detail: detail}},
	})
}

// idFilterPattern matches `id="..."` comparisons. Listing endpoints support
// equality filtering on id only; everything else in the filter is ignored.
var idFilterPattern = regexp.MustCompile(`id\s*=\s*"([^"]+)"`)

// listParams extracts pagination and the id filter from a listing request.
func listParams(r *http.Request, defaultLimit int) storage.ListParams {
	values := r.URL.Query()
	params := storage.ListParams{Limit: defaultLimit}

	if v := values.Get("page_limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if v := values.Get("page_offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			params.Skip = n
		}
	}
	for _, match := range idFilterPattern.FindAllStringSubmatch(values.Get("filter"), -1) {
		params.IDs = append(params.IDs, match[1])
	}
	return params
}

func listMeta(returned int, available int64, params storage.ListParams) types.ListMeta {
	return types.ListMeta{
		DataReturned:      int64(returned),
		DataAvailable:     available,
		MoreDataAvailable: int64(params.Skip+returned) < available,
	}
}

// finishedStatus decides the HTTP status a finished query record is served
// with: 200 when the merged response is clean, the errors' shared status when
// they agree, 500 when they disagree.
func finishedStatus(record *storage.QueryRecord) int {
	if record.State != storage.QueryStateFinished || record.Response == nil || len(record.Response.Errors) == 0 {
		return http.StatusOK
	}
	status := record.Response.Errors[0].Status
	for _, e := range record.Response.Errors[1:] {
		if e.Status != status {
			return http.StatusInternalServerError
		}
	}
	if status == 0 {
		return http.StatusInternalServerError
	}
	return status
}
