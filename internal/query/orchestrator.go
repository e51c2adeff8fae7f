package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/materials-consortia/optimade-gateway/internal/metrics"
	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/registry"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
	"github.com/materials-consortia/optimade-gateway/internal/upstream"
)

// Config controls query execution.
type Config struct {
	// PerDBTimeout bounds every individual upstream fetch.
	PerDBTimeout time.Duration
	// GatewayTimeout bounds the whole fan-out. Zero means no overall bound
	// beyond the caller's context.
	GatewayTimeout time.Duration
	// MaxConcurrent caps how many upstream fetches run at once.
	MaxConcurrent int
	// BaseURL is the externally visible URL of this gateway. When set, the
	// merged response's links.next is absolute.
	BaseURL string
}

// DefaultConfig returns the execution defaults.
func DefaultConfig() Config {
	return Config{
		PerDBTimeout:  240 * time.Second,
		MaxConcurrent: 10,
	}
}

// Orchestrator runs federated queries: it advances the query record through
// its lifecycle, fans the request out to every database of the gateway and
// stores the merged response.
type Orchestrator struct {
	registry *registry.Registry
	client   *upstream.Client
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewOrchestrator creates an orchestrator. The metrics instance may be nil.
func NewOrchestrator(reg *registry.Registry, client *upstream.Client, config Config, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = DefaultConfig().MaxConcurrent
	}
	if config.PerDBTimeout <= 0 {
		config.PerDBTimeout = DefaultConfig().PerDBTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: reg,
		client:   client,
		config:   config,
		logger:   logger,
		metrics:  m,
	}
}

// Run executes the query record to completion and returns the finished
// record. The record must be in the created state.
//
// Synchronous callers pass their request context so a disconnect cancels the
// fan-out; asynchronous callers pass a context anchored to the process.
// Per-upstream failures never abort the run, they surface as error objects in
// the merged response. Store failures abort and leave the record in its last
// reached state.
func (o *Orchestrator) Run(ctx context.Context, record *storage.QueryRecord) (*storage.QueryRecord, error) {
	start := time.Now()

	gateway, err := o.registry.GetGateway(ctx, record.GatewayID)
	if err != nil {
		return nil, fmt.Errorf("gateway %q: %w", record.GatewayID, err)
	}

	if _, err := o.registry.AdvanceQuery(ctx, record.ID, storage.QueryStateStarted, nil); err != nil {
		return nil, err
	}

	fanoutCtx := ctx
	if o.config.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		fanoutCtx, cancel = context.WithTimeout(ctx, o.config.GatewayTimeout)
		defer cancel()
	}

	filters := PrepareFilters(gateway.Databases, record.Parameters.Filter)
	results := make([]SourceResult, len(gateway.Databases))

	group, groupCtx := errgroup.WithContext(fanoutCtx)
	group.SetLimit(o.config.MaxConcurrent)
	for i, db := range gateway.Databases {
		i, db := i, db
		results[i].Database = db
		group.Go(func() error {
			params := record.Parameters.WithFilter(filters[db.ID])
			fetchStart := time.Now()
			outcome := o.client.Fetch(groupCtx, db, record.Endpoint, params, o.config.PerDBTimeout)
			results[i].Outcome = outcome
			if o.metrics != nil {
				o.metrics.ObserveUpstream(db.ID, outcomeLabel(outcome), time.Since(fetchStart))
			}
			if !outcome.OK() {
				o.logger.Warn("upstream fetch failed",
					"query", record.ID, "database", db.ID, "outcome", outcomeLabel(outcome))
			}
			return nil
		})
	}

	if _, err := o.registry.AdvanceQuery(ctx, record.ID, storage.QueryStateInProgress, nil); err != nil {
		return nil, err
	}

	// Tasks never return errors; failures live in their outcomes.
	_ = group.Wait()

	representation := representationFor(gateway.ID, record.Endpoint, record.Parameters)
	merged := Merge(results, record.Parameters, representation, o.config.BaseURL)

	finished, err := o.registry.AdvanceQuery(ctx, record.ID, storage.QueryStateFinished, merged)
	if err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.ObserveQuery(record.Endpoint, time.Since(start))
	}
	o.logger.Info("query finished",
		"query", record.ID,
		"gateway", gateway.ID,
		"databases", len(gateway.Databases),
		"entries", len(merged.Data),
		"errors", len(merged.Errors),
		"duration", time.Since(start))
	return finished, nil
}

// RunDetached executes the record on a background context so it survives the
// creating request. Errors are logged, not returned.
func (o *Orchestrator) RunDetached(ctx context.Context, record *storage.QueryRecord) {
	go func() {
		detached := context.WithoutCancel(ctx)
		if _, err := o.Run(detached, record); err != nil {
			o.logger.Error("detached query failed", "query", record.ID, "error", err)
		}
	}()
}

func outcomeLabel(outcome upstream.Outcome) string {
	switch {
	case outcome.OK():
		return "ok"
	case outcome.Transport != nil:
		return "transport_" + string(outcome.Transport.Kind)
	default:
		return "upstream_error"
	}
}

// representationFor builds the meta.query.representation string: the path
// and query of the request this record answers.
func representationFor(gatewayID, endpoint string, params optimade.QueryParams) string {
	path := "/gateways/" + gatewayID + "/" + endpoint
	if query := params.Encode(); query != "" {
		return path + "?" + query
	}
	return path
}
