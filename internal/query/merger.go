package query

import (
	"net/http"
	"strings"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
	"github.com/materials-consortia/optimade-gateway/internal/upstream"
)

// DefaultPageLimit is the per-database page size used when the caller does
// not set page_limit.
const DefaultPageLimit = 20

// SourceResult pairs one upstream database with the outcome of its fetch.
type SourceResult struct {
	Database storage.DatabaseRecord
	Outcome  upstream.Outcome
}

// Merge folds the per-database outcomes of one federated query into a single
// OPTIMADE response.
//
// Entries are concatenated in gateway declaration order with ids rewritten to
// "{database_id}/{entry_id}"; no cross-source sorting or deduplication is
// applied, so a page can hold up to N times page_limit entries for N
// databases. Failed sources contribute an error object instead of data and
// never suppress the data of the sources that succeeded. A non-empty baseURL
// makes the synthesized links.next absolute.
func Merge(results []SourceResult, params optimade.QueryParams, representation, baseURL string) *optimade.Response {
	merged := &optimade.Response{
		Data: []optimade.Entry{},
		Meta: optimade.Meta{
			Query:      optimade.MetaQuery{Representation: representation},
			APIVersion: optimade.APIVersion,
			Sources:    make(map[string]string, len(results)),
		},
	}

	for _, result := range results {
		dbID := result.Database.ID
		outcome := result.Outcome

		if !outcome.OK() {
			merged.Meta.Sources[dbID] = optimade.SourceError
			merged.Errors = append(merged.Errors, sourceError(dbID, outcome))
			continue
		}
		merged.Meta.Sources[dbID] = optimade.SourceOK

		resp := outcome.Response
		for _, entry := range resp.Data {
			merged.Data = append(merged.Data, entry.WithPrefixedID(dbID))
		}

		// Counts the upstream omitted fall back to the page it sent.
		returned := resp.Meta.DataReturned
		if returned == 0 {
			returned = int64(len(resp.Data))
		}
		available := resp.Meta.DataAvailable
		if available == 0 {
			available = int64(len(resp.Data))
		}
		merged.Meta.DataReturned += returned
		merged.Meta.DataAvailable += available
		merged.Meta.MoreDataAvailable = merged.Meta.MoreDataAvailable || resp.Meta.MoreDataAvailable
	}

	if merged.Meta.MoreDataAvailable {
		next := nextPageURL(params, representation, baseURL)
		merged.Links.Next = &next
	}
	return merged
}

// sourceError converts a failed outcome into the error object reported under
// the merged response's top-level errors array.
func sourceError(dbID string, outcome upstream.Outcome) optimade.Error {
	if outcome.Transport != nil {
		return optimade.Error{
			Status: http.StatusGatewayTimeout,
			Title:  "Gateway Timeout",
			Detail: string(outcome.Transport.Kind) + ": " + outcome.Transport.Message,
			Source: dbID,
			Type:   "transport_error",
		}
	}

	err := optimade.Error{
		Status: outcome.Upstream.Status,
		Title:  "Upstream Error",
		Source: dbID,
		Type:   "upstream_error",
	}
	if len(outcome.Upstream.Errors) > 0 {
		first := outcome.Upstream.Errors[0]
		if first.Title != "" {
			err.Title = first.Title
		}
		err.Detail = first.Detail
	}
	if err.Detail == "" {
		err.Detail = outcome.Upstream.Body
	}
	return err
}

// nextPageURL rebuilds the caller's request with page_offset advanced by one
// page. The offset is forwarded to every upstream as-is, so this is the URL
// of the next federated page, not of any single database's. baseURL, when
// configured, makes the link absolute.
func nextPageURL(params optimade.QueryParams, representation, baseURL string) string {
	limit := params.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	next := params
	next.PageOffset += limit

	path := representation
	if j := strings.IndexByte(path, '?'); j >= 0 {
		path = path[:j]
	}
	return strings.TrimRight(baseURL, "/") + path + "?" + next.Encode()
}
