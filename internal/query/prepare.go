// Package query implements federated query execution: per-database filter
// preparation, the bounded parallel fan-out and the response merger.
package query

import (
	"strings"

	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// PrepareFilters returns the filter each database should receive. Entry ids
// in a gateway response are prefixed with the database id, so clients echo
// those prefixed ids back in filters; each database gets its own prefix
// stripped from quoted id values while every other database receives the
// filter untouched.
func PrepareFilters(databases []storage.DatabaseRecord, filter string) map[string]string {
	filters := make(map[string]string, len(databases))
	for _, db := range databases {
		filters[db.ID] = filter
	}
	if filter == "" {
		return filters
	}
	for _, db := range databases {
		filters[db.ID] = stripIDPrefix(filter, db.ID)
	}
	return filters
}

// stripIDPrefix rewrites quoted values of the form "{databaseID}/{local}" to
// "{local}". Only values opening with the prefix directly after the quote are
// touched, so property names and other databases' prefixes pass through
// verbatim.
func stripIDPrefix(filter, databaseID string) string {
	return strings.ReplaceAll(filter, `"`+databaseID+`/`, `"`)
}
