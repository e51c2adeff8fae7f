package memory

import (
	"slices"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

// The store hands out copies so callers can never mutate a stored record in
// place. This is what makes finished query records immutable to readers.

func cloneDatabase(record *storage.DatabaseRecord) *storage.DatabaseRecord {
	out := *record
	if record.Provider != nil {
		out.Provider = make(map[string]string, len(record.Provider))
		for k, v := range record.Provider {
			out.Provider[k] = v
		}
	}
	return &out
}

func cloneGateway(record *storage.GatewayRecord) *storage.GatewayRecord {
	out := *record
	out.Databases = make([]storage.DatabaseRecord, len(record.Databases))
	for i := range record.Databases {
		out.Databases[i] = *cloneDatabase(&record.Databases[i])
	}
	out.DatabaseIDSet = slices.Clone(record.DatabaseIDSet)
	return &out
}

func cloneQuery(record *storage.QueryRecord) *storage.QueryRecord {
	out := *record
	out.Response = cloneResponse(record.Response)
	return &out
}

func cloneResponse(resp *optimade.Response) *optimade.Response {
	if resp == nil {
		return nil
	}
	out := *resp
	out.Data = make([]optimade.Entry, len(resp.Data))
	for i, entry := range resp.Data {
		clone := make(optimade.Entry, len(entry))
		for k, v := range entry {
			clone[k] = v
		}
		out.Data[i] = clone
	}
	out.Errors = slices.Clone(resp.Errors)
	out.Meta.Warnings = slices.Clone(resp.Meta.Warnings)
	if resp.Meta.Sources != nil {
		out.Meta.Sources = make(map[string]string, len(resp.Meta.Sources))
		for k, v := range resp.Meta.Sources {
			out.Meta.Sources[k] = v
		}
	}
	if resp.Links.Next != nil {
		next := *resp.Links.Next
		out.Links.Next = &next
	}
	return &out
}
