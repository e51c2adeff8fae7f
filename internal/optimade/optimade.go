// Package optimade holds the OPTIMADE wire types the gateway reads and writes.
//
// The gateway is deliberately schema-agnostic: entries returned by upstream
// databases are carried as opaque maps, and only the `id` and `type` members
// are ever inspected.
package optimade

import "fmt"

// APIVersion is the OPTIMADE API version the gateway implements and expects
// from upstream databases.
const APIVersion = "1.1.0"

// MajorVersion is the major part of APIVersion, used for versioned base URLs
// such as "/v1".
const MajorVersion = "1"

// VersionPath returns the versioned URL prefix, e.g. "v1".
func VersionPath() string {
	return "v" + MajorVersion
}

// Entry is a single OPTIMADE entry as returned by an upstream database.
// Everything except `id` and `type` is opaque to the gateway.
type Entry map[string]any

// ID returns the entry's `id` member, or "" if absent or not a string.
func (e Entry) ID() string {
	s, _ := e["id"].(string)
	return s
}

// Type returns the entry's `type` member, or "" if absent or not a string.
func (e Entry) Type() string {
	s, _ := e["type"].(string)
	return s
}

// WithPrefixedID returns a shallow copy of the entry whose `id` is rewritten
// to "{databaseID}/{original id}". Only `id` is touched; all other members
// are carried through untouched for forward compatibility.
func (e Entry) WithPrefixedID(databaseID string) Entry {
	out := make(Entry, len(e))
	for k, v := range e {
		out[k] = v
	}
	out["id"] = fmt.Sprintf("%s/%s", databaseID, e.ID())
	return out
}
