package query

import (
	"testing"

	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

func testDatabases(ids ...string) []storage.DatabaseRecord {
	dbs := make([]storage.DatabaseRecord, len(ids))
	for i, id := range ids {
		dbs[i] = storage.DatabaseRecord{ID: id, BaseURL: "https://example.org/" + id}
	}
	return dbs
}

func TestPrepareFiltersEmptyFilter(t *testing.T) {
	filters := PrepareFilters(testDatabases("mp", "odbx"), "")
	if filters["mp"] != "" || filters["odbx"] != "" {
		t.Errorf("empty filter should stay empty: %+v", filters)
	}
}

func TestPrepareFiltersStripsOwnPrefix(t *testing.T) {
	filter := `id="mp/mpf_1" OR nelements=2`
	filters := PrepareFilters(testDatabases("mp", "odbx"), filter)

	if filters["mp"] != `id="mpf_1" OR nelements=2` {
		t.Errorf("mp filter not rewritten: %s", filters["mp"])
	}
	// Other databases keep the foreign prefix verbatim.
	if filters["odbx"] != filter {
		t.Errorf("odbx filter should be untouched: %s", filters["odbx"])
	}
}

func TestPrepareFiltersMultipleOccurrences(t *testing.T) {
	filter := `id="mp/a" OR id="mp/b" OR id="odbx/c"`
	filters := PrepareFilters(testDatabases("mp", "odbx"), filter)

	if filters["mp"] != `id="a" OR id="b" OR id="odbx/c"` {
		t.Errorf("mp filter: %s", filters["mp"])
	}
	if filters["odbx"] != `id="mp/a" OR id="mp/b" OR id="c"` {
		t.Errorf("odbx filter: %s", filters["odbx"])
	}
}

func TestPrepareFiltersNonPrefixedPassThrough(t *testing.T) {
	filter := `elements HAS "Si" AND id="local_id"`
	filters := PrepareFilters(testDatabases("mp"), filter)

	if filters["mp"] != filter {
		t.Errorf("non-prefixed filter changed: %s", filters["mp"])
	}
}

func TestPrepareFiltersDoesNotTouchBareTokens(t *testing.T) {
	// The prefix is only stripped inside quoted values.
	filter := `chemical_formula_descriptive CONTAINS "mp/x" AND mp/not_a_value=1`
	filters := PrepareFilters(testDatabases("mp"), filter)

	if filters["mp"] != `chemical_formula_descriptive CONTAINS "x" AND mp/not_a_value=1` {
		t.Errorf("unexpected rewrite: %s", filters["mp"])
	}
}
