package optimade

import (
	"net/url"
	"testing"
)

func TestEntryWithPrefixedID(t *testing.T) {
	entry := Entry{"id": "mpf_1", "type": "structures", "attributes": map[string]any{"nelements": 2}}

	prefixed := entry.WithPrefixedID("mp")

	if got := prefixed.ID(); got != "mp/mpf_1" {
		t.Errorf("expected id mp/mpf_1, got %s", got)
	}
	if got := prefixed.Type(); got != "structures" {
		t.Errorf("expected type structures, got %s", got)
	}
	// The original must be untouched.
	if got := entry.ID(); got != "mpf_1" {
		t.Errorf("original entry mutated: id = %s", got)
	}
	if _, ok := prefixed["attributes"]; !ok {
		t.Error("attributes dropped during prefixing")
	}
}

func TestEntryAccessorsMissingMembers(t *testing.T) {
	entry := Entry{"attributes": map[string]any{}}
	if entry.ID() != "" {
		t.Errorf("expected empty id, got %s", entry.ID())
	}
	if entry.Type() != "" {
		t.Errorf("expected empty type, got %s", entry.Type())
	}
}

func TestParamsFromValues(t *testing.T) {
	values := url.Values{}
	values.Set("filter", `elements HAS "Si"`)
	values.Set("page_limit", "25")
	values.Set("page_offset", "50")
	values.Set("response_fields", "id,elements")
	values.Set("unknown_param", "ignored")

	p := ParamsFromValues(values)

	if p.Filter != `elements HAS "Si"` {
		t.Errorf("unexpected filter: %s", p.Filter)
	}
	if p.PageLimit != 25 || p.PageOffset != 50 {
		t.Errorf("unexpected paging: limit=%d offset=%d", p.PageLimit, p.PageOffset)
	}
	if p.ResponseFields != "id,elements" {
		t.Errorf("unexpected response_fields: %s", p.ResponseFields)
	}
}

func TestParamsFromValuesRejectsNegativePaging(t *testing.T) {
	values := url.Values{}
	values.Set("page_limit", "-1")
	values.Set("page_offset", "abc")

	p := ParamsFromValues(values)
	if p.PageLimit != 0 || p.PageOffset != 0 {
		t.Errorf("invalid paging values should be dropped, got limit=%d offset=%d", p.PageLimit, p.PageOffset)
	}
}

func TestParamsEncodeOmitsZeroValues(t *testing.T) {
	p := QueryParams{Filter: `nelements=2`, PageLimit: 10}

	values := p.Values()
	if values.Get("filter") != "nelements=2" {
		t.Errorf("unexpected filter: %s", values.Get("filter"))
	}
	if values.Get("page_limit") != "10" {
		t.Errorf("unexpected page_limit: %s", values.Get("page_limit"))
	}
	if _, ok := values["page_offset"]; ok {
		t.Error("zero page_offset should be omitted")
	}
	if _, ok := values["sort"]; ok {
		t.Error("empty sort should be omitted")
	}
}

func TestWithFilterDoesNotMutateReceiver(t *testing.T) {
	p := QueryParams{Filter: "a", PageLimit: 5}
	q := p.WithFilter("b")

	if p.Filter != "a" {
		t.Errorf("receiver mutated: %s", p.Filter)
	}
	if q.Filter != "b" || q.PageLimit != 5 {
		t.Errorf("unexpected copy: %+v", q)
	}
}

func TestVersionPath(t *testing.T) {
	if got := VersionPath(); got != "v1" {
		t.Errorf("expected v1, got %s", got)
	}
}
