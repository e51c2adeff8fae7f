package query

import (
	"net/http"
	"strings"
	"testing"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
	"github.com/materials-consortia/optimade-gateway/internal/upstream"
)

func okOutcome(entries []optimade.Entry, returned, available int64, more bool) upstream.Outcome {
	return upstream.Outcome{Response: &optimade.Response{
		Data: entries,
		Meta: optimade.Meta{
			DataReturned:      returned,
			DataAvailable:     available,
			MoreDataAvailable: more,
		},
	}}
}

func TestMergeTwoHealthySources(t *testing.T) {
	results := []SourceResult{
		{
			Database: storage.DatabaseRecord{ID: "mp"},
			Outcome: okOutcome([]optimade.Entry{
				{"id": "a1", "type": "structures"},
				{"id": "a2", "type": "structures"},
			}, 2, 100, true),
		},
		{
			Database: storage.DatabaseRecord{ID: "odbx"},
			Outcome: okOutcome([]optimade.Entry{
				{"id": "b1", "type": "structures"},
			}, 1, 1, false),
		},
	}

	merged := Merge(results, optimade.QueryParams{PageLimit: 2}, "/gateways/g1/structures?page_limit=2", "")

	if len(merged.Data) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(merged.Data))
	}
	// Declaration order with prefixed ids.
	wantIDs := []string{"mp/a1", "mp/a2", "odbx/b1"}
	for i, want := range wantIDs {
		if got := merged.Data[i].ID(); got != want {
			t.Errorf("entry %d: expected %s, got %s", i, want, got)
		}
	}
	if merged.Errors != nil {
		t.Errorf("no errors expected: %+v", merged.Errors)
	}
	if merged.Meta.DataReturned != 3 {
		t.Errorf("expected data_returned 3, got %d", merged.Meta.DataReturned)
	}
	if merged.Meta.DataAvailable != 101 {
		t.Errorf("expected data_available 101, got %d", merged.Meta.DataAvailable)
	}
	if !merged.Meta.MoreDataAvailable {
		t.Error("more_data_available should be OR-ed to true")
	}
	if merged.Meta.Sources["mp"] != optimade.SourceOK || merged.Meta.Sources["odbx"] != optimade.SourceOK {
		t.Errorf("unexpected sources: %+v", merged.Meta.Sources)
	}
	if merged.Meta.Query.Representation != "/gateways/g1/structures?page_limit=2" {
		t.Errorf("unexpected representation: %s", merged.Meta.Query.Representation)
	}
}

func TestMergePartialFailure(t *testing.T) {
	results := []SourceResult{
		{
			Database: storage.DatabaseRecord{ID: "mp"},
			Outcome:  okOutcome([]optimade.Entry{{"id": "a1"}}, 1, 1, false),
		},
		{
			Database: storage.DatabaseRecord{ID: "down"},
			Outcome: upstream.Outcome{Upstream: &upstream.UpstreamError{
				Status: http.StatusInternalServerError,
				Errors: []optimade.Error{{Status: 500, Title: "Internal Server Error", Detail: "boom"}},
			}},
		},
	}

	merged := Merge(results, optimade.QueryParams{}, "/gateways/g1/structures", "")

	if len(merged.Data) != 1 || merged.Data[0].ID() != "mp/a1" {
		t.Errorf("healthy source data missing: %+v", merged.Data)
	}
	if len(merged.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(merged.Errors))
	}
	e := merged.Errors[0]
	if e.Source != "down" || e.Status != 500 || e.Detail != "boom" || e.Type != "upstream_error" {
		t.Errorf("unexpected error object: %+v", e)
	}
	if merged.Meta.Sources["down"] != optimade.SourceError {
		t.Errorf("failed source not marked: %+v", merged.Meta.Sources)
	}
	if merged.Meta.DataReturned != 1 {
		t.Errorf("failed source must not contribute counts: %d", merged.Meta.DataReturned)
	}
}

func TestMergeTransportErrorBecomes504(t *testing.T) {
	results := []SourceResult{
		{
			Database: storage.DatabaseRecord{ID: "slow"},
			Outcome: upstream.Outcome{Transport: &upstream.TransportError{
				Kind:    upstream.KindTimeout,
				Message: "context deadline exceeded",
			}},
		},
	}

	merged := Merge(results, optimade.QueryParams{}, "/gateways/g1/structures", "")

	if len(merged.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(merged.Errors))
	}
	e := merged.Errors[0]
	if e.Status != http.StatusGatewayTimeout || e.Type != "transport_error" {
		t.Errorf("unexpected error object: %+v", e)
	}
	if !strings.Contains(e.Detail, "timeout") {
		t.Errorf("kind missing from detail: %s", e.Detail)
	}
	if len(merged.Data) != 0 {
		t.Errorf("expected empty data, got %d entries", len(merged.Data))
	}
	if merged.Data == nil {
		t.Error("data must serialize as an empty array, not null")
	}
}

func TestMergeCountFallbacks(t *testing.T) {
	// Upstream without meta counts: both counts fall back to len(data).
	results := []SourceResult{
		{
			Database: storage.DatabaseRecord{ID: "bare"},
			Outcome: upstream.Outcome{Response: &optimade.Response{
				Data: []optimade.Entry{{"id": "x"}, {"id": "y"}},
			}},
		},
	}

	merged := Merge(results, optimade.QueryParams{}, "/gateways/g1/structures", "")

	if merged.Meta.DataReturned != 2 {
		t.Errorf("expected fallback data_returned 2, got %d", merged.Meta.DataReturned)
	}
	if merged.Meta.DataAvailable != 2 {
		t.Errorf("expected fallback data_available 2, got %d", merged.Meta.DataAvailable)
	}
}

func TestMergePageMultiplicity(t *testing.T) {
	// N databases each answering a full page: the merged page holds
	// N*page_limit entries.
	const pageLimit = 3
	var results []SourceResult
	for _, id := range []string{"a", "b", "c"} {
		entries := make([]optimade.Entry, pageLimit)
		for i := range entries {
			entries[i] = optimade.Entry{"id": string(rune('x' + i))}
		}
		results = append(results, SourceResult{
			Database: storage.DatabaseRecord{ID: id},
			Outcome:  okOutcome(entries, pageLimit, 100, true),
		})
	}

	merged := Merge(results, optimade.QueryParams{PageLimit: pageLimit}, "/gateways/g1/structures", "")

	if len(merged.Data) != 3*pageLimit {
		t.Errorf("expected %d entries, got %d", 3*pageLimit, len(merged.Data))
	}
}

func TestMergeNextLink(t *testing.T) {
	results := []SourceResult{
		{
			Database: storage.DatabaseRecord{ID: "mp"},
			Outcome:  okOutcome([]optimade.Entry{{"id": "a"}}, 1, 50, true),
		},
	}
	params := optimade.QueryParams{Filter: "nelements=2", PageLimit: 10, PageOffset: 10}

	merged := Merge(results, params, "/gateways/g1/structures?filter=nelements%3D2&page_limit=10&page_offset=10", "")

	if merged.Links.Next == nil {
		t.Fatal("expected links.next")
	}
	next := *merged.Links.Next
	if !strings.HasPrefix(next, "/gateways/g1/structures?") {
		t.Errorf("next should keep the caller path: %s", next)
	}
	if !strings.Contains(next, "page_offset=20") {
		t.Errorf("page_offset not advanced by page_limit: %s", next)
	}
	if !strings.Contains(next, "filter=nelements%3D2") {
		t.Errorf("filter dropped from next: %s", next)
	}
}

func TestMergeNextLinkDefaultPageLimit(t *testing.T) {
	results := []SourceResult{
		{
			Database: storage.DatabaseRecord{ID: "mp"},
			Outcome:  okOutcome([]optimade.Entry{{"id": "a"}}, 1, 50, true),
		},
	}

	merged := Merge(results, optimade.QueryParams{}, "/gateways/g1/structures", "")

	if merged.Links.Next == nil {
		t.Fatal("expected links.next")
	}
	if !strings.Contains(*merged.Links.Next, "page_offset=20") {
		t.Errorf("default page_limit should advance the offset by 20: %s", *merged.Links.Next)
	}
}

func TestMergeNextLinkAbsoluteWithBaseURL(t *testing.T) {
	results := []SourceResult{
		{
			Database: storage.DatabaseRecord{ID: "mp"},
			Outcome:  okOutcome([]optimade.Entry{{"id": "a"}}, 1, 50, true),
		},
	}

	merged := Merge(results, optimade.QueryParams{PageLimit: 10}, "/gateways/g1/structures", "https://gateway.example.org/")

	if merged.Links.Next == nil {
		t.Fatal("expected links.next")
	}
	next := *merged.Links.Next
	if !strings.HasPrefix(next, "https://gateway.example.org/gateways/g1/structures?") {
		t.Errorf("next should be absolute under the configured base URL: %s", next)
	}
	if !strings.Contains(next, "page_offset=10") {
		t.Errorf("page_offset not advanced: %s", next)
	}
}

func TestMergeNoMoreDataNoNextLink(t *testing.T) {
	results := []SourceResult{
		{
			Database: storage.DatabaseRecord{ID: "mp"},
			Outcome:  okOutcome([]optimade.Entry{{"id": "a"}}, 1, 1, false),
		},
	}

	merged := Merge(results, optimade.QueryParams{}, "/gateways/g1/structures", "")

	if merged.Links.Next != nil {
		t.Errorf("no next link expected: %s", *merged.Links.Next)
	}
}
