package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/materials-consortia/optimade-gateway/internal/optimade"
	"github.com/materials-consortia/optimade-gateway/internal/storage"
)

func testDatabase(id string) *storage.DatabaseRecord {
	return &storage.DatabaseRecord{
		ID:        id,
		Name:      "Test " + id,
		BaseURL:   "https://example.org/" + id,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCreateAndGetDatabase(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.CreateDatabase(ctx, testDatabase("mp")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.GetDatabase(ctx, "mp")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.BaseURL != "https://example.org/mp" {
		t.Errorf("unexpected base_url: %s", got.BaseURL)
	}
}

func TestCreateDatabaseConflict(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.CreateDatabase(ctx, testDatabase("mp")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	err := s.CreateDatabase(ctx, testDatabase("mp"))
	if !errors.Is(err, storage.ErrIDConflict) {
		t.Errorf("expected ErrIDConflict, got %v", err)
	}
}

func TestGetDatabaseNotFound(t *testing.T) {
	s := NewStore()
	_, err := s.GetDatabase(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReplaceDatabase(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	if err := s.CreateDatabase(ctx, testDatabase("mp")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated := testDatabase("mp")
	updated.Name = "Materials Project"
	if err := s.ReplaceDatabase(ctx, updated); err != nil {
		t.Fatalf("replace failed: %v", err)
	}

	got, _ := s.GetDatabase(ctx, "mp")
	if got.Name != "Materials Project" {
		t.Errorf("replace not applied: %s", got.Name)
	}

	if err := s.ReplaceDatabase(ctx, testDatabase("missing")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestFindGatewayByDatabaseSet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	record := &storage.GatewayRecord{
		ID:            "gw1",
		Databases:     []storage.DatabaseRecord{*testDatabase("odbx"), *testDatabase("mp")},
		DatabaseIDSet: []string{"mp", "odbx"},
		InterningKey:  storage.InterningKey([]string{"mp", "odbx"}),
	}
	if err := s.CreateGateway(ctx, record); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.FindGatewayByDatabaseSet(ctx, []string{"mp", "odbx"})
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if got.ID != "gw1" {
		t.Errorf("expected gw1, got %s", got.ID)
	}
	// Declaration order survives alongside the canonical set.
	if got.Databases[0].ID != "odbx" {
		t.Errorf("declaration order lost: %s", got.Databases[0].ID)
	}

	if _, err := s.FindGatewayByDatabaseSet(ctx, []string{"mp"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for different set, got %v", err)
	}
}

func TestCreateGatewayInterningKeyConflict(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	key := storage.InterningKey([]string{"mp", "odbx"})
	if err := s.CreateGateway(ctx, &storage.GatewayRecord{
		ID:            "gw1",
		DatabaseIDSet: []string{"mp", "odbx"},
		InterningKey:  key,
	}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// A second interned record for the same set conflicts even with a fresh id.
	err := s.CreateGateway(ctx, &storage.GatewayRecord{
		ID:            "gw2",
		DatabaseIDSet: []string{"mp", "odbx"},
		InterningKey:  key,
	})
	if !errors.Is(err, storage.ErrIDConflict) {
		t.Errorf("expected ErrIDConflict for duplicate interning key, got %v", err)
	}
}

func TestCreateGatewayEmptyInterningKeysCoexist(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, id := range []string{"named1", "named2"} {
		err := s.CreateGateway(ctx, &storage.GatewayRecord{
			ID:            id,
			DatabaseIDSet: []string{"mp", "odbx"},
		})
		if err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}

	// Keyless records never satisfy a set lookup either.
	if _, err := s.FindGatewayByDatabaseSet(ctx, []string{"mp", "odbx"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for explicit-only records, got %v", err)
	}
}

func TestUpdateQuery(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	record := &storage.QueryRecord{
		ID:        "q1",
		GatewayID: "gw1",
		State:     storage.QueryStateCreated,
	}
	if err := s.CreateQuery(ctx, record); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	state := storage.QueryStateFinished
	resp := &optimade.Response{Data: []optimade.Entry{{"id": "mp/1", "type": "structures"}}}
	err := s.UpdateQuery(ctx, "q1", storage.QueryUpdate{
		State:       &state,
		Response:    resp,
		LastUpdated: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, _ := s.GetQuery(ctx, "q1")
	if got.State != storage.QueryStateFinished {
		t.Errorf("state not updated: %s", got.State)
	}
	if got.Response == nil || len(got.Response.Data) != 1 {
		t.Fatalf("response not stored: %+v", got.Response)
	}
}

func TestStoredQueryIsImmutableToReaders(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	state := storage.QueryStateFinished
	if err := s.CreateQuery(ctx, &storage.QueryRecord{ID: "q1", State: storage.QueryStateCreated}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	resp := &optimade.Response{
		Data: []optimade.Entry{{"id": "mp/1"}},
		Meta: optimade.Meta{Sources: map[string]string{"mp": optimade.SourceOK}},
	}
	if err := s.UpdateQuery(ctx, "q1", storage.QueryUpdate{State: &state, Response: resp, LastUpdated: time.Now()}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	first, _ := s.GetQuery(ctx, "q1")
	first.Response.Data[0]["id"] = "tampered"
	first.Response.Meta.Sources["mp"] = "tampered"

	second, _ := s.GetQuery(ctx, "q1")
	if got := second.Response.Data[0].ID(); got != "mp/1" {
		t.Errorf("stored entry mutated through a read copy: %s", got)
	}
	if got := second.Response.Meta.Sources["mp"]; got != optimade.SourceOK {
		t.Errorf("stored sources mutated through a read copy: %s", got)
	}
}

func TestListGatewaysPaging(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := s.CreateGateway(ctx, &storage.GatewayRecord{ID: id, DatabaseIDSet: []string{id}}); err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}

	records, total, err := s.ListGateways(ctx, storage.ListParams{Skip: 1, Limit: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 4 {
		t.Errorf("expected total 4, got %d", total)
	}
	if len(records) != 2 || records[0].ID != "b" || records[1].ID != "c" {
		t.Errorf("unexpected page: %+v", records)
	}
}

func TestListQueriesIDFilter(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	for _, id := range []string{"q1", "q2", "q3"} {
		if err := s.CreateQuery(ctx, &storage.QueryRecord{ID: id, State: storage.QueryStateCreated}); err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}

	records, total, err := s.ListQueries(ctx, storage.ListParams{IDs: []string{"q3", "q1"}})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 2 || len(records) != 2 {
		t.Fatalf("expected 2 records, got total=%d len=%d", total, len(records))
	}
	// Insertion order, not filter order.
	if records[0].ID != "q1" || records[1].ID != "q3" {
		t.Errorf("unexpected records: %s, %s", records[0].ID, records[1].ID)
	}
}
