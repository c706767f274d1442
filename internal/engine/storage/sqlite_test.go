package storage

import (
	"path/filepath"
	"testing"

	"github.com/serabi/poiscout/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertBatchAndLoad(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.BeginRun("coffee shop", "Taipei City")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	placesIn := []model.Place{
		{
			ID:          "p-1",
			DisplayName: "First Cafe",
			Location:    &model.GeoPoint{Lat: 25.05, Lng: 121.5},
			Attributes:  map[string]any{"rating": 4.5},
		},
		{ResourceName: "places/p-2", DisplayName: "Second Cafe"},
		{DisplayName: "no identity, skipped"},
	}

	n, err := s.InsertBatch(runID, placesIn)
	if err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	got, err := s.LoadPlaces(runID)
	if err != nil {
		t.Fatalf("LoadPlaces: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("loaded = %d, want 2", len(got))
	}
	if got[0].ID != "p-1" || got[0].DisplayName != "First Cafe" {
		t.Errorf("first place = %+v", got[0])
	}
	if got[0].Location == nil || got[0].Location.Lat != 25.05 {
		t.Errorf("location = %+v", got[0].Location)
	}
	if r, ok := got[0].Attributes["rating"].(float64); !ok || r != 4.5 {
		t.Errorf("attributes = %+v", got[0].Attributes)
	}
	// Resource name collapses to the bare place ID on the way in.
	if got[1].ID != "p-2" {
		t.Errorf("second place id = %q, want p-2", got[1].ID)
	}
	if got[1].Location != nil {
		t.Errorf("second place location = %+v, want nil", got[1].Location)
	}
}

func TestInsertBatchIgnoresDuplicates(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.BeginRun("bar", "Osaka")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	batch := []model.Place{{ID: "dup"}, {ID: "dup"}, {ID: "other"}}
	if n, _ := s.InsertBatch(runID, batch); n != 2 {
		t.Errorf("first insert = %d, want 2", n)
	}
	// Re-inserting the same batch adds nothing.
	if n, _ := s.InsertBatch(runID, batch); n != 0 {
		t.Errorf("second insert = %d, want 0", n)
	}

	count, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestRunsLifecycle(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.BeginRun("museum", "Berlin")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	boundary := `{"type":"Polygon","coordinates":[[[13.1,52.3],[13.8,52.3],[13.8,52.7],[13.1,52.7],[13.1,52.3]]]}`
	if err := s.FinishRun(runID, model.StatusDone, 12, 5, boundary); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != runID || r.Keywords != "museum" || r.Location != "Berlin" {
		t.Errorf("run = %+v", r)
	}
	if r.Status != string(model.StatusDone) || r.PlaceCount != 12 || r.CellCount != 5 {
		t.Errorf("run result fields = %+v", r)
	}
	if r.Boundary != boundary {
		t.Errorf("boundary = %q", r.Boundary)
	}
	if r.CreatedAt.IsZero() {
		t.Error("created_at not populated")
	}
}

func TestCellsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.BeginRun("cafe", "Taipei City")
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	cells := []model.GridCell{
		{Bounds: &model.BoundingBox{
			SW: model.GeoPoint{Lat: 25.0, Lng: 121.4},
			NE: model.GeoPoint{Lat: 25.2, Lng: 121.6},
		}},
		{Bounds: &model.BoundingBox{
			SW: model.GeoPoint{Lat: 25.0, Lng: 121.4},
			NE: model.GeoPoint{Lat: 25.1, Lng: 121.5},
		}, Depth: 1},
		{}, // sentinel, not persisted
	}
	if err := s.InsertCells(runID, cells); err != nil {
		t.Fatalf("InsertCells: %v", err)
	}

	got, err := s.LoadCells(runID)
	if err != nil {
		t.Fatalf("LoadCells: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("cells = %d, want 2 (sentinel skipped)", len(got))
	}
	if got[0].Depth != 0 || got[1].Depth != 1 {
		t.Errorf("depths = %d, %d", got[0].Depth, got[1].Depth)
	}
	if got[1].Bounds.NE.Lng != 121.5 {
		t.Errorf("second cell = %+v", got[1].Bounds)
	}
}
