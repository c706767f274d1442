package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/serabi/poiscout/internal/engine/geo"
	"github.com/serabi/poiscout/internal/engine/places"
	"github.com/serabi/poiscout/internal/model"
)

type stubGeocoder struct {
	res   geo.GeocodeResult
	err   error
	calls int
}

func (s *stubGeocoder) Resolve(ctx context.Context, location, language string) (geo.GeocodeResult, error) {
	s.calls++
	return s.res, s.err
}

type stubBoundary struct {
	geom  orb.Geometry
	err   error
	calls int
}

func (s *stubBoundary) Fetch(ctx context.Context, location string) (orb.Geometry, error) {
	s.calls++
	return s.geom, s.err
}

type stubSearcher struct {
	fn      func(call int, q places.Query) (places.Page, error)
	queries []places.Query
}

func (s *stubSearcher) Search(ctx context.Context, q places.Query) (places.Page, error) {
	s.queries = append(s.queries, q)
	return s.fn(len(s.queries), q)
}

// collectSink records every status and log event.
type collectSink struct {
	statuses []string
	logs     []string
}

func (c *collectSink) Status(status, message string, count int) {
	c.statuses = append(c.statuses, status+": "+message)
}

func (c *collectSink) Log(line string) { c.logs = append(c.logs, line) }

func uniquePlaces(prefix string, n int) []model.Place {
	out := make([]model.Place, n)
	for i := range out {
		out[i] = model.Place{
			ID:       fmt.Sprintf("%s-%d", prefix, i),
			Location: &model.GeoPoint{Lat: 25.05, Lng: 121.5},
		}
	}
	return out
}

func viewportResult() geo.GeocodeResult {
	return geo.GeocodeResult{
		Center: model.GeoPoint{Lat: 25.05, Lng: 121.5},
		Viewport: &model.BoundingBox{
			SW: model.GeoPoint{Lat: 25.0, Lng: 121.4},
			NE: model.GeoPoint{Lat: 25.2, Lng: 121.6},
		},
	}
}

func testEngine(g Geocoder, b BoundaryProvider, s PlacesSearcher) *Engine {
	return &Engine{Geocoder: g, Boundary: b, Search: s, APIKey: "test-key"}
}

func TestRunDenseAreaRefines(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		if call == 1 {
			// Root cell saturates in one page with no continuation.
			return places.Page{Places: uniquePlaces("root", 60)}, nil
		}
		return places.Page{Places: uniquePlaces(fmt.Sprintf("child%d", call), 3)}, nil
	}}

	sink := &collectSink{}
	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "restaurant", Location: "Taipei City", MaxPages: 10}, sink)

	if res.Status != model.StatusDone {
		t.Fatalf("status = %q, errors = %v", res.Status, res.Errors)
	}
	// 1 root + 4 children, each searched independently.
	if len(searcher.queries) != 5 {
		t.Errorf("search calls = %d, want 5", len(searcher.queries))
	}
	if len(res.Cells) != 5 {
		t.Errorf("searched cells = %d, want 5", len(res.Cells))
	}
	for _, c := range res.Cells[1:] {
		if c.Depth != 1 {
			t.Errorf("child cell depth = %d, want 1", c.Depth)
		}
	}
	if len(res.Places) != 60+4*3 {
		t.Errorf("places = %d, want 72", len(res.Places))
	}
}

func TestRunSparseAreaDoesNotRefine(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		return places.Page{Places: uniquePlaces("p", 3)}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "observatory", Location: "Taipei City"}, nil)

	if len(searcher.queries) != 1 {
		t.Errorf("search calls = %d, want 1", len(searcher.queries))
	}
	if len(res.Cells) != 1 {
		t.Errorf("searched cells = %d, want 1", len(res.Cells))
	}
	if res.Status != model.StatusDone || len(res.Places) != 3 {
		t.Errorf("status = %q, places = %d", res.Status, len(res.Places))
	}
}

func TestRunValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     model.CrawlRequest
		apiKey  string
		wantMsg string
	}{
		{"missing keywords", model.CrawlRequest{Location: "Taipei"}, "k", "Keywords are required."},
		{"blank keywords", model.CrawlRequest{Keywords: "  ", Location: "Taipei"}, "k", "Keywords are required."},
		{"missing location", model.CrawlRequest{Keywords: "cafe"}, "k", "Location is required."},
		{"missing api key", model.CrawlRequest{Keywords: "cafe", Location: "Taipei"}, "", "API key is missing. Set GOOGLE_PLACES_API_KEY or config.json."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gc := &stubGeocoder{}
			searcher := &stubSearcher{fn: func(int, places.Query) (places.Page, error) {
				return places.Page{}, nil
			}}
			e := testEngine(gc, &stubBoundary{}, searcher)
			e.APIKey = tt.apiKey

			sink := &collectSink{}
			res := e.Run(context.Background(), tt.req, sink)

			if res.Status != model.StatusError {
				t.Errorf("status = %q, want error", res.Status)
			}
			if gc.calls != 0 || len(searcher.queries) != 0 {
				t.Error("no network calls may happen before validation passes")
			}
			if len(sink.statuses) == 0 || !strings.Contains(sink.statuses[len(sink.statuses)-1], tt.wantMsg) {
				t.Errorf("statuses = %v, want last to contain %q", sink.statuses, tt.wantMsg)
			}
		})
	}
}

func TestRunGeocodeFailureIsFatal(t *testing.T) {
	searcher := &stubSearcher{fn: func(int, places.Query) (places.Page, error) {
		return places.Page{}, nil
	}}
	sink := &collectSink{}
	res := testEngine(
		&stubGeocoder{err: errors.New("geocoding API ZERO_RESULTS: no results")},
		&stubBoundary{},
		searcher,
	).Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Nowhereville"}, sink)

	if res.Status != model.StatusError {
		t.Fatalf("status = %q, want error", res.Status)
	}
	if len(res.Places) != 0 {
		t.Errorf("places = %d, want 0", len(res.Places))
	}
	if len(searcher.queries) != 0 {
		t.Error("no search queries may be issued after a geocode failure")
	}
	found := false
	for _, s := range sink.statuses {
		if strings.Contains(s, "Geocode failed. geocoding API ZERO_RESULTS") {
			found = true
		}
	}
	if !found {
		t.Errorf("statuses = %v, want a geocode failure report", sink.statuses)
	}
}

func TestRunMidCrawlErrorAbortsCellOnly(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		switch call {
		case 1:
			return places.Page{Places: uniquePlaces("root", 60)}, nil
		case 2:
			return places.Page{}, errors.New("places API 500: backend error")
		default:
			return places.Page{Places: uniquePlaces(fmt.Sprintf("c%d", call), 2)}, nil
		}
	}}

	sink := &collectSink{}
	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "bar", Location: "Taipei City"}, sink)

	// Root + 4 children all attempted despite the second call failing.
	if len(searcher.queries) != 5 {
		t.Errorf("search calls = %d, want 5", len(searcher.queries))
	}
	if len(res.Places) != 60+3*2 {
		t.Errorf("places = %d, want 66", len(res.Places))
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "backend error") {
		t.Errorf("errors = %v", res.Errors)
	}
	if len(sink.logs) != 1 {
		t.Errorf("log lines = %v", sink.logs)
	}
	if res.Status != model.StatusDone {
		t.Errorf("status = %q", res.Status)
	}
}

func TestRunRespectsResultCap(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		// Endless pages of 20 with a continuation token.
		return places.Page{
			Places:        uniquePlaces(fmt.Sprintf("pg%d", call), 20),
			NextPageToken: "more",
		}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{
			Keywords: "cafe", Location: "Taipei City", MaxPages: 20, MaxResults: 45,
		}, nil)

	if len(res.Places) != 45 {
		t.Errorf("places = %d, want exactly the cap", len(res.Places))
	}
	// Cap hit mid page 3; no further page or cell queries.
	if len(searcher.queries) != 3 {
		t.Errorf("search calls = %d, want 3", len(searcher.queries))
	}
}

func TestRunPageCeilingStopsPagination(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		return places.Page{
			Places:        uniquePlaces(fmt.Sprintf("pg%d", call), 10),
			NextPageToken: "more",
		}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Taipei City", MaxPages: 2}, nil)

	if len(searcher.queries) != 2 {
		t.Errorf("search calls = %d, want 2 (page ceiling)", len(searcher.queries))
	}
	if len(res.Places) != 20 {
		t.Errorf("places = %d, want 20", len(res.Places))
	}
}

func TestRunPaginationPassesToken(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		if call == 1 {
			return places.Page{Places: uniquePlaces("a", 20), NextPageToken: "tok-next"}, nil
		}
		if q.PageToken != "tok-next" {
			return places.Page{}, fmt.Errorf("unexpected page token %q", q.PageToken)
		}
		return places.Page{Places: uniquePlaces("b", 5)}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Taipei City", MaxPages: 5}, nil)

	if len(res.Errors) != 0 {
		t.Fatalf("errors = %v", res.Errors)
	}
	if len(res.Places) != 25 {
		t.Errorf("places = %d, want 25", len(res.Places))
	}
}

func TestRunUnboundedSentinelWithoutViewport(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		if q.Bounds != nil {
			t.Errorf("sentinel query must carry no bounds, got %+v", q.Bounds)
		}
		if q.RadiusMeters != 20000 {
			t.Errorf("bias radius = %v, want 20000", q.RadiusMeters)
		}
		// Even a saturated sentinel must not subdivide.
		return places.Page{Places: uniquePlaces("s", 60)}, nil
	}}
	boundary := &stubBoundary{}

	res := testEngine(
		&stubGeocoder{res: geo.GeocodeResult{Center: model.GeoPoint{Lat: 1, Lng: 2}}},
		boundary,
		searcher,
	).Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "some point"}, nil)

	if boundary.calls != 0 {
		t.Error("boundary fetch must be skipped without a usable viewport")
	}
	if len(searcher.queries) != 1 {
		t.Errorf("search calls = %d, want 1", len(searcher.queries))
	}
	if len(res.Cells) != 0 {
		t.Errorf("sentinel cell must not be recorded, got %d cells", len(res.Cells))
	}
}

func TestRunDegenerateViewportTreatedAsPoint(t *testing.T) {
	vp := model.BoundingBox{
		SW: model.GeoPoint{Lat: 25.0, Lng: 121.5},
		NE: model.GeoPoint{Lat: 25.005, Lng: 121.505},
	}
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		if q.Bounds != nil {
			t.Error("degenerate viewport should fall back to circle bias")
		}
		return places.Page{}, nil
	}}
	boundary := &stubBoundary{}

	testEngine(
		&stubGeocoder{res: geo.GeocodeResult{Center: vp.Center(), Viewport: &vp}},
		boundary,
		searcher,
	).Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "small spot"}, nil)

	if boundary.calls != 0 {
		t.Error("boundary fetch must be skipped for a degenerate viewport")
	}
}

func TestRunBoundaryNarrowsAndFilters(t *testing.T) {
	// Boundary square lat/lng 25.0..25.1 within a wider viewport.
	poly := orb.Polygon{orb.Ring{
		{121.4, 25.0}, {121.5, 25.0}, {121.5, 25.1}, {121.4, 25.1}, {121.4, 25.0},
	}}

	inside := model.Place{ID: "in", Location: &model.GeoPoint{Lat: 25.05, Lng: 121.45}}
	outside := model.Place{ID: "out", Location: &model.GeoPoint{Lat: 25.5, Lng: 121.45}}
	noCoord := model.Place{ID: "nc"}

	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		return places.Page{Places: []model.Place{inside, outside, noCoord}}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{geom: poly}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Taipei City"}, nil)

	// The root cell is narrowed to the polygon's own bounding rectangle.
	root := searcher.queries[0]
	if root.Bounds == nil || root.Bounds.NE.Lat != 25.1 || root.Bounds.NE.Lng != 121.5 {
		t.Errorf("root bounds = %+v, want the polygon bbox", root.Bounds)
	}

	if res.Boundary == nil {
		t.Error("result should carry the boundary geometry")
	}
	if len(res.Places) != 2 {
		t.Fatalf("places = %d, want 2 (outside dropped, coordinate-less kept)", len(res.Places))
	}
	ids := []string{res.Places[0].ID, res.Places[1].ID}
	if ids[0] != "in" || ids[1] != "nc" {
		t.Errorf("kept places = %v", ids)
	}
}

func TestRunBoundaryFetchFailureFallsBack(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		return places.Page{Places: uniquePlaces("p", 2)}, nil
	}}

	res := testEngine(
		&stubGeocoder{res: viewportResult()},
		&stubBoundary{err: errors.New("boundary lookup returned status 503")},
		searcher,
	).Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Taipei City"}, nil)

	if res.Status != model.StatusDone {
		t.Errorf("status = %q; boundary failure must not be fatal", res.Status)
	}
	// Falls back to the rectangular viewport.
	if searcher.queries[0].Bounds == nil {
		t.Error("expected viewport bounds on the root cell")
	}
	if len(res.Errors) != 0 {
		t.Errorf("boundary failure must not be recorded as a crawl error, got %v", res.Errors)
	}
}

func TestRunZeroResultsDiagnostic(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		return places.Page{}, nil
	}}

	sink := &collectSink{}
	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "unicorn stables", Location: "Taipei City"}, sink)

	if res.Status != model.StatusEmpty {
		t.Fatalf("status = %q, want empty", res.Status)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "Places API (New)") {
		t.Errorf("errors = %v, want the provider-enablement diagnostic", res.Errors)
	}
}

func TestRunZeroResultsWithErrorsNoDiagnostic(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		return places.Page{}, errors.New("places API 403: permission denied")
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Taipei City"}, nil)

	if res.Status != model.StatusEmpty {
		t.Fatalf("status = %q, want empty", res.Status)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "permission denied") {
		t.Errorf("errors = %v, want only the recorded API error", res.Errors)
	}
}

func TestRunDeduplicatesAcrossCells(t *testing.T) {
	shared := uniquePlaces("shared", 60)
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		// Every cell returns the same saturated result set: children must
		// still be searched (raw count drives refinement) but contribute no
		// new places.
		if call > 1 {
			return places.Page{Places: shared[:10]}, nil
		}
		return places.Page{Places: shared}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Taipei City"}, nil)

	if len(searcher.queries) != 5 {
		t.Errorf("search calls = %d, want 5", len(searcher.queries))
	}
	if len(res.Places) != 60 {
		t.Errorf("places = %d, want 60 unique", len(res.Places))
	}
}

func TestRunPageCeilingClampsHigh(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		// Endless continuation: only the clamp can stop pagination.
		return places.Page{
			Places:        uniquePlaces(fmt.Sprintf("pg%d", call), 2),
			NextPageToken: "more",
		}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Taipei City", MaxPages: 25}, nil)

	if len(searcher.queries) != 20 {
		t.Errorf("search calls = %d, want 20 (ceiling clamped)", len(searcher.queries))
	}
	if len(res.Places) != 40 {
		t.Errorf("places = %d, want 40", len(res.Places))
	}
}

func TestRunPageCeilingClampsLow(t *testing.T) {
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		return places.Page{
			Places:        uniquePlaces("pg", 2),
			NextPageToken: "more",
		}, nil
	}}

	testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(context.Background(), model.CrawlRequest{Keywords: "cafe", Location: "Taipei City", MaxPages: 0}, nil)

	if len(searcher.queries) != 1 {
		t.Errorf("search calls = %d, want 1 (ceiling clamped up)", len(searcher.queries))
	}
}

func TestRunCancellationStopsBetweenCells(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		// Saturate the root so four children are queued, then cancel: none
		// of the children may be searched.
		cancel()
		return places.Page{Places: uniquePlaces("root", 60)}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(ctx, model.CrawlRequest{Keywords: "cafe", Location: "Taipei City"}, nil)

	if len(searcher.queries) != 1 {
		t.Errorf("search calls = %d, want 1 (canceled before children)", len(searcher.queries))
	}
	if res.Status != model.StatusDone {
		t.Errorf("status = %q, want done with partial results", res.Status)
	}
	if len(res.Places) != 60 {
		t.Errorf("places = %d, want 60 collected before cancel", len(res.Places))
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "canceled") {
		t.Errorf("errors = %v, want one cancellation message", res.Errors)
	}
}

func TestRunCancellationStopsBetweenPages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	searcher := &stubSearcher{fn: func(call int, q places.Query) (places.Page, error) {
		cancel()
		return places.Page{Places: uniquePlaces("pg", 10), NextPageToken: "more"}, nil
	}}

	res := testEngine(&stubGeocoder{res: viewportResult()}, &stubBoundary{}, searcher).
		Run(ctx, model.CrawlRequest{Keywords: "cafe", Location: "Taipei City", MaxPages: 10}, nil)

	if len(searcher.queries) != 1 {
		t.Errorf("search calls = %d, want 1 (second page not issued)", len(searcher.queries))
	}
	if len(res.Places) != 10 {
		t.Errorf("places = %d, want 10 from the first page", len(res.Places))
	}
}
