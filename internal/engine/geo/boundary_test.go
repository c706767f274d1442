package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/paulmach/orb"
)

func nominatimForTest(srv *httptest.Server) *NominatimClient {
	return &NominatimClient{http: srv.Client(), baseURL: srv.URL, delay: 0}
}

func TestFetchPrefersAdministrativePolygon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("polygon_geojson") != "1" {
			t.Errorf("polygon_geojson = %q, want 1", q.Get("polygon_geojson"))
		}
		if q.Get("q") != "Taipei City" {
			t.Errorf("q = %q", q.Get("q"))
		}
		// First result is a point-like place; second is the admin polygon.
		w.Write([]byte(`[
			{"class":"place","type":"house","geojson":{"type":"Point","coordinates":[121.5,25.0]}},
			{"class":"tourism","type":"attraction","geojson":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
			{"class":"boundary","type":"administrative","geojson":{"type":"Polygon","coordinates":[[[121,24],[122,24],[122,26],[121,26],[121,24]]]}}
		]`))
	}))
	defer srv.Close()

	geom, err := nominatimForTest(srv).Fetch(context.Background(), "Taipei City")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	poly, ok := geom.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry type %T, want orb.Polygon", geom)
	}
	if poly[0][0] != (orb.Point{121, 24}) {
		t.Errorf("got the wrong polygon: first vertex %v", poly[0][0])
	}
}

func TestFetchNoPolygonAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"class":"place","type":"house","geojson":{"type":"Point","coordinates":[1,2]}}]`))
	}))
	defer srv.Close()

	geom, err := nominatimForTest(srv).Fetch(context.Background(), "a street address")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if geom != nil {
		t.Errorf("expected nil geometry, got %T", geom)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := nominatimForTest(srv).Fetch(context.Background(), "anywhere"); err == nil {
		t.Fatal("expected error on HTTP 429")
	}
}

func TestFetchMultiPolygon(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"class":"boundary","type":"administrative","geojson":{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,1],[0,0]]]]}}]`))
	}))
	defer srv.Close()

	geom, err := nominatimForTest(srv).Fetch(context.Background(), "archipelago")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, ok := geom.(orb.MultiPolygon); !ok {
		t.Fatalf("geometry type %T, want orb.MultiPolygon", geom)
	}
}
