package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveWithViewport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("address"); got != "Taipei City" {
			t.Errorf("address = %q, want %q", got, "Taipei City")
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("key = %q, want %q", got, "test-key")
		}
		if got := r.URL.Query().Get("language"); got != "en" {
			t.Errorf("language = %q, want %q", got, "en")
		}
		w.Write([]byte(`{
			"status": "OK",
			"results": [{
				"geometry": {
					"location": {"lat": 25.03, "lng": 121.56},
					"viewport": {
						"northeast": {"lat": 25.21, "lng": 121.67},
						"southwest": {"lat": 24.96, "lng": 121.45}
					}
				}
			}]
		}`))
	}))
	defer srv.Close()

	g := &GoogleGeocoder{http: srv.Client(), baseURL: srv.URL, apiKey: "test-key"}
	res, err := g.Resolve(context.Background(), "Taipei City", "en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Center.Lat != 25.03 || res.Center.Lng != 121.56 {
		t.Errorf("center = %+v", res.Center)
	}
	if res.Viewport == nil {
		t.Fatal("expected viewport")
	}
	if res.Viewport.SW.Lat != 24.96 || res.Viewport.NE.Lng != 121.67 {
		t.Errorf("viewport = %+v", res.Viewport)
	}
}

func TestResolveNoViewport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"OK","results":[{"geometry":{"location":{"lat":1,"lng":2}}}]}`))
	}))
	defer srv.Close()

	g := &GoogleGeocoder{http: srv.Client(), baseURL: srv.URL, apiKey: "k"}
	res, err := g.Resolve(context.Background(), "somewhere", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Viewport != nil {
		t.Errorf("expected nil viewport, got %+v", res.Viewport)
	}
}

func TestResolveAPIFailureCarriesReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"API key invalid","results":[]}`))
	}))
	defer srv.Close()

	g := &GoogleGeocoder{http: srv.Client(), baseURL: srv.URL, apiKey: "bad"}
	_, err := g.Resolve(context.Background(), "anywhere", "")
	if err == nil {
		t.Fatal("expected error")
	}
	want := "geocoding API REQUEST_DENIED: API key invalid"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestResolveHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := &GoogleGeocoder{http: srv.Client(), baseURL: srv.URL, apiKey: "k"}
	if _, err := g.Resolve(context.Background(), "anywhere", ""); err == nil {
		t.Fatal("expected error on HTTP 500")
	}
}
