package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/serabi/poiscout/internal/model"
)

func clientForTest(srv *httptest.Server) *Client {
	return &Client{http: srv.Client(), baseURL: srv.URL, apiKey: "test-key"}
}

func TestNormalizeFieldMask(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   []string
	}{
		{
			"prefixes bare attributes",
			[]string{"id", "displayName"},
			[]string{"places.id", "places.displayName", "nextPageToken"},
		},
		{
			"keeps already-prefixed attributes",
			[]string{"places.rating", "websiteUri"},
			[]string{"places.rating", "places.websiteUri", "nextPageToken"},
		},
		{
			"empty input falls back to defaults",
			nil,
			[]string{"places.id", "places.displayName", "places.formattedAddress", "places.location", "nextPageToken"},
		},
		{
			"blank entries dropped",
			[]string{"", "  ", "id"},
			[]string{"places.id", "nextPageToken"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeFieldMask(tt.fields); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeFieldMask(%v) = %v, want %v", tt.fields, got, tt.want)
			}
		})
	}
}

func TestSearchBoundedCell(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Goog-Api-Key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		mask := r.Header.Get("X-Goog-FieldMask")
		if !strings.Contains(mask, "places.id") || !strings.Contains(mask, "nextPageToken") {
			t.Errorf("field mask = %q", mask)
		}

		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decoding request body: %v", err)
		}
		if body["textQuery"] != "restaurant in Taipei City" {
			t.Errorf("textQuery = %v", body["textQuery"])
		}
		if body["pageSize"] != float64(20) {
			t.Errorf("pageSize = %v", body["pageSize"])
		}
		if _, ok := body["locationRestriction"]; !ok {
			t.Error("expected locationRestriction for a bounded cell")
		}
		if _, ok := body["locationBias"]; ok {
			t.Error("bounded cell must not carry locationBias")
		}

		w.Write([]byte(`{
			"places": [
				{"id": "abc", "displayName": {"text": "Din Tai Fung"},
				 "location": {"latitude": 25.03, "longitude": 121.53},
				 "rating": 4.7},
				{"name": "places/xyz", "displayName": {"text": "No Stable ID"}}
			],
			"nextPageToken": "tok-2"
		}`))
	}))
	defer srv.Close()

	bounds := model.BoundingBox{
		SW: model.GeoPoint{Lat: 24.9, Lng: 121.4},
		NE: model.GeoPoint{Lat: 25.2, Lng: 121.7},
	}
	page, err := clientForTest(srv).Search(context.Background(), Query{
		Text:      "restaurant in Taipei City",
		Bounds:    &bounds,
		FieldMask: []string{"id", "displayName", "location", "rating"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if page.NextPageToken != "tok-2" {
		t.Errorf("NextPageToken = %q", page.NextPageToken)
	}
	if len(page.Places) != 2 {
		t.Fatalf("got %d places, want 2", len(page.Places))
	}

	first := page.Places[0]
	if first.Identity() != "abc" || first.DisplayName != "Din Tai Fung" {
		t.Errorf("first place = %+v", first)
	}
	if first.Location == nil || first.Location.Lat != 25.03 {
		t.Errorf("first place location = %+v", first.Location)
	}
	if first.Attributes["rating"] != 4.7 {
		t.Errorf("rating attribute = %v", first.Attributes["rating"])
	}

	second := page.Places[1]
	if second.Identity() != "xyz" {
		t.Errorf("resource-name fallback identity = %q", second.Identity())
	}
	if second.Location != nil {
		t.Errorf("second place should have no coordinate, got %+v", second.Location)
	}
}

func TestSearchUnboundedUsesCircleBias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bias, ok := body["locationBias"].(map[string]any)
		if !ok {
			t.Fatal("expected locationBias for an unbounded query")
		}
		circle := bias["circle"].(map[string]any)
		if circle["radius"] != float64(20000) {
			t.Errorf("radius = %v", circle["radius"])
		}
		if body["pageToken"] != "tok-1" {
			t.Errorf("pageToken = %v", body["pageToken"])
		}
		if body["languageCode"] != "en" || body["regionCode"] != "TW" {
			t.Errorf("language/region = %v/%v", body["languageCode"], body["regionCode"])
		}
		if body["includedType"] != "restaurant" {
			t.Errorf("includedType = %v", body["includedType"])
		}
		w.Write([]byte(`{"places": []}`))
	}))
	defer srv.Close()

	page, err := clientForTest(srv).Search(context.Background(), Query{
		Text:         "restaurant in Taipei City",
		Center:       model.GeoPoint{Lat: 25.03, Lng: 121.56},
		RadiusMeters: 20000,
		PageToken:    "tok-1",
		LanguageCode: "en",
		RegionCode:   "TW",
		IncludedType: "restaurant",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Places) != 0 || page.NextPageToken != "" {
		t.Errorf("page = %+v", page)
	}
}

func TestSearchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := clientForTest(srv).Search(context.Background(), Query{Text: "x"})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}
}

func TestSearchAPIErrorMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"Places API (New) has not been used in this project","status":"PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	_, err := clientForTest(srv).Search(context.Background(), Query{Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "places API 403") ||
		!strings.Contains(err.Error(), "has not been used") {
		t.Errorf("error = %q", err.Error())
	}
}
