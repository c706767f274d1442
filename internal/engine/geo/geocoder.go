package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/serabi/poiscout/internal/model"
)

const geocodeBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GeocodeResult is a resolved location: center coordinate plus the viewport
// rectangle when the geocoder returned one.
type GeocodeResult struct {
	Center   model.GeoPoint
	Viewport *model.BoundingBox
}

// GoogleGeocoder resolves location text through the Google Geocoding API.
type GoogleGeocoder struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{
		http:    &http.Client{Timeout: 15 * time.Second},
		baseURL: geocodeBaseURL,
		apiKey:  apiKey,
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
			Viewport *struct {
				Northeast struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"northeast"`
				Southwest struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"southwest"`
			} `json:"viewport"`
		} `json:"geometry"`
	} `json:"results"`
}

// Resolve geocodes the location text. The returned error carries the API
// status and message when the provider reported a failure reason.
func (g *GoogleGeocoder) Resolve(ctx context.Context, location, language string) (GeocodeResult, error) {
	params := url.Values{
		"address": {location},
		"key":     {g.apiKey},
	}
	if language != "" {
		params.Set("language", language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("building geocode request: %w", err)
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GeocodeResult{}, fmt.Errorf("geocoding returned status %d", resp.StatusCode)
	}

	var data geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return GeocodeResult{}, fmt.Errorf("decoding geocode response: %w", err)
	}

	if data.Status != "OK" || len(data.Results) == 0 {
		msg := data.ErrorMessage
		if msg == "" {
			msg = "no results"
		}
		return GeocodeResult{}, fmt.Errorf("geocoding API %s: %s", data.Status, msg)
	}

	geom := data.Results[0].Geometry
	out := GeocodeResult{
		Center: model.GeoPoint{Lat: geom.Location.Lat, Lng: geom.Location.Lng},
	}
	if vp := geom.Viewport; vp != nil {
		box := model.BoundingBox{
			SW: model.GeoPoint{Lat: vp.Southwest.Lat, Lng: vp.Southwest.Lng},
			NE: model.GeoPoint{Lat: vp.Northeast.Lat, Lng: vp.Northeast.Lng},
		}.Normalized()
		out.Viewport = &box
	}
	return out, nil
}
