package places

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/serabi/poiscout/internal/model"
)

const (
	searchBaseURL = "https://places.googleapis.com/v1/places:searchText"

	// pageSize is the Places API maximum per page; results beyond it require
	// repeating the call with the continuation token.
	pageSize = 20
)

// defaultFieldMask is used when the caller requests no attributes.
var defaultFieldMask = []string{"id", "displayName", "formattedAddress", "location"}

// RateLimitError indicates the Places API is throttling us (HTTP 429).
type RateLimitError struct {
	StatusCode int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (status %d). Try again later", e.StatusCode)
}

// Query is one bounded text-search call. When Bounds is set the search is
// restricted to that rectangle; otherwise it is biased to a circle around
// Center with RadiusMeters.
type Query struct {
	Text         string
	Center       model.GeoPoint
	RadiusMeters float64
	Bounds       *model.BoundingBox
	FieldMask    []string
	PageToken    string
	LanguageCode string
	RegionCode   string
	IncludedType string
}

// Page is one page of raw search results plus the continuation token; an
// empty token means no further pages.
type Page struct {
	Places        []model.Place
	NextPageToken string
}

// Client calls the Places API (New) Text Search endpoint.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewClient(apiKey string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		baseURL: searchBaseURL,
		apiKey:  apiKey,
	}
}

// NormalizeFieldMask prefixes each attribute with "places." as the Text
// Search response mask requires and forces nextPageToken into the mask so
// pagination keeps working whatever the caller selected.
func NormalizeFieldMask(fields []string) []string {
	var mask []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, "places.") {
			f = "places." + f
		}
		mask = append(mask, f)
	}
	if len(mask) == 0 {
		for _, f := range defaultFieldMask {
			mask = append(mask, "places."+f)
		}
	}
	for _, m := range mask {
		if m == "nextPageToken" {
			return mask
		}
	}
	return append(mask, "nextPageToken")
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchResponse struct {
	Places        []json.RawMessage `json:"places"`
	NextPageToken string            `json:"nextPageToken"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Search performs one Text Search call and maps the response into Places.
func (c *Client) Search(ctx context.Context, q Query) (Page, error) {
	body := map[string]any{
		"textQuery": q.Text,
		"pageSize":  pageSize,
	}
	if q.Bounds != nil {
		nb := q.Bounds.Normalized()
		body["locationRestriction"] = map[string]any{
			"rectangle": map[string]any{
				"low":  latLng{Latitude: nb.SW.Lat, Longitude: nb.SW.Lng},
				"high": latLng{Latitude: nb.NE.Lat, Longitude: nb.NE.Lng},
			},
		}
	} else {
		body["locationBias"] = map[string]any{
			"circle": map[string]any{
				"center": latLng{Latitude: q.Center.Lat, Longitude: q.Center.Lng},
				"radius": q.RadiusMeters,
			},
		}
	}
	if q.PageToken != "" {
		body["pageToken"] = q.PageToken
	}
	if q.LanguageCode != "" {
		body["languageCode"] = q.LanguageCode
	}
	if q.RegionCode != "" {
		body["regionCode"] = q.RegionCode
	}
	if q.IncludedType != "" {
		body["includedType"] = q.IncludedType
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Page{}, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return Page{}, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	req.Header.Set("X-Goog-FieldMask", strings.Join(NormalizeFieldMask(q.FieldMask), ","))

	resp, err := c.http.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("executing search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return Page{}, &RateLimitError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ae apiError
		msg := ""
		if json.Unmarshal(raw, &ae) == nil {
			msg = ae.Error.Message
			if msg == "" {
				msg = ae.Error.Status
			}
		}
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return Page{}, fmt.Errorf("places API %d: %s", resp.StatusCode, msg)
	}

	var data searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return Page{}, fmt.Errorf("decoding search response: %w", err)
	}

	page := Page{NextPageToken: data.NextPageToken}
	for _, raw := range data.Places {
		p, err := placeFromRaw(raw)
		if err != nil {
			continue
		}
		page.Places = append(page.Places, p)
	}
	return page, nil
}

// placeFromRaw extracts the interpreted fields (identity, display name,
// coordinate) and keeps everything else opaque in Attributes.
func placeFromRaw(raw json.RawMessage) (model.Place, error) {
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return model.Place{}, err
	}

	p := model.Place{Attributes: attrs}
	if id, ok := attrs["id"].(string); ok {
		p.ID = id
	}
	if name, ok := attrs["name"].(string); ok {
		p.ResourceName = name
	}
	if dn, ok := attrs["displayName"].(map[string]any); ok {
		if text, ok := dn["text"].(string); ok {
			p.DisplayName = text
		}
	}
	if loc, ok := attrs["location"].(map[string]any); ok {
		lat, latOK := loc["latitude"].(float64)
		lng, lngOK := loc["longitude"].(float64)
		if latOK && lngOK {
			p.Location = &model.GeoPoint{Lat: lat, Lng: lng}
		}
	}
	return p, nil
}
