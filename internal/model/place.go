package model

import (
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// GeoPoint is a (latitude, longitude) pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox is a rectangle defined by its south-west and north-east corners.
type BoundingBox struct {
	SW GeoPoint `json:"sw"`
	NE GeoPoint `json:"ne"`
}

// Normalized returns the box with SW <= NE componentwise.
func (b BoundingBox) Normalized() BoundingBox {
	if b.SW.Lat > b.NE.Lat {
		b.SW.Lat, b.NE.Lat = b.NE.Lat, b.SW.Lat
	}
	if b.SW.Lng > b.NE.Lng {
		b.SW.Lng, b.NE.Lng = b.NE.Lng, b.SW.Lng
	}
	return b
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.SW.Lat + b.NE.Lat) / 2,
		Lng: (b.SW.Lng + b.NE.Lng) / 2,
	}
}

func (b BoundingBox) LatSpan() float64 { return b.NE.Lat - b.SW.Lat }
func (b BoundingBox) LngSpan() float64 { return b.NE.Lng - b.SW.Lng }

// GridCell is the unit of work for one text-search query sequence.
// A nil Bounds marks the unbounded sentinel cell: a circular bias search
// around the crawl center instead of a rectangle restriction.
type GridCell struct {
	Bounds *BoundingBox `json:"bounds"`
	Depth  int          `json:"depth"`
}

// Unbounded reports whether the cell is the sentinel for a center-biased search.
func (c GridCell) Unbounded() bool { return c.Bounds == nil }

// Place is one POI record. Only Identity and Location are interpreted by the
// crawl engine; Attributes carries the remaining fields exactly as the search
// API returned them.
type Place struct {
	ID           string         `json:"id"`
	ResourceName string         `json:"resource_name"`
	DisplayName  string         `json:"display_name"`
	Location     *GeoPoint      `json:"location"`
	Attributes   map[string]any `json:"attributes"`
}

// Identity returns the stable place ID, falling back to the resource-name
// suffix (the part after "places/"). Empty when neither is set.
func (p Place) Identity() string {
	if p.ID != "" {
		return p.ID
	}
	return strings.TrimPrefix(p.ResourceName, "places/")
}

// CrawlRequest holds one crawl's immutable parameters.
type CrawlRequest struct {
	Keywords     string   `json:"keywords"`
	Location     string   `json:"location"`
	Attributes   []string `json:"attributes"`
	MaxPages     int      `json:"max_pages"`
	MaxResults   int      `json:"max_results"` // 0 = no cap
	LanguageCode string   `json:"language_code"`
	RegionCode   string   `json:"region_code"`
	IncludedType string   `json:"included_type"`
}

// ClampedMaxPages bounds the per-cell page ceiling to [1, 20].
func (r CrawlRequest) ClampedMaxPages() int {
	switch {
	case r.MaxPages < 1:
		return 1
	case r.MaxPages > 20:
		return 20
	default:
		return r.MaxPages
	}
}

// CrawlStatus distinguishes the three terminal outcomes of a crawl.
type CrawlStatus string

const (
	StatusError CrawlStatus = "error" // fatal: bad input or geocode failure
	StatusEmpty CrawlStatus = "empty" // completed, zero places
	StatusDone  CrawlStatus = "done"  // completed with results
)

// CrawlResult is the outcome of one crawl. Places preserve first-seen order
// across cells and pages. Cells lists every searched rectangle for map
// overlays; the unbounded sentinel is never recorded there.
type CrawlResult struct {
	Status   CrawlStatus  `json:"status"`
	Places   []Place      `json:"places"`
	Center   GeoPoint     `json:"center"`
	Cells    []GridCell   `json:"cells"`
	Boundary orb.Geometry `json:"-"`
	Errors   []string     `json:"errors"`
}

// BoundaryGeoJSON encodes the boundary polygon as GeoJSON; empty when the
// crawl ran without one.
func (r CrawlResult) BoundaryGeoJSON() string {
	if r.Boundary == nil {
		return ""
	}
	data, err := geojson.NewGeometry(r.Boundary).MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}
