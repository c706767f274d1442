package crawler

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/serabi/poiscout/internal/engine/geo"
	"github.com/serabi/poiscout/internal/engine/places"
	"github.com/serabi/poiscout/internal/model"
)

const (
	// biasRadiusMeters is the circular search radius around the center when
	// the geocoder returned no usable viewport.
	biasRadiusMeters = 20000

	// Fixed delays keep the request rate within provider policies without a
	// separate rate-limiter component.
	defaultPageDelay = 300 * time.Millisecond
	defaultCellDelay = 500 * time.Millisecond
)

// Geocoder resolves location text to a center point and optional viewport.
type Geocoder interface {
	Resolve(ctx context.Context, location, language string) (geo.GeocodeResult, error)
}

// BoundaryProvider fetches a precise administrative polygon for a location.
// (nil, nil) means no polygon is available; any error is non-fatal.
type BoundaryProvider interface {
	Fetch(ctx context.Context, location string) (orb.Geometry, error)
}

// PlacesSearcher runs one bounded text-search query page.
type PlacesSearcher interface {
	Search(ctx context.Context, q places.Query) (places.Page, error)
}

// Engine runs the adaptive spatial crawl: geocode, optional boundary fetch,
// breadth-first grid search with refine-on-saturation, final filtering.
// All cell and page processing is strictly sequential.
type Engine struct {
	Geocoder Geocoder
	Boundary BoundaryProvider
	Search   PlacesSearcher
	APIKey   string
	Logger   *log.Logger

	PageDelay time.Duration
	CellDelay time.Duration
}

// NewEngine wires the engine to the real Google and OSM clients.
func NewEngine(apiKey string, logger *log.Logger) *Engine {
	return &Engine{
		Geocoder:  geo.NewGoogleGeocoder(apiKey),
		Boundary:  geo.NewNominatimClient(),
		Search:    places.NewClient(apiKey),
		APIKey:    apiKey,
		Logger:    logger,
		PageDelay: defaultPageDelay,
		CellDelay: defaultCellDelay,
	}
}

// Run executes one crawl. It never panics or returns an error: every failure
// is reflected in the result's Status and Errors, and fatal failures yield a
// well-formed empty result.
func (e *Engine) Run(ctx context.Context, req model.CrawlRequest, sink ProgressSink) model.CrawlResult {
	if sink == nil {
		sink = NopSink{}
	}
	logger := e.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	var errs []string
	record := func(msg string) {
		errs = append(errs, msg)
		sink.Log(msg)
		logger.Printf("ERROR %s", msg)
	}
	fatal := func(msg string) model.CrawlResult {
		sink.Status(StatusLabelError, msg, 0)
		return model.CrawlResult{Status: model.StatusError, Errors: errs}
	}

	keywords := strings.TrimSpace(req.Keywords)
	location := strings.TrimSpace(req.Location)
	switch {
	case keywords == "":
		return fatal("Keywords are required.")
	case location == "":
		return fatal("Location is required.")
	case e.APIKey == "":
		return fatal("API key is missing. Set GOOGLE_PLACES_API_KEY or config.json.")
	}

	logger.Printf("CRAWL start keywords=%q location=%q max_pages=%d max_results=%d",
		keywords, location, req.ClampedMaxPages(), req.MaxResults)

	sink.Status(StatusLabelStatus, "Geocoding...", 0)
	geocoded, err := e.Geocoder.Resolve(ctx, location, req.LanguageCode)
	if err != nil {
		record(err.Error())
		return fatal("Geocode failed. " + err.Error())
	}
	center := geocoded.Center

	// A viewport only counts when it spans a real area; point-like results
	// carry a degenerate one.
	useBounds := geocoded.Viewport != nil && geo.UsableViewport(*geocoded.Viewport)
	var searchBounds *model.BoundingBox
	if useBounds {
		b := geocoded.Viewport.Normalized()
		searchBounds = &b
	}

	var boundary *geo.Boundary
	var boundaryGeom orb.Geometry
	if useBounds {
		sink.Status(StatusLabelStatus, "Fetching boundary...", 0)
		geom, err := e.Boundary.Fetch(ctx, location)
		switch {
		case err != nil:
			// Non-fatal: fall back to the rectangular viewport.
			logger.Printf("BOUNDARY fallback to viewport: %v", err)
		case geom != nil:
			b, err := geo.NewBoundary(geom)
			if err != nil {
				logger.Printf("BOUNDARY unusable geometry: %v", err)
				break
			}
			boundary = b
			boundaryGeom = geom
			// The polygon's own bounding rectangle is tighter than the viewport.
			bb := b.Bound()
			searchBounds = &bb
			sink.Status(StatusLabelStatus, "Using geo boundary (irregular shape).", 0)
		}
	}

	textQuery := keywords + " in " + location
	grid := NewGrid(boundary)
	if useBounds {
		grid.Seed(model.GridCell{Bounds: searchBounds})
		sink.Status(StatusLabelStatus, "Starting with 1 coarse cell (will refine if needed).", 0)
	} else {
		grid.Seed(model.GridCell{}) // unbounded sentinel: circle bias around center
	}

	dedup := NewDeduplicator()
	result := model.CrawlResult{Center: center, Boundary: boundaryGeom}
	totalCells := 0
	cellsRefined := 0

	for {
		if err := ctx.Err(); err != nil {
			record("Crawl canceled: " + err.Error())
			break
		}
		if req.MaxResults > 0 && dedup.Count() >= req.MaxResults {
			break
		}
		cell, ok := grid.Pop()
		if !ok {
			break
		}
		if !cell.Unbounded() {
			result.Cells = append(result.Cells, cell)
		}
		totalCells++
		sink.Status(StatusLabelStatus,
			fmt.Sprintf("Cell #%d (depth %d)... %d places.", totalCells, cell.Depth, dedup.Count()),
			dedup.Count())

		rawCount := e.searchCell(ctx, textQuery, center, cell, req, dedup, sink, record)

		if n := grid.Refine(cell, rawCount); n > 0 {
			cellsRefined++
			sink.Status(StatusLabelStatus,
				fmt.Sprintf("Refining cell (API returned %d) -> %d sub-cells queued.", rawCount, n),
				dedup.Count())
		}

		time.Sleep(e.CellDelay)
	}

	if cellsRefined > 0 {
		sink.Status(StatusLabelStatus,
			fmt.Sprintf("Done. %d places from %d cells (%d refined).", dedup.Count(), totalCells, cellsRefined),
			dedup.Count())
	}

	result.Places = finalize(dedup.Places(), boundary, sink)
	result.Errors = errs

	logger.Printf("CRAWL done places=%d cells=%d refined=%d errors=%d",
		len(result.Places), totalCells, cellsRefined, len(errs))

	if len(result.Places) == 0 {
		if len(errs) == 0 {
			diag := "Places API returned 0 results. In Google Cloud enable 'Places API (New)' " +
				"(not the legacy Places API) and ensure the API key has access."
			record(diag)
			result.Errors = errs
		}
		result.Status = model.StatusEmpty
		sink.Status(StatusLabelDone, "No places.", 0)
		return result
	}

	result.Status = model.StatusDone
	sink.Status(StatusLabelDone, fmt.Sprintf("Found %d places.", len(result.Places)), len(result.Places))
	return result
}

// searchCell paginates the search API for one cell, feeding every raw result
// to the deduplicator. Returns the raw (pre-dedup) result count, which drives
// the refinement decision. A request error aborts this cell only.
func (e *Engine) searchCell(
	ctx context.Context,
	textQuery string,
	center model.GeoPoint,
	cell model.GridCell,
	req model.CrawlRequest,
	dedup *Deduplicator,
	sink ProgressSink,
	record func(string),
) int {
	maxPages := req.ClampedMaxPages()
	rawCount := 0
	pageToken := ""

	for page := 1; page <= maxPages; page++ {
		pg, err := e.Search.Search(ctx, places.Query{
			Text:         textQuery,
			Center:       center,
			RadiusMeters: biasRadiusMeters,
			Bounds:       cell.Bounds,
			FieldMask:    req.Attributes,
			PageToken:    pageToken,
			LanguageCode: req.LanguageCode,
			RegionCode:   req.RegionCode,
			IncludedType: req.IncludedType,
		})
		if err != nil {
			record(err.Error())
			sink.Status(StatusLabelStatus, "Request error: "+err.Error(), dedup.Count())
			return rawCount
		}

		rawCount += len(pg.Places)
		for _, p := range pg.Places {
			dedup.Offer(p)
			if req.MaxResults > 0 && dedup.Count() >= req.MaxResults {
				return rawCount
			}
		}

		sink.Status(StatusLabelStatus,
			fmt.Sprintf("Page %d... %d places.", page, dedup.Count()), dedup.Count())

		if pg.NextPageToken == "" {
			return rawCount
		}
		pageToken = pg.NextPageToken
		time.Sleep(e.PageDelay)
		if ctx.Err() != nil {
			return rawCount
		}
	}
	return rawCount
}

// finalize runs a last idempotent dedup pass and, when a boundary polygon is
// active, drops places whose coordinate falls outside it. Places without a
// coordinate cannot be geofenced and are kept.
func finalize(all []model.Place, boundary *geo.Boundary, sink ProgressSink) []model.Place {
	seen := make(map[string]struct{}, len(all))
	unique := make([]model.Place, 0, len(all))
	for _, p := range all {
		id := p.Identity()
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, p)
	}

	if boundary == nil {
		return unique
	}

	inside := make([]model.Place, 0, len(unique))
	for _, p := range unique {
		if p.Location == nil || boundary.ContainsPoint(*p.Location) {
			inside = append(inside, p)
		}
	}
	if len(inside) < len(unique) {
		sink.Status(StatusLabelStatus,
			fmt.Sprintf("Filtered to %d POIs inside boundary (removed %d outside).",
				len(inside), len(unique)-len(inside)),
			len(inside))
	}
	return inside
}
