package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/serabi/poiscout/internal/model"
)

const (
	// MinCellDegrees stops refinement once a cell's lat or lng span drops
	// below ~300m; prevents infinite subdivision near boundary edges.
	MinCellDegrees = 0.003

	// MinViewportDegrees is the smallest lat/lng span for a geocoder viewport
	// to count as a real area rather than a point-like result.
	MinViewportDegrees = 0.01
)

// Subdivide splits a box into four equal quadrants at its midpoint:
// SW, SE, NW, NE. Child boxes share edges with no gap or overlap.
func Subdivide(b model.BoundingBox) [4]model.BoundingBox {
	midLat := (b.SW.Lat + b.NE.Lat) / 2
	midLng := (b.SW.Lng + b.NE.Lng) / 2
	return [4]model.BoundingBox{
		{SW: b.SW, NE: model.GeoPoint{Lat: midLat, Lng: midLng}},
		{SW: model.GeoPoint{Lat: b.SW.Lat, Lng: midLng}, NE: model.GeoPoint{Lat: midLat, Lng: b.NE.Lng}},
		{SW: model.GeoPoint{Lat: midLat, Lng: b.SW.Lng}, NE: model.GeoPoint{Lat: b.NE.Lat, Lng: midLng}},
		{SW: model.GeoPoint{Lat: midLat, Lng: midLng}, NE: b.NE},
	}
}

// CellLargeEnough reports whether both spans are at least MinCellDegrees.
func CellLargeEnough(b model.BoundingBox) bool {
	return b.LatSpan() >= MinCellDegrees && b.LngSpan() >= MinCellDegrees
}

// UsableViewport reports whether a geocoder viewport covers a real area
// (both spans >= MinViewportDegrees).
func UsableViewport(b model.BoundingBox) bool {
	return b.LatSpan() >= MinViewportDegrees && b.LngSpan() >= MinViewportDegrees
}

// Boundary is a prepared administrative-area polygon: the rings are extracted
// and the outer bound cached once so per-cell tests stay cheap.
type Boundary struct {
	geom  orb.Geometry
	rings []orb.Ring
	bound orb.Bound
}

// NewBoundary prepares a Polygon or MultiPolygon geometry for repeated
// intersection and containment tests.
func NewBoundary(geom orb.Geometry) (*Boundary, error) {
	var rings []orb.Ring
	switch g := geom.(type) {
	case orb.Polygon:
		rings = append(rings, g...)
	case orb.MultiPolygon:
		for _, poly := range g {
			rings = append(rings, poly...)
		}
	default:
		return nil, fmt.Errorf("unsupported boundary geometry %T", geom)
	}
	return &Boundary{geom: geom, rings: rings, bound: geom.Bound()}, nil
}

// Geometry returns the underlying orb geometry.
func (b *Boundary) Geometry() orb.Geometry { return b.geom }

// Bound returns the polygon's own bounding rectangle, typically tighter than
// the geocoder viewport.
func (b *Boundary) Bound() model.BoundingBox {
	return model.BoundingBox{
		SW: model.GeoPoint{Lat: b.bound.Min.Lat(), Lng: b.bound.Min.Lon()},
		NE: model.GeoPoint{Lat: b.bound.Max.Lat(), Lng: b.bound.Max.Lon()},
	}
}

// ContainsPoint reports whether the point lies inside the boundary.
func (b *Boundary) ContainsPoint(p model.GeoPoint) bool {
	pt := orb.Point{p.Lng, p.Lat} // orb.Point is [lng, lat]
	if !b.bound.Contains(pt) {
		return false
	}
	switch g := b.geom.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, pt)
	}
	return false
}

// IntersectsCell reports whether the cell rectangle touches the boundary.
// Simplified polygons can miss very small cells on a pure geometric test, so
// a cell whose centroid lies inside still counts as intersecting.
func (b *Boundary) IntersectsCell(cell model.BoundingBox) bool {
	cellBound := orb.Bound{
		Min: orb.Point{cell.SW.Lng, cell.SW.Lat},
		Max: orb.Point{cell.NE.Lng, cell.NE.Lat},
	}
	if b.bound.Intersects(cellBound) {
		// Any cell corner inside the polygon.
		for _, corner := range []model.GeoPoint{
			cell.SW,
			{Lat: cell.SW.Lat, Lng: cell.NE.Lng},
			{Lat: cell.NE.Lat, Lng: cell.SW.Lng},
			cell.NE,
		} {
			if b.ContainsPoint(corner) {
				return true
			}
		}
		// Any ring vertex inside the cell.
		for _, ring := range b.rings {
			for _, pt := range ring {
				if cellBound.Contains(pt) {
					return true
				}
			}
		}
		// Ring edge crossing the cell without vertices inside either shape.
		if b.ringCrossesRect(cellBound) {
			return true
		}
	}
	return b.ContainsPoint(cell.Center())
}

func (b *Boundary) ringCrossesRect(r orb.Bound) bool {
	corners := [4]orb.Point{
		r.Min,
		{r.Max[0], r.Min[1]},
		r.Max,
		{r.Min[0], r.Max[1]},
	}
	for _, ring := range b.rings {
		for i := 1; i < len(ring); i++ {
			a, c := ring[i-1], ring[i]
			for j := range corners {
				if segmentsIntersect(a, c, corners[j], corners[(j+1)%4]) {
					return true
				}
			}
		}
	}
	return false
}

// segmentsIntersect reports whether segments p1-p2 and p3-p4 intersect,
// using the standard orientation test (collinear overlaps included).
func segmentsIntersect(p1, p2, p3, p4 orb.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return (d1 == 0 && onSegment(p3, p4, p1)) ||
		(d2 == 0 && onSegment(p3, p4, p2)) ||
		(d3 == 0 && onSegment(p1, p2, p3)) ||
		(d4 == 0 && onSegment(p1, p2, p4))
}

func cross(a, b, p orb.Point) float64 {
	return (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return min(a[0], b[0]) <= p[0] && p[0] <= max(a[0], b[0]) &&
		min(a[1], b[1]) <= p[1] && p[1] <= max(a[1], b[1])
}
