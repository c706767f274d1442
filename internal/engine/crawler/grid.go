package crawler

import (
	"github.com/serabi/poiscout/internal/engine/geo"
	"github.com/serabi/poiscout/internal/model"
)

const (
	// saturationThreshold is the raw per-cell result count at which the API's
	// practical per-query cap is presumed reached and the cell may be hiding
	// undiscovered POIs behind it.
	saturationThreshold = 60

	// maxRefinementDepth bounds subdivision: 1 -> 2x2 -> ... -> 32x32.
	maxRefinementDepth = 5
)

// Grid owns the FIFO cell work queue and the refine-on-saturation policy.
// Cells are consumed in enqueue order, so all depth-d cells drain before
// their children (breadth-first, subject to dynamic additions).
type Grid struct {
	queue    []model.GridCell
	boundary *geo.Boundary
}

// NewGrid creates an empty queue gated by the optional boundary polygon
// (nil means no geofence: every cell passes).
func NewGrid(boundary *geo.Boundary) *Grid {
	return &Grid{boundary: boundary}
}

// Seed enqueues the root cell, subject to the boundary gate. The unbounded
// sentinel always passes.
func (g *Grid) Seed(cell model.GridCell) bool {
	if !cell.Unbounded() && !g.intersects(*cell.Bounds) {
		return false
	}
	g.queue = append(g.queue, cell)
	return true
}

// Pop dequeues the next cell in FIFO order.
func (g *Grid) Pop() (model.GridCell, bool) {
	if len(g.queue) == 0 {
		return model.GridCell{}, false
	}
	cell := g.queue[0]
	g.queue = g.queue[1:]
	return cell, true
}

// Len returns the number of queued cells.
func (g *Grid) Len() int { return len(g.queue) }

// Refine applies the refine-on-saturation policy after a cell's pagination
// ended. rawCount is the API's raw result count for the cell before
// deduplication: a cell whose novel hits were mostly duplicates of a sibling
// has still saturated the API and must still split. Returns how many children
// were enqueued (0 when the policy declined).
func (g *Grid) Refine(cell model.GridCell, rawCount int) int {
	if rawCount < saturationThreshold || cell.Unbounded() {
		return 0
	}
	if cell.Depth >= maxRefinementDepth || !geo.CellLargeEnough(*cell.Bounds) {
		return 0
	}

	enqueued := 0
	for _, child := range geo.Subdivide(*cell.Bounds) {
		if !g.intersects(child) {
			continue
		}
		child := child
		g.queue = append(g.queue, model.GridCell{Bounds: &child, Depth: cell.Depth + 1})
		enqueued++
	}
	return enqueued
}

func (g *Grid) intersects(b model.BoundingBox) bool {
	return g.boundary == nil || g.boundary.IntersectsCell(b)
}
