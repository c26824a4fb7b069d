// Package zoneindex keeps zone bounding boxes in an R-tree so that
// all-pairs overlap scans only polygon-test zones whose boxes meet.
package zoneindex

import (
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/zonewarden/server/internal/geometry"
)

const (
	dimensions = 2
	minEntries = 25
	maxEntries = 50
	// relativePad widens every box so that boxes which only touch still
	// intersect in the tree. The tree treats shared edges as disjoint.
	relativePad = 1e-9
)

// entry wraps one zone for R-tree storage.
type entry struct {
	position int
	polygon  geometry.Polygon
	bbox     rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *entry) Bounds() rtreego.Rect {
	return e.bbox
}

// Index is an immutable spatial index over a zone snapshot.
type Index struct {
	tree       *rtreego.Rtree
	entries    []*entry
	byPosition map[int]*entry
	degenerate []int
}

// New indexes zones. Zones whose geometry does not resolve to a usable
// polygon are left out and reported by Degenerate.
func New(zones []geometry.Zone) *Index {
	idx := &Index{
		tree:       rtreego.NewTree(dimensions, minEntries, maxEntries),
		byPosition: make(map[int]*entry),
		degenerate: []int{},
	}
	for i, zone := range zones {
		poly := zone.Geometry.Vertices()
		bbox, ok := boundingBox(poly)
		if !ok {
			idx.degenerate = append(idx.degenerate, i)
			continue
		}
		e := &entry{position: i, polygon: poly, bbox: bbox}
		idx.entries = append(idx.entries, e)
		idx.byPosition[i] = e
		idx.tree.Insert(e)
	}
	return idx
}

// Len returns the number of indexed zones.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Degenerate returns the input positions of zones that were not indexed.
func (idx *Index) Degenerate() []int {
	out := make([]int, len(idx.degenerate))
	copy(out, idx.degenerate)
	return out
}

// Candidates returns, in ascending order, the input positions of indexed
// zones whose bounding box meets the bounding box of poly. The result is a
// superset of the zones that actually overlap poly.
func (idx *Index) Candidates(poly geometry.Polygon) []int {
	bbox, ok := boundingBox(poly)
	if !ok {
		return []int{}
	}
	results := idx.tree.SearchIntersect(bbox)
	positions := make([]int, 0, len(results))
	for _, item := range results {
		positions = append(positions, item.(*entry).position)
	}
	sort.Ints(positions)
	return positions
}

// Pairs returns every pair (i, j), i < j, of indexed zones whose polygons
// overlap, ordered by i then j.
func (idx *Index) Pairs() [][2]int {
	pairs := [][2]int{}
	// entries are appended in input order
	for _, e := range idx.entries {
		for _, j := range idx.Candidates(e.polygon) {
			if j <= e.position {
				continue
			}
			if geometry.PolygonsOverlap(e.polygon, idx.byPosition[j].polygon) {
				pairs = append(pairs, [2]int{e.position, j})
			}
		}
	}
	return pairs
}

// boundingBox converts a polygon's extent to a padded R-tree rectangle.
// Lng maps to the first axis and Lat to the second.
func boundingBox(poly geometry.Polygon) (rtreego.Rect, bool) {
	if !poly.Usable() {
		return rtreego.Rect{}, false
	}
	lo, hi := poly.Bounds()
	scale := math.Max(math.Max(math.Abs(lo.Lat), math.Abs(hi.Lat)), math.Max(math.Abs(lo.Lng), math.Abs(hi.Lng)))
	pad := relativePad * (1 + scale)

	rect, err := rtreego.NewRect(
		rtreego.Point{lo.Lng - pad, lo.Lat - pad},
		[]float64{hi.Lng - lo.Lng + 2*pad, hi.Lat - lo.Lat + 2*pad},
	)
	if err != nil {
		return rtreego.Rect{}, false
	}
	return rect, true
}
