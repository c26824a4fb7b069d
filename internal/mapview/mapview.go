// Package mapview renders overlap results as GeoJSON for map clients.
package mapview

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/zonewarden/server/internal/geometry"
)

// Feature roles written to the "role" property.
const (
	RoleCandidate = "candidate"
	RoleConflict  = "conflict"
)

// Ring converts a canonical polygon to a closed orb ring of [lng, lat]
// points.
func Ring(poly geometry.Polygon) orb.Ring {
	closed := poly.Closed()
	ring := make(orb.Ring, 0, len(closed))
	for _, v := range closed {
		ring = append(ring, orb.Point{v.Lng, v.Lat})
	}
	return ring
}

// Feature builds a polygon feature for poly. ok is false when poly has fewer
// than three vertices.
func Feature(poly geometry.Polygon) (*geojson.Feature, bool) {
	if !poly.Usable() {
		return nil, false
	}
	shape := orb.Polygon{Ring(poly)}
	f := geojson.NewFeature(shape)
	f.BBox = geojson.NewBBox(shape.Bound())
	f.Properties["area"] = math.Abs(planar.Area(shape))
	return f, true
}

// Build returns a FeatureCollection holding the candidate polygon followed by
// one feature per conflicting zone, in the order given. Conflicting zones
// without usable geometry are left out.
func Build(candidate geometry.Polygon, conflicts []geometry.Zone) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	var bound orb.Bound
	haveBound := false

	add := func(f *geojson.Feature) {
		fc.Append(f)
		b := f.Geometry.Bound()
		if !haveBound {
			bound, haveBound = b, true
			return
		}
		bound = bound.Union(b)
	}

	if f, ok := Feature(candidate); ok {
		f.Properties["role"] = RoleCandidate
		add(f)
	}
	for _, zone := range conflicts {
		f, ok := Feature(zone.Geometry.Vertices())
		if !ok {
			continue
		}
		f.ID = string(zone.ID)
		f.Properties["role"] = RoleConflict
		f.Properties["id"] = string(zone.ID)
		f.Properties["name"] = zone.Name
		add(f)
	}

	if haveBound {
		fc.BBox = geojson.NewBBox(bound)
	}
	return fc
}
