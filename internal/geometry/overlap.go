package geometry

// Zone is a caller-supplied commercial zone snapshot.
type Zone struct {
	ID       ZoneID  `json:"id"`
	Name     string  `json:"name"`
	Geometry Payload `json:"geometry"`
}

// ZoneRef identifies a zone in overlap results.
type ZoneRef struct {
	ID   ZoneID `json:"id"`
	Name string `json:"name"`
}

// Ref returns the identifying part of the zone.
func (z Zone) Ref() ZoneRef {
	return ZoneRef{ID: z.ID, Name: z.Name}
}

// Report is the full outcome of one overlap scan.
type Report struct {
	// Overlaps lists the zones that intersect the candidate, in input order.
	Overlaps []ZoneRef
	// Positions holds the input index of each entry in Overlaps.
	Positions []int
	// Degenerate lists zones skipped because their geometry did not resolve
	// to at least three vertices.
	Degenerate []ZoneRef
	// Excluded counts zones skipped by identifier.
	Excluded int
	// Checked counts zones that went through the polygon test.
	Checked int
	// CandidateUsable is false when the candidate had fewer than three
	// vertices; nothing else was examined in that case.
	CandidateUsable bool
}

// FindOverlappingZones returns the zones whose geometry overlaps the
// candidate polygon. A zone whose ID equals exclude is ignored; an empty
// exclude ignores nothing. An incomplete candidate (fewer than three
// vertices) never overlaps anything, so a zone still being drawn can be
// saved without warnings.
func FindOverlappingZones(candidate any, zones []Zone, exclude ZoneID) []ZoneRef {
	return Evaluate(candidate, zones, exclude).Overlaps
}

// Evaluate runs the same scan as FindOverlappingZones and also reports which
// zones were skipped.
func Evaluate(candidate any, zones []Zone, exclude ZoneID) Report {
	report := Report{
		Overlaps:   []ZoneRef{},
		Positions:  []int{},
		Degenerate: []ZoneRef{},
	}

	poly := ParsePolygon(candidate)
	if !poly.Usable() {
		return report
	}
	report.CandidateUsable = true

	for i, zone := range zones {
		if exclude != "" && zone.ID == exclude {
			report.Excluded++
			continue
		}
		other := zone.Geometry.vertices
		if !other.Usable() {
			report.Degenerate = append(report.Degenerate, zone.Ref())
			continue
		}
		report.Checked++
		if PolygonsOverlap(poly, other) {
			report.Overlaps = append(report.Overlaps, zone.Ref())
			report.Positions = append(report.Positions, i)
		}
	}
	return report
}

// PolygonsOverlap reports whether two simple polygons share any area or
// boundary crossing. Either polygon having fewer than three vertices yields
// false. The test is symmetric in its arguments.
func PolygonsOverlap(a, b []Vertex) bool {
	if len(a) < MinPolygonVertices || len(b) < MinPolygonVertices {
		return false
	}

	for i := range a {
		a1, a2 := a[i], a[(i+1)%len(a)]
		for j := range b {
			b1, b2 := b[j], b[(j+1)%len(b)]
			if SegmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}

	// No crossing edges: one polygon may still sit entirely inside the other.
	return PointInPolygon(a[0], b) || PointInPolygon(b[0], a)
}

// SegmentsIntersect reports whether segment p1-p2 crosses segment p3-p4.
func SegmentsIntersect(p1, p2, p3, p4 Vertex) bool {
	return ccw(p1, p3, p4) != ccw(p2, p3, p4) && ccw(p1, p2, p3) != ccw(p1, p2, p4)
}

// PointInPolygon applies the even-odd rule with a ray cast towards
// increasing Lng. Results for points exactly on the boundary, and for
// self-intersecting polygons, are unspecified.
func PointInPolygon(p Vertex, poly []Vertex) bool {
	n := len(poly)
	if n < MinPolygonVertices {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := poly[i], poly[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) {
			lngAtLat := vi.Lng + (p.Lat-vi.Lat)*(vj.Lng-vi.Lng)/(vj.Lat-vi.Lat)
			if p.Lng < lngAtLat {
				inside = !inside
			}
		}
	}
	return inside
}

// ccw reports whether a, b, c turn counter-clockwise.
func ccw(a, b, c Vertex) bool {
	return orientation(a, b, c) > 0
}

// orientation returns the signed doubled area of triangle abc. The cross
// product is always computed over the same ordering of the three points, so
// any permutation of the arguments yields exactly the same magnitude.
func orientation(a, b, c Vertex) float64 {
	negate := false
	if less(b, a) {
		a, b = b, a
		negate = !negate
	}
	if less(c, b) {
		b, c = c, b
		negate = !negate
		if less(b, a) {
			a, b = b, a
			negate = !negate
		}
	}
	d := (b.Lng-a.Lng)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lng-a.Lng)
	if negate {
		return -d
	}
	return d
}

func less(a, b Vertex) bool {
	if a.Lng != b.Lng {
		return a.Lng < b.Lng
	}
	return a.Lat < b.Lat
}
