package geometry

// MinPolygonVertices is the smallest vertex count a polygon needs before it
// takes part in overlap testing.
const MinPolygonVertices = 3

// Vertex is a planar map coordinate. Lat is treated as the Y axis and Lng as
// the X axis; no geodesic correction is applied.
type Vertex struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Polygon is an implicitly closed ring: the last vertex connects back to the
// first and is never repeated.
type Polygon []Vertex

// Usable reports whether the polygon has enough vertices to enclose an area.
func (p Polygon) Usable() bool {
	return len(p) >= MinPolygonVertices
}

// Edge returns the i-th edge, wrapping around to the first vertex.
func (p Polygon) Edge(i int) (Vertex, Vertex) {
	n := len(p)
	return p[i%n], p[(i+1)%n]
}

// Bounds returns the axis-aligned bounding box of the polygon.
// An empty polygon yields the zero box.
func (p Polygon) Bounds() (min, max Vertex) {
	if len(p) == 0 {
		return Vertex{}, Vertex{}
	}
	min, max = p[0], p[0]
	for _, v := range p[1:] {
		if v.Lat < min.Lat {
			min.Lat = v.Lat
		}
		if v.Lat > max.Lat {
			max.Lat = v.Lat
		}
		if v.Lng < min.Lng {
			min.Lng = v.Lng
		}
		if v.Lng > max.Lng {
			max.Lng = v.Lng
		}
	}
	return min, max
}

// Closed returns a copy of the ring with the first vertex appended, the form
// GeoJSON expects.
func (p Polygon) Closed() Polygon {
	if len(p) == 0 {
		return Polygon{}
	}
	ring := make(Polygon, 0, len(p)+1)
	ring = append(ring, p...)
	return append(ring, p[0])
}

// dedupClosingVertex drops an explicit closing vertex that repeats the first.
func dedupClosingVertex(vertices []Vertex) []Vertex {
	n := len(vertices)
	if n >= 2 && vertices[0] == vertices[n-1] {
		return vertices[:n-1]
	}
	return vertices
}
