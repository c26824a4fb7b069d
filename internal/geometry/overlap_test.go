package geometry

import (
	"math/rand"
	"reflect"
	"testing"
)

var (
	squareA = Polygon{{0, 0}, {0, 2}, {2, 2}, {2, 0}}
	squareB = Polygon{{1, 1}, {1, 3}, {3, 3}, {3, 1}}
	squareC = Polygon{{10, 10}, {10, 12}, {12, 12}, {12, 10}}
)

func zone(id ZoneID, name string, geom any) Zone {
	return Zone{ID: id, Name: name, Geometry: NewPayload(geom)}
}

func TestPolygonsOverlap(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Polygon
		expected bool
	}{
		{"partial overlap", squareA, squareB, true},
		{"disjoint", squareA, squareC, false},
		{"small square nested inside large", square(4, 4, 1), square(0, 0, 10), true},
		{"large square around small", square(0, 0, 10), square(4, 4, 1), true},
		{"identical", squareA, squareA, true},
		{"cross shape without contained vertices", Polygon{{-1, 4}, {-1, 6}, {11, 6}, {11, 4}}, square(0, 0, 10), true},
		{"triangle crossing square", Polygon{{1, -1}, {1, 5}, {5, 1}}, squareA, true},
		{"separated along lng", square(0, 0, 1), square(0, 3, 1), false},
		{"degenerate first", Polygon{{0, 0}, {1, 1}}, squareA, false},
		{"degenerate second", squareA, Polygon{{0, 0}}, false},
		{"both empty", Polygon{}, Polygon{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PolygonsOverlap(tt.a, tt.b); got != tt.expected {
				t.Errorf("PolygonsOverlap(a, b) = %v, expected %v", got, tt.expected)
			}
			if got := PolygonsOverlap(tt.b, tt.a); got != tt.expected {
				t.Errorf("PolygonsOverlap(b, a) = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestPolygonsOverlap_Symmetry(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randomPolygon := func() Polygon {
		n := 3 + rng.Intn(5)
		p := make(Polygon, n)
		for i := range p {
			p[i] = Vertex{Lat: rng.Float64()*20 - 10, Lng: rng.Float64()*20 - 10}
		}
		return p
	}
	for i := 0; i < 500; i++ {
		a, b := randomPolygon(), randomPolygon()
		if PolygonsOverlap(a, b) != PolygonsOverlap(b, a) {
			t.Fatalf("asymmetric result for %v and %v", a, b)
		}
	}
}

func TestSegmentsIntersect(t *testing.T) {
	tests := []struct {
		name           string
		p1, p2, p3, p4 Vertex
		expected       bool
	}{
		{"crossing X", Vertex{0, 0}, Vertex{2, 2}, Vertex{0, 2}, Vertex{2, 0}, true},
		{"parallel", Vertex{0, 0}, Vertex{0, 2}, Vertex{1, 0}, Vertex{1, 2}, false},
		{"disjoint", Vertex{0, 0}, Vertex{1, 1}, Vertex{5, 5}, Vertex{6, 7}, false},
		{"collinear overlapping", Vertex{0, 0}, Vertex{0, 4}, Vertex{0, 1}, Vertex{0, 3}, false},
		{"t shape beyond reach", Vertex{0, 0}, Vertex{0, 4}, Vertex{1, 2}, Vertex{3, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SegmentsIntersect(tt.p1, tt.p2, tt.p3, tt.p4); got != tt.expected {
				t.Errorf("SegmentsIntersect() = %v, expected %v", got, tt.expected)
			}
			if got := SegmentsIntersect(tt.p3, tt.p4, tt.p1, tt.p2); got != tt.expected {
				t.Errorf("SegmentsIntersect() swapped = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestPointInPolygon(t *testing.T) {
	concave := Polygon{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {5, 5}}
	tests := []struct {
		name     string
		p        Vertex
		poly     Polygon
		expected bool
	}{
		{"center of square", Vertex{1, 1}, squareA, true},
		{"outside square", Vertex{3, 3}, squareA, false},
		{"far away", Vertex{-50, 80}, squareA, false},
		{"inside concave body", Vertex{2, 5}, concave, true},
		{"inside concave notch", Vertex{5, 2}, concave, false},
		{"too few vertices", Vertex{0.5, 0.5}, Polygon{{0, 0}, {1, 1}}, false},
		{"empty polygon", Vertex{0, 0}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PointInPolygon(tt.p, tt.poly); got != tt.expected {
				t.Errorf("PointInPolygon() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestFindOverlappingZones(t *testing.T) {
	zones := []Zone{
		zone("b", "Zona B", squareB),
		zone("c", "Zona C", squareC.Closed()),
		zone("big", "Metropolitana", `{"type":"Polygon","coordinates":[[[-5,-5],[5,-5],[5,5],[-5,5],[-5,-5]]]}`),
		zone("broken", "Sin geometria", "not json"),
		zone("line", "Linea", []Vertex{{0, 0}, {1, 1}}),
	}

	got := FindOverlappingZones(squareA, zones, "")
	expected := []ZoneRef{{ID: "b", Name: "Zona B"}, {ID: "big", Name: "Metropolitana"}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("FindOverlappingZones() = %v, expected %v", got, expected)
	}

	// Same inputs, same output.
	if again := FindOverlappingZones(squareA, zones, ""); !reflect.DeepEqual(again, got) {
		t.Errorf("second call returned %v, first %v", again, got)
	}
}

func TestFindOverlappingZones_DegenerateCandidate(t *testing.T) {
	zones := []Zone{
		zone("a", "A", squareA),
		zone("b", "B", squareB),
	}
	candidates := map[string]any{
		"two vertices": []Vertex{{0.5, 0.5}, {1.5, 1.5}},
		"one vertex":   []Vertex{{1, 1}},
		"nil":          nil,
		"garbled":      "{{{",
		"closed pair":  []Vertex{{1, 1}, {1, 2}, {1, 1}},
	}
	for name, candidate := range candidates {
		t.Run(name, func(t *testing.T) {
			got := FindOverlappingZones(candidate, zones, "")
			if got == nil || len(got) != 0 {
				t.Errorf("expected empty result, got %v", got)
			}
		})
	}
}

func TestFindOverlappingZones_SelfExclusion(t *testing.T) {
	candidate := squareA
	zones := []Zone{
		zone("z", "Self", `[{"lat":0,"lng":0},{"lat":0,"lng":2},{"lat":2,"lng":2},{"lat":2,"lng":0}]`),
		zone("c", "Far", squareC),
	}

	if got := FindOverlappingZones(candidate, zones, "z"); len(got) != 0 {
		t.Errorf("expected no overlaps with self excluded, got %v", got)
	}

	got := FindOverlappingZones(candidate, zones, "")
	expected := []ZoneRef{{ID: "z", Name: "Self"}}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("FindOverlappingZones() = %v, expected %v", got, expected)
	}
}

func TestFindOverlappingZones_DoesNotMutateInputs(t *testing.T) {
	candidate := []Vertex{{0, 0}, {0, 2}, {2, 2}, {2, 0}, {0, 0}}
	zones := []Zone{zone("b", "B", squareB), zone("c", "C", squareC)}
	before := append([]Zone(nil), zones...)
	candidateBefore := append([]Vertex(nil), candidate...)

	FindOverlappingZones(candidate, zones, "c")

	if !reflect.DeepEqual(zones, before) {
		t.Errorf("zones were mutated")
	}
	if !reflect.DeepEqual(candidate, candidateBefore) {
		t.Errorf("candidate was mutated")
	}
}

func TestEvaluate_Report(t *testing.T) {
	zones := []Zone{
		zone("self", "Self", squareA),
		zone("b", "B", squareB),
		zone("c", "C", squareC),
		zone("empty", "Empty", nil),
	}
	report := Evaluate(squareA, zones, "self")

	if !report.CandidateUsable {
		t.Fatalf("expected usable candidate")
	}
	if report.Excluded != 1 {
		t.Errorf("Excluded = %d, expected 1", report.Excluded)
	}
	if report.Checked != 2 {
		t.Errorf("Checked = %d, expected 2", report.Checked)
	}
	if !reflect.DeepEqual(report.Degenerate, []ZoneRef{{ID: "empty", Name: "Empty"}}) {
		t.Errorf("Degenerate = %v", report.Degenerate)
	}
	if !reflect.DeepEqual(report.Overlaps, []ZoneRef{{ID: "b", Name: "B"}}) {
		t.Errorf("Overlaps = %v", report.Overlaps)
	}
	if !reflect.DeepEqual(report.Positions, []int{1}) {
		t.Errorf("Positions = %v, expected [1]", report.Positions)
	}

	unusable := Evaluate([]Vertex{{0, 0}}, zones, "")
	if unusable.CandidateUsable || unusable.Checked != 0 {
		t.Errorf("expected nothing examined for degenerate candidate, got %+v", unusable)
	}
}

func TestPolygon_Bounds(t *testing.T) {
	min, max := Polygon{{3, -1}, {-2, 4}, {0, 0}}.Bounds()
	if min != (Vertex{-2, -1}) || max != (Vertex{3, 4}) {
		t.Errorf("Bounds() = %v, %v", min, max)
	}
	if min, max := (Polygon{}).Bounds(); min != (Vertex{}) || max != (Vertex{}) {
		t.Errorf("empty Bounds() = %v, %v", min, max)
	}
}
