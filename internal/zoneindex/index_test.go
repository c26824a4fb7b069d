package zoneindex

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/zonewarden/server/internal/geometry"
	"github.com/zonewarden/server/internal/testutil"
)

func bruteForcePairs(zones []geometry.Zone) [][2]int {
	pairs := [][2]int{}
	for i := range zones {
		for j := i + 1; j < len(zones); j++ {
			a, b := zones[i].Geometry.Vertices(), zones[j].Geometry.Vertices()
			if !a.Usable() || !b.Usable() {
				continue
			}
			if geometry.PolygonsOverlap(a, b) {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

func TestIndex_ReferenceSquares(t *testing.T) {
	zones := testutil.NewTestFixtures().ReferenceZones()
	idx := New(zones)

	if idx.Len() != 3 {
		t.Fatalf("Len() = %d, expected 3", idx.Len())
	}
	if got := idx.Candidates(testutil.Square(0, 0, 2)); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("Candidates(A) = %v, expected [0 1]", got)
	}
	if got := idx.Pairs(); !reflect.DeepEqual(got, [][2]int{{0, 1}}) {
		t.Errorf("Pairs() = %v, expected [[0 1]]", got)
	}
}

func TestIndex_TouchingBoxesAreCandidates(t *testing.T) {
	f := testutil.NewTestFixtures()
	zones := []geometry.Zone{
		f.NewZone("left", "Left", testutil.Square(0, 0, 2)),
		f.NewZone("right", "Right", testutil.Square(0, 2, 2)),
	}
	idx := New(zones)
	if got := idx.Candidates(testutil.Square(0, 0, 2)); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Errorf("Candidates() = %v, expected both zones", got)
	}
	if got, want := idx.Pairs(), bruteForcePairs(zones); !reflect.DeepEqual(got, want) {
		t.Errorf("Pairs() = %v, brute force = %v", got, want)
	}
}

func TestIndex_DegenerateZones(t *testing.T) {
	f := testutil.NewTestFixtures()
	zones := []geometry.Zone{
		f.NewZone("line", "Line", []geometry.Vertex{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}),
		f.NewZone("a", "A", testutil.Square(0, 0, 2)),
		{ID: "none", Name: "None"},
		f.NewZone("flat", "Flat", []geometry.Vertex{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 1}, {Lat: 0, Lng: 2}}),
	}
	idx := New(zones)
	if got := idx.Degenerate(); !reflect.DeepEqual(got, []int{0, 2}) {
		t.Errorf("Degenerate() = %v, expected [0 2]", got)
	}
	if idx.Len() != 2 {
		t.Errorf("Len() = %d, expected 2 indexed zones", idx.Len())
	}
	if got := idx.Candidates(geometry.Polygon{{Lat: 0, Lng: 0}}); len(got) != 0 {
		t.Errorf("Candidates(degenerate) = %v, expected none", got)
	}
}

func TestIndex_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := testutil.NewTestFixtures()

	zones := make([]geometry.Zone, 0, 120)
	for i := 0; i < 120; i++ {
		n := 3 + rng.Intn(4)
		lat, lng := rng.Float64()*50, rng.Float64()*50
		poly := make([]geometry.Vertex, n)
		for k := range poly {
			poly[k] = geometry.Vertex{Lat: lat + rng.Float64()*6, Lng: lng + rng.Float64()*6}
		}
		zones = append(zones, f.NewZone(fmt.Sprintf("z%d", i), "", poly))
	}

	got := New(zones).Pairs()
	want := bruteForcePairs(zones)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Pairs() returned %d pairs, brute force %d", len(got), len(want))
	}
	if len(want) == 0 {
		t.Fatalf("fixture should contain at least one overlapping pair")
	}
}
