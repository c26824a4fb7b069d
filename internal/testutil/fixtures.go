package testutil

import (
	"fmt"
	"time"

	"github.com/zonewarden/server/internal/geometry"
)

// TestFixtures provides test data generators
type TestFixtures struct{}

// NewTestFixtures creates a new test fixtures helper
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	seed := time.Now().UnixNano()
	for i := range b {
		seed = seed*1103515245 + 12345 // Simple LCG
		idx := int(seed % int64(len(charset)))
		if idx < 0 {
			idx = -idx
		}
		b[i] = charset[idx]
	}
	return string(b)
}

// RandomZoneName generates a random zone name
func RandomZoneName() string {
	return "Test Zone " + RandomString(6)
}

// Square returns the four corners of an axis-aligned square with its
// south-west corner at (lat, lng).
func Square(lat, lng, size float64) []geometry.Vertex {
	return []geometry.Vertex{
		{Lat: lat, Lng: lng},
		{Lat: lat, Lng: lng + size},
		{Lat: lat + size, Lng: lng + size},
		{Lat: lat + size, Lng: lng},
	}
}

// SquareGeoJSON renders the same square as a closed GeoJSON Polygon with
// [lng, lat] pairs.
func SquareGeoJSON(lat, lng, size float64) string {
	return fmt.Sprintf(
		`{"type":"Polygon","coordinates":[[[%[2]g,%[1]g],[%[4]g,%[1]g],[%[4]g,%[3]g],[%[2]g,%[3]g],[%[2]g,%[1]g]]]}`,
		lat, lng, lat+size, lng+size,
	)
}

// NewZone builds a zone snapshot whose geometry is a vertex array.
func (f *TestFixtures) NewZone(id, name string, vertices []geometry.Vertex) geometry.Zone {
	return geometry.Zone{
		ID:       geometry.ZoneID(id),
		Name:     name,
		Geometry: geometry.NewPayload(vertices),
	}
}

// ReferenceZones returns the three 2x2 squares used across overlap tests:
// A at the origin, B shifted by one so it crosses A, C far away.
func (f *TestFixtures) ReferenceZones() []geometry.Zone {
	return []geometry.Zone{
		f.NewZone("A", "Zone A", Square(0, 0, 2)),
		f.NewZone("B", "Zone B", Square(1, 1, 2)),
		f.NewZone("C", "Zone C", Square(10, 10, 2)),
	}
}
