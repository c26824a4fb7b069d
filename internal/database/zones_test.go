package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/zonewarden/server/internal/geometry"
	"github.com/zonewarden/server/internal/testutil"
)

type fakeScanner struct {
	id   int64
	name sql.NullString
	geom sql.NullString
	err  error
}

func (f fakeScanner) Scan(dest ...interface{}) error {
	if f.err != nil {
		return f.err
	}
	*dest[0].(*int64) = f.id
	*dest[1].(*sql.NullString) = f.name
	*dest[2].(*sql.NullString) = f.geom
	return nil
}

func TestScanZone(t *testing.T) {
	tests := []struct {
		name     string
		scanner  fakeScanner
		kind     geometry.Kind
		vertices int
	}{
		{
			name: "geojson document",
			scanner: fakeScanner{id: 4, name: sql.NullString{String: "Market", Valid: true},
				geom: sql.NullString{String: testutil.SquareGeoJSON(0, 0, 2), Valid: true}},
			kind:     geometry.KindGeoJSON,
			vertices: 4,
		},
		{
			name: "jsonb string wrapping a vertex array",
			scanner: fakeScanner{id: 5, name: sql.NullString{String: "Docks", Valid: true},
				geom: sql.NullString{String: `"[{\"lat\":0,\"lng\":0},{\"lat\":0,\"lng\":1},{\"lat\":1,\"lng\":1}]"`, Valid: true}},
			kind:     geometry.KindText,
			vertices: 3,
		},
		{
			name:     "null geometry",
			scanner:  fakeScanner{id: 6, name: sql.NullString{String: "Empty", Valid: true}},
			kind:     geometry.KindNone,
			vertices: 0,
		},
		{
			name: "garbage text",
			scanner: fakeScanner{id: 7, name: sql.NullString{String: "Broken", Valid: true},
				geom: sql.NullString{String: "not json", Valid: true}},
			kind:     geometry.KindUnknown,
			vertices: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zone, err := scanZone(tt.scanner)
			if err != nil {
				t.Fatalf("scanZone failed: %v", err)
			}
			if zone.ID != geometry.ZoneIDFromInt(tt.scanner.id) {
				t.Errorf("ID = %q", zone.ID)
			}
			if zone.Name != tt.scanner.name.String {
				t.Errorf("Name = %q", zone.Name)
			}
			if zone.Geometry.Kind() != tt.kind {
				t.Errorf("Kind() = %v, expected %v", zone.Geometry.Kind(), tt.kind)
			}
			if got := len(zone.Geometry.Vertices()); got != tt.vertices {
				t.Errorf("vertices = %d, expected %d", got, tt.vertices)
			}
		})
	}
}

func TestScanZone_PropagatesError(t *testing.T) {
	if _, err := scanZone(fakeScanner{err: sql.ErrNoRows}); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestClassifyError(t *testing.T) {
	missing := classifyError("list", &pq.Error{Code: "42P01", Message: `relation "x" does not exist`})
	if !errors.Is(missing, ErrZonesTableMissing) {
		t.Errorf("expected ErrZonesTableMissing, got %v", missing)
	}
	other := classifyError("list", sql.ErrConnDone)
	if !errors.Is(other, sql.ErrConnDone) {
		t.Errorf("expected wrapped driver error, got %v", other)
	}
}

func TestNewZoneStorage_DefaultTable(t *testing.T) {
	if got := NewZoneStorage(nil, "  ", nil).Table(); got != DefaultZonesTable {
		t.Errorf("Table() = %q, expected %q", got, DefaultZonesTable)
	}
	if got := NewZoneStorage(nil, "zones_v2", nil).Table(); got != "zones_v2" {
		t.Errorf("Table() = %q", got)
	}
}

func TestZoneStorage_ListActiveZones(t *testing.T) {
	db := testutil.SetupTestDB(t)
	table := "zones_list_test"
	testutil.CreateZonesTable(t, db, table)

	a := testutil.InsertZone(t, db, table, "A", testutil.SquareGeoJSON(0, 0, 2), true)
	testutil.InsertZone(t, db, table, "Retired", testutil.SquareGeoJSON(0, 0, 2), false)
	b := testutil.InsertZone(t, db, table, "B", `[{"lat":1,"lng":1},{"lat":1,"lng":3},{"lat":3,"lng":3},{"lat":3,"lng":1}]`, true)
	testutil.InsertZone(t, db, table, "NoShape", "", true)

	storage := NewZoneStorage(db, table, nil)
	zones, err := storage.ListActiveZones(context.Background())
	if err != nil {
		t.Fatalf("ListActiveZones failed: %v", err)
	}
	if len(zones) != 3 {
		t.Fatalf("expected 3 active zones, got %d", len(zones))
	}
	if zones[0].ID != geometry.ZoneIDFromInt(a) || zones[1].ID != geometry.ZoneIDFromInt(b) {
		t.Errorf("unexpected order: %v, %v", zones[0].ID, zones[1].ID)
	}
	if !zones[0].Geometry.Usable() || !zones[1].Geometry.Usable() {
		t.Errorf("expected usable geometry for A and B")
	}
	if zones[2].Geometry.Usable() {
		t.Errorf("expected NoShape to be degenerate")
	}

	overlaps := geometry.FindOverlappingZones(testutil.Square(0.5, 0.5, 1), zones, geometry.ZoneIDFromInt(b))
	if len(overlaps) != 1 || overlaps[0].Name != "A" {
		t.Errorf("expected only A to overlap, got %v", overlaps)
	}

	count, err := storage.CountActiveZones(context.Background())
	if err != nil {
		t.Fatalf("CountActiveZones failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}
}

func TestZoneStorage_GetZoneByID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	table := "zones_get_test"
	testutil.CreateZonesTable(t, db, table)

	a := testutil.InsertZone(t, db, table, "A", testutil.SquareGeoJSON(0, 0, 2), true)
	retired := testutil.InsertZone(t, db, table, "Retired", testutil.SquareGeoJSON(5, 5, 2), false)

	storage := NewZoneStorage(db, table, nil)
	zone, err := storage.GetZoneByID(context.Background(), a)
	if err != nil {
		t.Fatalf("GetZoneByID failed: %v", err)
	}
	if zone.Name != "A" {
		t.Errorf("Name = %q", zone.Name)
	}
	old, err := storage.GetZoneByID(context.Background(), retired)
	if err != nil {
		t.Fatalf("GetZoneByID(retired) failed: %v", err)
	}
	if old.Name != "Retired" || !old.Geometry.Usable() {
		t.Errorf("unexpected retired zone: %+v", old)
	}
	if _, err := storage.GetZoneByID(context.Background(), 9999); !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("expected ErrZoneNotFound, got %v", err)
	}
}

func TestZoneStorage_MissingTable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	storage := NewZoneStorage(db, "zones_that_do_not_exist", nil)
	if _, err := storage.ListActiveZones(context.Background()); !errors.Is(err, ErrZonesTableMissing) {
		t.Errorf("expected ErrZonesTableMissing, got %v", err)
	}
}
