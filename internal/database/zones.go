package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/zonewarden/server/internal/geometry"
	"github.com/zonewarden/server/internal/logging"
)

// DefaultZonesTable is the table read when no override is configured.
const DefaultZonesTable = "commercial_zones"

var (
	// ErrZoneNotFound is returned when a requested zone does not exist.
	ErrZoneNotFound = errors.New("zone not found")
	// ErrZonesTableMissing is returned when the configured table is absent.
	ErrZonesTableMissing = errors.New("zones table does not exist")
)

// ZoneStorage reads commercial zone listings. Geometry is stored as text or
// jsonb in whatever shape the editor saved it; decoding happens in the
// geometry package.
type ZoneStorage struct {
	db     *sql.DB
	table  string
	logger logging.Logger
}

// NewZoneStorage creates a new ZoneStorage instance reading from table.
// An empty table name selects DefaultZonesTable.
func NewZoneStorage(db *sql.DB, table string, logger logging.Logger) *ZoneStorage {
	if strings.TrimSpace(table) == "" {
		table = DefaultZonesTable
	}
	if logger == nil {
		logger = logging.Noop()
	}
	return &ZoneStorage{db: db, table: table, logger: logger}
}

// Table returns the table this storage reads from.
func (s *ZoneStorage) Table() string {
	return s.table
}

func (s *ZoneStorage) selectColumns() string {
	return fmt.Sprintf(`SELECT id, name, geometry::text FROM %s`, pq.QuoteIdentifier(s.table))
}

// ListActiveZones returns every active zone ordered by id.
func (s *ZoneStorage) ListActiveZones(ctx context.Context) ([]geometry.Zone, error) {
	query := s.selectColumns() + `
		WHERE active = TRUE
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, classifyError("failed to list active zones", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "failed to close zone rows", logging.Err(closeErr))
		}
	}()
	return collectZones(rows)
}

// GetZoneByID retrieves a single zone, active or not.
func (s *ZoneStorage) GetZoneByID(ctx context.Context, id int64) (*geometry.Zone, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid zone id: %d", id)
	}
	query := s.selectColumns() + ` WHERE id = $1`
	zone, err := scanZone(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrZoneNotFound
	}
	if err != nil {
		return nil, classifyError("failed to get zone", err)
	}
	return zone, nil
}

// CountActiveZones returns the number of active zones.
func (s *ZoneStorage) CountActiveZones(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE active = TRUE`, pq.QuoteIdentifier(s.table))
	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, classifyError("failed to count zones", err)
	}
	return count, nil
}

func collectZones(rows *sql.Rows) ([]geometry.Zone, error) {
	zones := []geometry.Zone{}
	for rows.Next() {
		zone, err := scanZone(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones = append(zones, *zone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate zones: %w", err)
	}
	return zones, nil
}

// Helper to scan a zone from a scanner.
type zoneScanner interface {
	Scan(dest ...interface{}) error
}

func scanZone(scanner zoneScanner) (*geometry.Zone, error) {
	var id int64
	var name sql.NullString
	var geom sql.NullString

	if err := scanner.Scan(&id, &name, &geom); err != nil {
		return nil, err
	}

	z := geometry.Zone{
		ID:   geometry.ZoneIDFromInt(id),
		Name: name.String,
	}
	if geom.Valid {
		// The column may hold a JSON document or a JSON string literal
		// wrapping one; both decode through the same payload path.
		z.Geometry = geometry.DecodePayload([]byte(geom.String))
	}
	return &z, nil
}

// classifyError maps driver errors onto package sentinels where the
// caller can act on them.
func classifyError(msg string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
		return fmt.Errorf("%s: %w: %s", msg, ErrZonesTableMissing, pqErr.Message)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
