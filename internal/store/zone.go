package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/pokayoke/internal/zone"
)

var (
	// ErrZoneLimit is returned when creating a zone beyond zone.MaxZones.
	ErrZoneLimit = fmt.Errorf("a station holds at most %d zones", zone.MaxZones)
	// ErrDuplicateName is returned when another zone already has the name.
	ErrDuplicateName = errors.New("zone name already exists")
)

// uniqueViolation maps a sqlite unique constraint failure to ErrDuplicateName.
func uniqueViolation(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateName
	}
	return err
}

// Zone is a stored validation zone.
type Zone struct {
	ID        string     `json:"id"`
	Position  int        `json:"position"`
	Zone      *zone.Zone `json:"zone"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ZoneRepository provides CRUD operations for zones.
type ZoneRepository struct {
	db *sql.DB
}

// Zones returns the zone repository for this store.
func (s *Store) Zones() *ZoneRepository {
	return &ZoneRepository{db: s.db}
}

// Create inserts a zone at the end of the list. An empty ID is generated.
func (r *ZoneRepository) Create(z *Zone) error {
	if z.Zone == nil || z.Zone.Name == "" {
		return zone.ErrMissingName
	}
	config, err := json.Marshal(z.Zone)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var count int
	var last sql.NullInt64
	if err := tx.QueryRow(`SELECT COUNT(*), MAX(position) FROM zones`).Scan(&count, &last); err != nil {
		return err
	}
	if count >= zone.MaxZones {
		return ErrZoneLimit
	}

	if z.ID == "" {
		z.ID = uuid.New().String()
	}
	z.Position = 0
	if last.Valid {
		z.Position = int(last.Int64) + 1
	}
	now := time.Now()
	z.CreatedAt = now
	z.UpdatedAt = now

	_, err = tx.Exec(
		`INSERT INTO zones (id, name, position, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		z.ID, z.Zone.Name, z.Position, string(config), z.CreatedAt, z.UpdatedAt,
	)
	if err != nil {
		return uniqueViolation(err)
	}
	return tx.Commit()
}

func scanZone(row interface{ Scan(...any) error }) (*Zone, error) {
	z := &Zone{}
	var config string
	if err := row.Scan(&z.ID, &z.Position, &config, &z.CreatedAt, &z.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := zone.FromJSON(json.RawMessage(config))
	if err != nil {
		return nil, fmt.Errorf("zone %s: %w", z.ID, err)
	}
	z.Zone = parsed
	return z, nil
}

// GetByID retrieves a zone by its ID.
func (r *ZoneRepository) GetByID(id string) (*Zone, error) {
	z, err := scanZone(r.db.QueryRow(
		`SELECT id, position, config, created_at, updated_at FROM zones WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return z, err
}

// GetByName retrieves a zone by its name.
func (r *ZoneRepository) GetByName(name string) (*Zone, error) {
	z, err := scanZone(r.db.QueryRow(
		`SELECT id, position, config, created_at, updated_at FROM zones WHERE name = ?`, name,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return z, err
}

// List retrieves all zones in station order.
func (r *ZoneRepository) List() ([]*Zone, error) {
	rows, err := r.db.Query(
		`SELECT id, position, config, created_at, updated_at FROM zones ORDER BY position`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []*Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return zones, nil
}

// Update replaces the zone definition. The position is kept.
func (r *ZoneRepository) Update(z *Zone) error {
	if z.Zone == nil || z.Zone.Name == "" {
		return zone.ErrMissingName
	}
	config, err := json.Marshal(z.Zone)
	if err != nil {
		return err
	}
	z.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE zones SET name = ?, config = ?, updated_at = ? WHERE id = ?`,
		z.Zone.Name, string(config), z.UpdatedAt, z.ID,
	)
	if err != nil {
		return uniqueViolation(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes a zone by its ID.
func (r *ZoneRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM zones WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Move shifts a zone by offset places in the station order, swapping
// positions with the zone it lands on. Offsets past either end are clamped.
func (r *ZoneRepository) Move(id string, offset int) error {
	zones, err := r.List()
	if err != nil {
		return err
	}
	idx := -1
	for i, z := range zones {
		if z.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return ErrNotFound
	}
	target := min(max(idx+offset, 0), len(zones)-1)
	if target == idx {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	a, b := zones[idx], zones[target]
	for _, u := range []struct {
		id       string
		position int
	}{{a.ID, b.Position}, {b.ID, a.Position}} {
		if _, err := tx.Exec(`UPDATE zones SET position = ?, updated_at = ? WHERE id = ?`, u.position, now, u.id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Export returns every zone as the JSON zone list exchanged with operators.
func (r *ZoneRepository) Export() ([]byte, error) {
	stored, err := r.List()
	if err != nil {
		return nil, err
	}
	zones := make([]*zone.Zone, len(stored))
	for i, z := range stored {
		zones[i] = z.Zone
	}
	return zone.ListToJSON(zones)
}

// Import replaces every zone with the zones in a JSON zone list.
func (r *ZoneRepository) Import(data []byte) ([]*Zone, error) {
	zones, err := zone.ListFromJSON(data)
	if err != nil {
		return nil, err
	}
	if len(zones) > zone.MaxZones {
		return nil, ErrZoneLimit
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM zones`); err != nil {
		return nil, err
	}
	now := time.Now()
	stored := make([]*Zone, len(zones))
	for i, z := range zones {
		config, err := json.Marshal(z)
		if err != nil {
			return nil, err
		}
		s := &Zone{ID: uuid.New().String(), Position: i, Zone: z, CreatedAt: now, UpdatedAt: now}
		if _, err := tx.Exec(
			`INSERT INTO zones (id, name, position, config, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.ID, z.Name, s.Position, string(config), now, now,
		); err != nil {
			return nil, uniqueViolation(err)
		}
		stored[i] = s
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return stored, nil
}
