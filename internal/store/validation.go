package store

import (
	"database/sql"
	"time"
)

// Validation is one recorded gate decision.
type Validation struct {
	ID     int64  `json:"id"`
	ZoneID string `json:"zone_id,omitempty"`
	Mode   string `json:"mode"`
	Step   string `json:"step,omitempty"`
	// Count is the number of consecutive matches, or parts counted.
	Count     int       `json:"count"`
	Passed    bool      `json:"passed"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationRepository records and lists validation events.
type ValidationRepository struct {
	db *sql.DB
}

// Validations returns the validation repository for this store.
func (s *Store) Validations() *ValidationRepository {
	return &ValidationRepository{db: s.db}
}

// Create records a validation and sets its ID.
func (r *ValidationRepository) Create(v *Validation) error {
	v.CreatedAt = time.Now()

	var zoneID any
	if v.ZoneID != "" {
		zoneID = v.ZoneID
	}
	result, err := r.db.Exec(
		`INSERT INTO validations (zone_id, mode, step, count, passed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		zoneID, v.Mode, v.Step, v.Count, v.Passed, v.CreatedAt,
	)
	if err != nil {
		return err
	}
	v.ID, err = result.LastInsertId()
	return err
}

// ListByZone returns the most recent validations of a zone, newest first.
func (r *ValidationRepository) ListByZone(zoneID string, limit int) ([]*Validation, error) {
	return r.query(
		`SELECT id, zone_id, mode, step, count, passed, created_at
		 FROM validations WHERE zone_id = ? ORDER BY id DESC LIMIT ?`,
		zoneID, limit,
	)
}

// Recent returns the most recent validations, newest first.
func (r *ValidationRepository) Recent(limit int) ([]*Validation, error) {
	return r.query(
		`SELECT id, zone_id, mode, step, count, passed, created_at
		 FROM validations ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

// CountPassed returns how many passed validations were recorded since t.
func (r *ValidationRepository) CountPassed(since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM validations WHERE passed = 1 AND created_at >= ?`, since,
	).Scan(&n)
	return n, err
}

func (r *ValidationRepository) query(q string, args ...any) ([]*Validation, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Validation
	for rows.Next() {
		v := &Validation{}
		var zoneID sql.NullString
		var passed int
		if err := rows.Scan(&v.ID, &zoneID, &v.Mode, &v.Step, &v.Count, &passed, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.ZoneID = zoneID.String
		v.Passed = passed == 1
		out = append(out, v)
	}
	return out, rows.Err()
}
