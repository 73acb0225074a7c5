package store

import (
	"database/sql"
	"errors"
	"time"
)

// Evidence is an annotated JPEG snapshot attached to a validation.
type Evidence struct {
	ID           int64     `json:"id"`
	ValidationID int64     `json:"validation_id"`
	Image        []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// EvidenceRepository stores validation snapshots.
type EvidenceRepository struct {
	db *sql.DB
}

// Evidence returns the evidence repository for this store.
func (s *Store) Evidence() *EvidenceRepository {
	return &EvidenceRepository{db: s.db}
}

// Create stores a snapshot and sets its ID.
func (r *EvidenceRepository) Create(e *Evidence) error {
	e.CreatedAt = time.Now()
	result, err := r.db.Exec(
		`INSERT INTO evidence (validation_id, image, created_at) VALUES (?, ?, ?)`,
		e.ValidationID, e.Image, e.CreatedAt,
	)
	if err != nil {
		return err
	}
	e.ID, err = result.LastInsertId()
	return err
}

// GetByValidation returns the snapshot of a validation.
func (r *EvidenceRepository) GetByValidation(validationID int64) (*Evidence, error) {
	e := &Evidence{}
	err := r.db.QueryRow(
		`SELECT id, validation_id, image, created_at FROM evidence
		 WHERE validation_id = ? ORDER BY id DESC LIMIT 1`,
		validationID,
	).Scan(&e.ID, &e.ValidationID, &e.Image, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Prune deletes snapshots older than t and returns how many were removed.
func (r *EvidenceRepository) Prune(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM evidence WHERE created_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
