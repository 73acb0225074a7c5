package store

import (
	"database/sql"
	"errors"
	"strconv"
)

// Setting keys
const (
	SettingMode        = "mode"
	SettingActiveZone  = "active_zone"
	SettingValidation  = "validation_enabled"
	SettingColorWeight = "color_weight"
)

// SettingsRepository stores key-value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value of key.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return value, nil
}

// GetOr returns the value of key, or fallback when it is unset.
func (r *SettingsRepository) GetOr(key, fallback string) (string, error) {
	v, err := r.Get(key)
	if errors.Is(err, ErrNotFound) {
		return fallback, nil
	}
	return v, err
}

// GetBool returns a boolean setting, or fallback when it is unset or invalid.
func (r *SettingsRepository) GetBool(key string, fallback bool) bool {
	v, err := r.Get(key)
	if err != nil {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Set stores value under key.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}
