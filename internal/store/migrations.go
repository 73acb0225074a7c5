package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Zones table - the zone record is kept in its JSON exchange format
		`CREATE TABLE IF NOT EXISTS zones (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			position INTEGER NOT NULL,
			config TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Validations table - one row per gate decision
		`CREATE TABLE IF NOT EXISTS validations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			zone_id TEXT REFERENCES zones(id) ON DELETE SET NULL,
			mode TEXT NOT NULL,
			step TEXT NOT NULL DEFAULT '',
			count INTEGER NOT NULL DEFAULT 0,
			passed INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Evidence table - annotated JPEG snapshot per validation
		`CREATE TABLE IF NOT EXISTS evidence (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			validation_id INTEGER NOT NULL REFERENCES validations(id) ON DELETE CASCADE,
			image BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_zones_position ON zones(position)`,
		`CREATE INDEX IF NOT EXISTS idx_validations_zone_id ON validations(zone_id)`,
		`CREATE INDEX IF NOT EXISTS idx_evidence_validation_id ON evidence(validation_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
