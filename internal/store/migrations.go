package store

import "fmt"

// The DDL sticks to types all three drivers accept so one migration list
// serves sqlite, postgres and mysql.
func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(36) PRIMARY KEY,
			username VARCHAR(64) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(16) NOT NULL,
			last_login_at TIMESTAMP NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS weather_data (
			id VARCHAR(36) PRIMARY KEY,
			device_name VARCHAR(255) NOT NULL,
			precipitation DOUBLE PRECISION NOT NULL,
			observed_at TIMESTAMP NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			atmospheric_pressure DOUBLE PRECISION NOT NULL,
			max_wind_speed DOUBLE PRECISION NOT NULL,
			solar_radiation DOUBLE PRECISION NOT NULL,
			vapor_pressure DOUBLE PRECISION NOT NULL,
			humidity DOUBLE PRECISION NOT NULL,
			wind_direction DOUBLE PRECISION NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
