package store

import (
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS forecast_rows (
    location TEXT NOT NULL,
    row_idx INTEGER NOT NULL,
    fold TEXT NOT NULL,
    issue_time DATETIME NOT NULL,
    lead_seconds INTEGER NOT NULL,
    PRIMARY KEY (location, row_idx)
);

CREATE TABLE IF NOT EXISTS forecast_values (
    location TEXT NOT NULL,
    row_idx INTEGER NOT NULL,
    level REAL NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (location, row_idx, level)
);

CREATE TABLE IF NOT EXISTS actuals (
    location TEXT NOT NULL,
    issue_time DATETIME NOT NULL,
    lead_seconds INTEGER NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (location, issue_time, lead_seconds)
);

CREATE TABLE IF NOT EXISTS scenario_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    copula TEXT NOT NULL,
    sample_count INTEGER NOT NULL,
    seed INTEGER NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS scenario_values (
    run_id INTEGER NOT NULL REFERENCES scenario_runs(id),
    location TEXT NOT NULL,
    row_idx INTEGER NOT NULL,
    sample INTEGER NOT NULL,
    value REAL NOT NULL,
    PRIMARY KEY (run_id, location, row_idx, sample)
);

CREATE INDEX IF NOT EXISTS idx_forecast_values_loc ON forecast_values(location, row_idx);
CREATE INDEX IF NOT EXISTS idx_scenario_values_run ON scenario_values(run_id, location);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		s.log.Info().Int("version", m.Version).Str("description", m.Description).Msg("applying migration")

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
